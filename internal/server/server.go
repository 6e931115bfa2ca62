// Package server exposes voice ordering sessions to the browser front end
// over websockets. The browser recognizes speech itself (or uploads a
// recorded clip) and the server runs one dialogue per connection.
package server

import (
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"daebak/internal/dialogue"
	"daebak/internal/orders"
	"daebak/pkg/protocol"
)

const (
	DefaultWriteTimeout = 5 * time.Second
	DefaultSaveTimeout  = 5 * time.Second
	maxClipBytes        = 8 << 20
)

// ClipTranscriber turns an uploaded audio clip into an utterance.
type ClipTranscriber interface {
	Transcribe(ctx context.Context, clip []byte) (string, error)
}

type Config struct {
	Catalog     *dialogue.Catalog
	Interpreter dialogue.Interpreter
	Timeout     time.Duration

	// Clips is optional; without it binary frames are refused.
	Clips ClipTranscriber
	// Sink receives every confirmed order; optional.
	Sink orders.Sink

	WriteTimeout time.Duration
	// CheckOrigin overrides the upgrader's same-origin check.
	CheckOrigin func(r *http.Request) bool
}

type Server struct {
	cfg      Config
	upgrader ws.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.Catalog == nil {
		cfg.Catalog = dialogue.DefaultCatalog()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		cfg: cfg,
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		sessions: make(map[string]*session),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Sessions reports how many connections are open.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every open session and waits for their turns to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.ctrl.Close()
		_ = sess.web.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxClipBytes)

	s.wg.Add(1)
	defer s.wg.Done()

	sess := s.newSession(protocol.Wrap(conn, s.cfg.WriteTimeout))
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.log.Info("Session opened", "remote", r.RemoteAddr)
	sess.run()

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

func (s *Server) newSession(web *protocol.WebSocket) *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     id,
		web:    web,
		clips:  s.cfg.Clips,
		ctx:    ctx,
		cancel: cancel,
		log:    log.With("session", id),
	}
	sess.ctrl = dialogue.NewController(dialogue.Config{
		SessionID:   id,
		Interpreter: s.cfg.Interpreter,
		Timeout:     s.cfg.Timeout,
		Catalog:     s.cfg.Catalog,
		OnComplete:  func(o dialogue.Order) { sess.completed(s.cfg.Sink, o) },
		Logger:      log.Default(),
	})
	return sess
}

func isClosedConn(err error) bool {
	return errors.Is(err, ws.ErrCloseSent) || protocol.WsIsClosed(err)
}
