// Package kiosk runs voice ordering sessions back to back on one device:
// when a dialogue ends or is closed, the next customer gets a fresh one.
package kiosk

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"daebak/internal/capture"
	"daebak/internal/dialogue"
	"daebak/internal/ipc"
	"daebak/internal/orders"
)

const saveTimeout = 5 * time.Second

type Config struct {
	Catalog     *dialogue.Catalog
	Interpreter dialogue.Interpreter
	Timeout     time.Duration

	// Recognizer is nil on devices without speech capture.
	Recognizer capture.Recognizer
	Cue        func()
	// Ducker, when set, quiets other audio during each capture.
	Ducker capture.Ducker
	// Speak voices one system message; optional.
	Speak func(text string) error
	Sink  orders.Sink
}

type Kiosk struct {
	cfg Config

	mu     sync.Mutex
	active *turnState
}

type turnState struct {
	sess *capture.Session
	seen int // transcript entries already voiced
}

func New(cfg Config) *Kiosk {
	k := &Kiosk{cfg: cfg}
	k.mu.Lock()
	texts := k.startLocked()
	k.mu.Unlock()
	k.voice(texts)
	return k
}

// startLocked opens the next session and returns its opening lines.
func (k *Kiosk) startLocked() []string {
	id := uuid.NewString()

	var opts []capture.Option
	if k.cfg.Cue != nil {
		opts = append(opts, capture.WithCue(k.cfg.Cue))
	}
	if k.cfg.Ducker != nil {
		opts = append(opts, capture.WithDucking(k.cfg.Ducker))
	}
	ctrl := dialogue.NewController(dialogue.Config{
		SessionID:   id,
		Interpreter: k.cfg.Interpreter,
		Timeout:     k.cfg.Timeout,
		Catalog:     k.cfg.Catalog,
		OnComplete:  func(o dialogue.Order) { k.save(id, o) },
	})

	k.active = &turnState{sess: capture.NewSession(ctrl, k.cfg.Recognizer, opts...)}
	log.Info("New session", "session", id)
	return k.pendingLocked(k.active)
}

// Session returns the dialogue currently served.
func (k *Kiosk) Session() *capture.Session {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active.sess
}

// Listen runs one capture and turn on the current session. A session that
// reaches its end is replaced before Listen returns.
func (k *Kiosk) Listen(ctx context.Context) (dialogue.Reply, error) {
	k.mu.Lock()
	cur := k.active
	k.mu.Unlock()

	reply, err := cur.sess.Listen(ctx)

	k.mu.Lock()
	if k.active != cur {
		k.mu.Unlock()
		return reply, err
	}
	texts := k.pendingLocked(cur)
	ctrl := cur.sess.Controller()
	if ctrl.State().Terminal() || ctrl.Closed() {
		texts = append(texts, k.startLocked()...)
	}
	k.mu.Unlock()

	k.voice(texts)
	return reply, err
}

// Close abandons the current dialogue and starts the next one.
func (k *Kiosk) Close() {
	k.mu.Lock()
	k.active.sess.Controller().Close()
	texts := k.startLocked()
	k.mu.Unlock()
	k.voice(texts)
}

func (k *Kiosk) View() dialogue.View {
	return k.Session().Controller().View()
}

// Control serves daemon commands.
func (k *Kiosk) Control(ctx context.Context, msg ipc.ControlMessage) ipc.ControlReply {
	switch msg.Cmd {
	case ipc.CmdListen:
		reply, err := k.Listen(ctx)
		if err != nil {
			return ipc.ControlReply{State: k.View().State.String(), Error: err.Error()}
		}
		return ipc.ControlReply{OK: true, State: reply.State.String(), Text: reply.Text}

	case ipc.CmdClose:
		k.Close()
		return ipc.ControlReply{OK: true, State: k.View().State.String()}

	case ipc.CmdStatus:
		v := k.View()
		r := ipc.ControlReply{OK: true, State: v.State.String()}
		if n := len(v.Transcript); n > 0 {
			r.Text = v.Transcript[n-1].Text
		}
		return r

	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return ipc.ControlReply{Error: "unknown command " + msg.Cmd}
	}
}

// pendingLocked returns the system messages added since the last call.
func (k *Kiosk) pendingLocked(t *turnState) []string {
	tr := t.sess.Controller().Transcript()
	var texts []string
	for _, m := range tr[t.seen:] {
		if m.Speaker == dialogue.SpeakerSystem {
			texts = append(texts, m.Text)
		}
	}
	t.seen = len(tr)
	return texts
}

// voice speaks texts in order. It must not be called with k.mu held.
func (k *Kiosk) voice(texts []string) {
	for _, text := range texts {
		log.Info("Daebak", "text", text)
		if k.cfg.Speak == nil {
			continue
		}
		if err := k.cfg.Speak(text); err != nil {
			log.Error("Failed to voice out", "err", err)
		}
	}
}

func (k *Kiosk) save(session string, o dialogue.Order) {
	if k.cfg.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := k.cfg.Sink.Save(ctx, orders.NewRecord(session, o)); err != nil {
		log.Error("Saving order failed", "session", session, "err", err)
	}
}

// Run listens over and over until ctx ends or the recognizer runs dry.
// It suits line input, where every line is a turn.
func (k *Kiosk) Run(ctx context.Context) error {
	for {
		_, err := k.Listen(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrUnsupported), ctx.Err() != nil:
			return err
		case errors.Is(err, io.EOF):
			return nil
		default:
			log.Debug("Turn failed", "err", err)
		}
	}
}
