package server

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"daebak/internal/capture"
	"daebak/internal/dialogue"
	"daebak/internal/orders"
	"daebak/pkg/protocol"
)

// Client to server frame types.
const (
	TypeUtterance        = "utterance"
	TypeRecognitionError = "recognition_error"
	TypeUnsupported      = "unsupported"
	TypeClose            = "close"
	TypeStatus           = "status"
)

// Server to client frame types.
const (
	TypeSession   = "session"
	TypeError     = "error"
	TypeCompleted = "completed"
)

// Error codes carried by error frames.
const (
	ErrCodeBusy        = "busy"
	ErrCodeFinished    = "finished"
	ErrCodeClosed      = "closed"
	ErrCodeBadFrame    = "bad_frame"
	ErrCodeUnknown     = "unknown_type"
	ErrCodeNoClipInput = "clips_unsupported"
)

type UtteranceData struct {
	Text string `json:"text"`
}

type RecognitionErrorData struct {
	Error string `json:"error"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// SessionData mirrors the controller. Listening tells the front end that
// a turn is pending and capture must stay off.
type SessionData struct {
	dialogue.View
	Listening bool `json:"listening"`
}

type CompletedData struct {
	Session string         `json:"session"`
	Order   dialogue.Order `json:"order"`
}

type session struct {
	id    string
	web   *protocol.WebSocket
	ctrl  *dialogue.Controller
	clips ClipTranscriber
	log   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	pending atomic.Bool
	turns   sync.WaitGroup
}

func (s *session) run() {
	defer func() {
		s.ctrl.Close()
		s.cancel()
		s.turns.Wait()
		_ = s.web.Close()
		s.log.Info("Session ended")
	}()

	s.sendState()

	for {
		in := s.web.Read()
		switch in.Kind {
		case protocol.CONN_CLOSE:
			return
		case protocol.READ_FAILURE:
			s.log.Debug("Read failed", "err", in.Err)
			return
		case protocol.READ_BINARY:
			s.onClip(in.Msg)
		case protocol.READ_TEXT:
			msg, err := protocol.Parse(in.Msg)
			if err != nil {
				s.log.Warn("Bad frame", "err", err)
				s.sendError(ErrCodeBadFrame)
				continue
			}
			s.dispatch(msg)
		}
	}
}

func (s *session) dispatch(msg protocol.Message) {
	switch msg.Type {
	case TypeUtterance:
		var d UtteranceData
		if err := msg.Decode(&d); err != nil {
			s.sendError(ErrCodeBadFrame)
			return
		}
		s.startTurn(func(context.Context) (string, error) { return d.Text, nil })

	case TypeRecognitionError:
		var d RecognitionErrorData
		_ = msg.Decode(&d)
		if d.Error == "" {
			d.Error = "unknown"
		}
		s.ctrl.RecognitionFailed(errors.New(d.Error))
		s.sendState()

	case TypeUnsupported:
		s.ctrl.Announce(dialogue.MsgUnsupported)
		s.sendState()

	case TypeClose:
		s.ctrl.Close()
		s.sendState()

	case TypeStatus:
		s.sendState()

	default:
		s.sendError(ErrCodeUnknown)
	}
}

func (s *session) onClip(clip []byte) {
	if s.clips == nil {
		s.sendError(ErrCodeNoClipInput)
		return
	}
	s.startTurn(func(ctx context.Context) (string, error) {
		return s.clips.Transcribe(ctx, clip)
	})
}

// startTurn runs one turn in the background. Only one turn per session is
// pending at a time; the flag drops before the resulting state is sent so
// the front end may listen again as soon as it sees it.
func (s *session) startTurn(recognize func(context.Context) (string, error)) {
	if s.ctrl.Closed() {
		s.sendError(ErrCodeClosed)
		return
	}
	if s.ctrl.State().Terminal() {
		s.sendError(ErrCodeFinished)
		return
	}
	if !s.pending.CompareAndSwap(false, true) {
		s.sendError(ErrCodeBusy)
		return
	}
	s.sendState()

	s.turns.Add(1)
	go func() {
		defer s.turns.Done()

		text, err := recognize(s.ctx)
		if err == nil && strings.TrimSpace(text) == "" {
			err = capture.ErrNoSpeech
		}
		if err != nil {
			s.ctrl.RecognitionFailed(err)
		} else if _, err := s.ctrl.Handle(s.ctx, text); err != nil {
			s.log.Debug("Turn refused", "err", err)
		}

		s.pending.Store(false)
		s.sendState()
	}()
}

func (s *session) completed(sink orders.Sink, o dialogue.Order) {
	s.send(TypeCompleted, CompletedData{Session: s.id, Order: o})
	if sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()
	if err := sink.Save(ctx, orders.NewRecord(s.id, o)); err != nil {
		s.log.Error("Saving order failed", "err", err)
	}
}

func (s *session) sendState() {
	s.send(TypeSession, SessionData{View: s.ctrl.View(), Listening: s.pending.Load()})
}

func (s *session) sendError(code string) {
	s.send(TypeError, ErrorData{Error: code})
}

func (s *session) send(typ string, v any) {
	if err := s.web.Send(typ, v); err != nil && !isClosedConn(err) {
		s.log.Debug("Write failed", "type", typ, "err", err)
	}
}
