package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"sync/atomic"

	"daebak/internal/dialogue"
)

var (
	ErrUnsupported = errors.New("capture: speech recognition not available")
	ErrListening   = errors.New("capture: already listening")
	ErrNoSpeech    = errors.New("capture: no speech recognized")
)

// Recognizer performs exactly one recognition attempt per call. Returning
// ends the attempt, successful or not.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// Ducker quiets other playback for the length of a recognition attempt.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type RecognizerFunc func(ctx context.Context) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context) (string, error) { return f(ctx) }

// Session ties a recognizer to a dialogue. Listen stays disabled until the
// previous activation, including its dialogue turn, has finished.
type Session struct {
	ctrl      *dialogue.Controller
	rec       Recognizer
	cue       func()
	ducker    Ducker
	listening atomic.Bool
}

type Option func(*Session)

// WithCue runs f right before each recognition attempt.
func WithCue(f func()) Option {
	return func(s *Session) { s.cue = f }
}

// WithDucking lowers other audio from just before the cue until the
// recognizer returns. Ducking failures are logged and never fail a turn.
func WithDucking(d Ducker) Option {
	return func(s *Session) { s.ducker = d }
}

// NewSession binds rec to ctrl. A nil rec means the device cannot capture
// speech; the dialogue is told so once.
func NewSession(ctrl *dialogue.Controller, rec Recognizer, opts ...Option) *Session {
	s := &Session{ctrl: ctrl, rec: rec}
	for _, o := range opts {
		o(s)
	}
	if rec == nil {
		ctrl.Announce(dialogue.MsgUnsupported)
	}
	return s
}

func (s *Session) Controller() *dialogue.Controller { return s.ctrl }

func (s *Session) Supported() bool { return s.rec != nil }

func (s *Session) Listening() bool { return s.listening.Load() }

// Listen runs one turn: capture an utterance and hand it to the dialogue.
func (s *Session) Listen(ctx context.Context) (dialogue.Reply, error) {
	if s.rec == nil {
		return dialogue.Reply{}, ErrUnsupported
	}
	if s.ctrl.Closed() {
		return dialogue.Reply{}, dialogue.ErrClosed
	}
	if s.ctrl.State().Terminal() {
		return dialogue.Reply{}, dialogue.ErrFinished
	}
	if !s.listening.CompareAndSwap(false, true) {
		return dialogue.Reply{}, ErrListening
	}
	defer s.listening.Store(false)

	text, err := s.recognize(ctx)
	if err == nil && text == "" {
		err = ErrNoSpeech
	}
	if errors.Is(err, io.EOF) {
		// the input source is gone; nothing was misheard
		return dialogue.Reply{}, err
	}
	if err != nil {
		s.ctrl.RecognitionFailed(err)
		return dialogue.Reply{}, fmt.Errorf("recognize: %w", err)
	}

	return s.ctrl.Handle(ctx, text)
}

func (s *Session) recognize(ctx context.Context) (string, error) {
	if s.ducker != nil {
		if err := s.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck audio", "err", err)
		}
		defer func() {
			// a cancelled listen still gives the music back
			if err := s.ducker.Restore(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to restore audio", "err", err)
			}
		}()
	}
	if s.cue != nil {
		s.cue()
	}
	return s.rec.Recognize(ctx)
}
