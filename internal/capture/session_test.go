package capture

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daebak/internal/dialogue"
)

func TestSession_Unsupported(t *testing.T) {
	ctrl := dialogue.NewController(dialogue.Config{})
	s := NewSession(ctrl, nil)

	assert.False(t, s.Supported())
	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)

	tr := ctrl.Transcript()
	assert.Equal(t, dialogue.MsgUnsupported, tr[len(tr)-1].Text)
	assert.Equal(t, dialogue.StateGreeting, ctrl.State())
}

func TestSession_ListenScript(t *testing.T) {
	input := strings.Join([]string{
		"맛있는 거 추천해줘",
		"",
		"생신이에요 내일요",
		"샴페인 축제 디너로 할게요",
		"디럭스로 해주세요",
		"바게트 6개로 바꿔줘",
		"맞아요",
		"없어요",
	}, "\n")

	var completed []dialogue.Order
	ctrl := dialogue.NewController(dialogue.Config{OnComplete: func(o dialogue.Order) { completed = append(completed, o) }})
	cues := 0
	s := NewSession(ctrl, NewLines(strings.NewReader(input)), WithCue(func() { cues++ }))

	for !ctrl.State().Terminal() {
		_, err := s.Listen(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 7, cues)
	require.Len(t, completed, 1)
	assert.Equal(t, dialogue.Order{
		Dinner: "샴페인 축제 디너", Style: dialogue.StyleDeluxe, Baguettes: 6, Champagne: 1, DeliveryDate: "내일",
	}, completed[0])

	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, dialogue.ErrFinished)
}

func TestSession_RecognitionError(t *testing.T) {
	ctrl := dialogue.NewController(dialogue.Config{})
	s := NewSession(ctrl, RecognizerFunc(func(context.Context) (string, error) {
		return "", errors.New("audio-capture")
	}))

	_, err := s.Listen(context.Background())
	require.Error(t, err)
	assert.False(t, s.Listening(), "listening is re-enabled after a failed attempt")
	assert.Equal(t, dialogue.StateGreeting, ctrl.State())

	tr := ctrl.Transcript()
	assert.Equal(t, dialogue.MsgRecognitionFailed, tr[len(tr)-1].Text)
}

func TestSession_EmptyRecognitionIsNoSpeech(t *testing.T) {
	ctrl := dialogue.NewController(dialogue.Config{})
	s := NewSession(ctrl, RecognizerFunc(func(context.Context) (string, error) { return "", nil }))

	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, ErrNoSpeech)
	assert.Len(t, ctrl.Transcript(), 2)
}

func TestSession_ListenIsExclusive(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ctrl := dialogue.NewController(dialogue.Config{Interpreter: dialogue.InterpreterFunc(
		func(context.Context, string, dialogue.Order) (dialogue.Interpretation, error) {
			close(entered)
			<-release
			return dialogue.Interpretation{Intent: dialogue.IntentRecommend}, nil
		})})
	s := NewSession(ctrl, RecognizerFunc(func(context.Context) (string, error) { return "음", nil }))

	done := make(chan error, 1)
	go func() {
		_, err := s.Listen(context.Background())
		done <- err
	}()

	// The first turn is parked in the interpreter: listening stays disabled.
	<-entered
	assert.True(t, s.Listening())
	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, ErrListening)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Listening())
	assert.Equal(t, dialogue.StateAskOccasion, ctrl.State())
}

func TestSession_ClosedController(t *testing.T) {
	ctrl := dialogue.NewController(dialogue.Config{})
	s := NewSession(ctrl, NewLines(strings.NewReader("추천해줘\n")))
	ctrl.Close()

	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, dialogue.ErrClosed)
}

func TestLines(t *testing.T) {
	l := NewLines(strings.NewReader("  첫째  \n\n\n둘째\n"))

	got, err := l.Recognize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "첫째", got)

	got, err = l.Recognize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "둘째", got)

	_, err = l.Recognize(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLines(strings.NewReader("x\n")).Recognize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_EndOfInput(t *testing.T) {
	ctrl := dialogue.NewController(dialogue.Config{})
	s := NewSession(ctrl, NewLines(strings.NewReader("")))

	_, err := s.Listen(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, ctrl.Transcript(), 1, "no recognition failure is reported")
}

type ducker struct {
	events *[]string
	err    error
}

func (d ducker) Duck(context.Context) error {
	*d.events = append(*d.events, "duck")
	return d.err
}

func (d ducker) Restore(context.Context) error {
	*d.events = append(*d.events, "restore")
	return nil
}

func TestSession_Ducking(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		recErr  error
		duckErr error
	}{
		{"utterance", "맛있는 거 추천해줘", nil, nil},
		{"recognition fails", "", errors.New("audio-capture"), nil},
		{"duck fails", "맛있는 거 추천해줘", nil, errors.New("pactl missing")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var events []string
			ctrl := dialogue.NewController(dialogue.Config{})
			s := NewSession(ctrl, RecognizerFunc(func(context.Context) (string, error) {
				events = append(events, "recognize")
				return tc.text, tc.recErr
			}),
				WithCue(func() { events = append(events, "cue") }),
				WithDucking(ducker{events: &events, err: tc.duckErr}),
			)

			_, err := s.Listen(context.Background())
			if tc.recErr != nil {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, dialogue.StateAskOccasion, ctrl.State())
			}
			assert.Equal(t, []string{"duck", "cue", "recognize", "restore"}, events)
		})
	}
}
