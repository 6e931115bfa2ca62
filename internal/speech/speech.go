// Package speech turns captured audio into utterances for capture sessions.
package speech

import (
	"context"
	"fmt"
	"strings"

	"daebak/pkg/audioconv"
)

// Transcriber converts mono 16 kHz PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

// Recorder captures one utterance worth of mono 16 kHz PCM.
type Recorder interface {
	RecordAuto(ctx context.Context) ([]float32, error)
}

// Mic recognizes one utterance per call from a live input device.
type Mic struct {
	rec Recorder
	stt Transcriber
}

func NewMic(rec Recorder, stt Transcriber) *Mic {
	return &Mic{rec: rec, stt: stt}
}

func (m *Mic) Recognize(ctx context.Context) (string, error) {
	pcm, err := m.rec.RecordAuto(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	text, err := m.stt.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return Clean(text), nil
}

// Clips transcribes uploaded audio clips (wav, mp3, ogg).
type Clips struct {
	stt        Transcriber
	maxSamples int
}

func NewClips(stt Transcriber, maxSeconds int) *Clips {
	return &Clips{stt: stt, maxSamples: maxSeconds * audioconv.SampleRate}
}

func (c *Clips) Transcribe(ctx context.Context, clip []byte) (string, error) {
	pcm, err := audioconv.Decode(ctx, clip, audioconv.Options{MaxSamples: c.maxSamples})
	if err != nil {
		return "", fmt.Errorf("decode clip: %w", err)
	}
	text, err := c.stt.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return Clean(text), nil
}

// Clean drops whisper's non-speech annotations such as "[BLANK_AUDIO]" or
// "(웃음)" and collapses whitespace.
func Clean(text string) string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch r {
		case '[', '(':
			depth++
			continue
		case ']', ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
