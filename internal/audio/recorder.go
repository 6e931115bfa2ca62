package audio

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
	frameDur   = 20 * time.Millisecond
)

var ErrNoAudio = errors.New("no audio recorded")

type RecorderOptions struct {
	SilenceRMS float64       // frames at or below count as silence
	Silence    time.Duration // trailing silence that ends an utterance
	MaxLength  time.Duration
	// Lead is how long to wait for speech to start before giving up.
	Lead time.Duration
}

func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		SilenceRMS: 0.015,
		Silence:    600 * time.Millisecond,
		MaxLength:  10 * time.Second,
		Lead:       5 * time.Second,
	}
}

type Recorder struct {
	opt RecorderOptions
}

func NewRecorder(opt RecorderOptions) *Recorder {
	def := DefaultRecorderOptions()
	if opt.SilenceRMS <= 0 {
		opt.SilenceRMS = def.SilenceRMS
	}
	if opt.Silence <= 0 {
		opt.Silence = def.Silence
	}
	if opt.MaxLength <= 0 {
		opt.MaxLength = def.MaxLength
	}
	if opt.Lead <= 0 {
		opt.Lead = def.Lead
	}
	return &Recorder{opt: opt}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto captures one utterance from the default input device. It
// returns once speech is followed by enough silence, the maximum length is
// reached, or ctx is done.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	seg := newSegmenter(r.opt)
	for !seg.done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		seg.push(buf)
	}

	if len(seg.out) == 0 {
		return nil, ErrNoAudio
	}
	return seg.out, nil
}

// segmenter applies an RMS gate to 20ms frames and keeps the speech with
// its trailing silence.
type segmenter struct {
	opt           RecorderOptions
	out           []float32
	frames        int
	speaking      bool
	silenceFrames int
	stopped       bool
}

func newSegmenter(opt RecorderOptions) *segmenter {
	return &segmenter{opt: opt, out: make([]float32, 0, SampleRate*3)}
}

func (s *segmenter) push(frame []float32) {
	s.frames++
	if frameRMS(frame) > s.opt.SilenceRMS {
		s.speaking = true
		s.silenceFrames = 0
		s.out = append(s.out, frame...)
		return
	}
	if !s.speaking {
		if time.Duration(s.frames)*frameDur >= s.opt.Lead {
			s.stopped = true
		}
		return
	}
	s.silenceFrames++
	if time.Duration(s.silenceFrames)*frameDur >= s.opt.Silence {
		s.stopped = true
		return
	}
	s.out = append(s.out, frame...)
}

func (s *segmenter) done() bool {
	return s.stopped || time.Duration(s.frames)*frameDur >= s.opt.MaxLength
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
