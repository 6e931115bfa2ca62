package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

// Stream is one playback stream of the sound server.
type Stream struct {
	ID     int
	Volume int // percent
	App    string
}

// Mixer reads and sets playback stream volumes.
type Mixer interface {
	Streams(ctx context.Context) ([]Stream, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type DuckOptions struct {
	// Factor scales foreign streams while listening.
	Factor float64
	// Floor is the lowest volume a ducked stream is faded to.
	Floor int
	Fade  time.Duration
	// Keep lists application names never ducked: the kiosk's own cue and
	// voice.
	Keep []string
}

func DefaultDuckOptions() DuckOptions {
	return DuckOptions{
		Factor: 0.3,
		Floor:  10,
		Fade:   300 * time.Millisecond,
		Keep:   []string{"daebak-daemon", "espeak-ng"},
	}
}

// Ducker quiets shop music and other playback while the kiosk listens, so
// it does not bleed into the microphone.
type Ducker struct {
	mixer Mixer
	opt   DuckOptions

	mu     sync.Mutex
	saved  map[int]int // stream id -> volume before Duck
	ducked bool
}

func NewDucker(m Mixer, opt DuckOptions) *Ducker {
	opt.Floor = clampVolume(opt.Floor)
	if opt.Factor < 0 {
		opt.Factor = 0
	}
	return &Ducker{mixer: m, opt: opt}
}

type fade struct {
	id, from, to int
}

// Duck fades every foreign stream down. It is a no-op while already ducked.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ducked {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("duck: %w", err)
	}

	d.saved = make(map[int]int)
	var fades []fade
	for _, s := range streams {
		if slices.Contains(d.opt.Keep, s.App) {
			continue
		}
		to := clampVolume(max(int(math.Round(float64(s.Volume)*d.opt.Factor)), d.opt.Floor))
		if to >= s.Volume {
			continue
		}
		d.saved[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: to})
	}
	// restore whatever was lowered even if the fade stops halfway
	d.ducked = true

	if err := d.fade(ctx, fades); err != nil {
		return fmt.Errorf("duck: %w", err)
	}
	return nil
}

// Restore fades ducked streams back to where they were. Streams that went
// away, or appeared, since Duck are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ducked {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	var fades []fade
	for _, s := range streams {
		if orig, ok := d.saved[s.ID]; ok {
			fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
		}
	}
	if err := d.fade(ctx, fades); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	d.saved = nil
	d.ducked = false
	return nil
}

// fade steps all streams linearly towards their targets over opt.Fade.
func (d *Ducker) fade(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const step = 20 * time.Millisecond
	steps := int(d.opt.Fade / step)
	if steps < 1 {
		steps = 1
	}

	var tick *time.Ticker
	if steps > 1 {
		tick = time.NewTicker(d.opt.Fade / time.Duration(steps))
		defer tick.Stop()
	}

	for i := 1; i <= steps; i++ {
		if tick != nil && i > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick.C:
			}
		}
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := f.from + int(math.Round(float64(f.to-f.from)*frac))
			if err := d.mixer.SetVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("stream %d: %w", f.id, err)
			}
		}
	}
	return nil
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}

// Pactl drives PulseAudio (or pipewire-pulse) through the pactl command.
type Pactl struct{}

func (Pactl) Streams(ctx context.Context) ([]Stream, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	if err := exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run(); err != nil {
		return fmt.Errorf("pactl set-sink-input-volume: %w", err)
	}
	return nil
}

var (
	percentRe = regexp.MustCompile(`(\d+)\s*%`)
	appNameRe = regexp.MustCompile(`^application\.name = "(.*)"$`)
)

// parseSinkInputs reads the output of `pactl list sink-inputs`. Blocks
// without a numeric id, or with neither volume nor name, are skipped.
func parseSinkInputs(text string) []Stream {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []Stream
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := Stream{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && s.Volume == 0:
				// channels are kept level; the first one stands for all
				if m := percentRe.FindStringSubmatch(line); m != nil {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			case s.App == "":
				if m := appNameRe.FindStringSubmatch(line); m != nil {
					s.App = m[1]
				}
			}
		}
		if s.Volume == 0 && s.App == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
