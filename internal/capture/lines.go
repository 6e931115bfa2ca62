package capture

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// Lines recognizes typed utterances, one per non-blank line. It stands in for
// a microphone in terminals and scripted runs.
type Lines struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
}

func NewLines(r io.Reader) *Lines {
	return &Lines{scanner: bufio.NewScanner(r)}
}

func (l *Lines) Recognize(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !l.scanner.Scan() {
			if err := l.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		if line := strings.TrimSpace(l.scanner.Text()); line != "" {
			return line, nil
		}
	}
}
