// Package orders receives confirmed dinner orders from finished dialogues.
package orders

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"daebak/internal/dialogue"
)

// Record is one confirmed order.
type Record struct {
	ID          int64          `json:"id,omitempty"`
	SessionID   string         `json:"session"`
	Order       dialogue.Order `json:"order"`
	ConfirmedAt time.Time      `json:"confirmedAt"`
}

func NewRecord(sessionID string, o dialogue.Order) Record {
	return Record{SessionID: sessionID, Order: o, ConfirmedAt: time.Now().UTC()}
}

type Sink interface {
	Save(ctx context.Context, r Record) error
}

type SinkFunc func(ctx context.Context, r Record) error

func (f SinkFunc) Save(ctx context.Context, r Record) error { return f(ctx, r) }

// Multi saves to every sink and joins their errors. A failing sink does
// not stop the rest.
type Multi []Sink

func (m Multi) Save(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogOnly records nothing beyond a log line. It is the sink of last resort
// when no store is configured.
func LogOnly(_ context.Context, r Record) error {
	log.Info("order confirmed",
		"session", r.SessionID,
		"dinner", r.Order.Dinner,
		"style", r.Order.Style,
		"baguettes", r.Order.Baguettes,
		"champagne", r.Order.Champagne,
		"delivery", r.Order.DeliveryDate,
	)
	return nil
}
