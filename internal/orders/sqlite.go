package orders

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"daebak/internal/dialogue"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Book keeps confirmed orders in sqlite.
type Book struct {
	db *sql.DB
}

// OpenBook opens (creating if needed) the order book at path. ":memory:"
// is accepted for tests.
func OpenBook(path string) (*Book, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// an in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)

	b, err := NewBook(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func NewBook(db *sql.DB) (*Book, error) {
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Book{db: db}, nil
}

func (b *Book) Close() error { return b.db.Close() }

func (b *Book) Save(ctx context.Context, r Record) error {
	const q = `INSERT INTO orders (
		session_id, dinner, style, baguette_count, champagne_count, delivery_date, confirmed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := b.db.ExecContext(ctx, q,
		r.SessionID, r.Order.Dinner, string(r.Order.Style), r.Order.Baguettes, r.Order.Champagne,
		r.Order.DeliveryDate, r.ConfirmedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// List returns the newest orders first.
func (b *Book) List(ctx context.Context, limit int) ([]Record, error) {
	const q = `
		SELECT id, session_id, dinner, style, baguette_count, champagne_count, delivery_date, confirmed_at
		FROM orders
		ORDER BY id DESC
		LIMIT ?`

	rows, err := b.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r     Record
			style string
			at    string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Order.Dinner, &style, &r.Order.Baguettes,
			&r.Order.Champagne, &r.Order.DeliveryDate, &at); err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		r.Order.Style = dialogue.Style(style)
		if r.ConfirmedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("order %d: bad timestamp: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}
