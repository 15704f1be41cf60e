package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/glebarez/sqlite"

	"otcdesk/core/events"
	"otcdesk/core/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at INTEGER NOT NULL,
    type TEXT NOT NULL,
    attributes TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`

// Journal persists engine events to sqlite for audit and reconciliation. It
// satisfies events.Emitter; persistence failures are logged, never propagated
// into the emitting operation.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// Open opens (creating if necessary) the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Journal{db: db, logger: logger, nowFn: time.Now}, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

type payloadCarrier interface {
	Event() *types.Event
}

// Emit implements events.Emitter.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || j.db == nil || evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType()}
	if carrier, ok := evt.(payloadCarrier); ok && carrier.Event() != nil {
		payload = carrier.Event()
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		j.logger.Error("encode event attributes", "type", payload.Type, "error", err)
		return
	}
	if _, err := j.db.Exec(
		`INSERT INTO events (created_at, type, attributes) VALUES (?, ?, ?)`,
		j.nowFn().Unix(), payload.Type, string(attrs),
	); err != nil {
		j.logger.Error("persist event", "type", payload.Type, "error", err)
	}
}

// Record is one journaled event.
type Record struct {
	ID         int64             `json:"id"`
	CreatedAt  int64             `json:"createdAt"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Recent returns the newest events, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, created_at, type, attributes FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var attrs string
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Type, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode event attributes: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
