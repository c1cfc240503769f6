package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// eventColumns is the column list used for SELECT statements on the events
// table. The payload holds the full event as received; seen is kept in its
// own column because MarkSeen updates it without rewriting the payload.
const eventColumns = `payload, seen`

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var (
		payload []byte
		seen    bool
	)
	if err := row.Scan(&payload, &seen); err != nil {
		return nil, err
	}
	var e model.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	e.Seen = seen
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// nullInt64 converts an optional id to sql.NullInt64.
func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// nullInt converts an optional int to sql.NullInt64.
func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func entityColumns(e *model.Entity) (id *int64, typ string) {
	if e == nil {
		return nil, ""
	}
	v := e.ID
	return &v, e.Type
}
