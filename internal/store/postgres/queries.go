package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/orderby"
	"github.com/alfredjeanlab/cmevents/internal/paginate"
	"github.com/alfredjeanlab/cmevents/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryUpsertEvent(ctx context.Context, db executor, e *model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	entityID, entityType := entityColumns(e.Entity)
	secondaryID, _ := entityColumns(e.SecondaryEntity)

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (
			id, action, status, entity_id, entity_type, secondary_entity_id,
			seen, percent_complete, created, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			action = EXCLUDED.action,
			status = EXCLUDED.status,
			entity_id = EXCLUDED.entity_id,
			entity_type = EXCLUDED.entity_type,
			secondary_entity_id = EXCLUDED.secondary_entity_id,
			seen = events.seen OR EXCLUDED.seen,
			percent_complete = EXCLUDED.percent_complete,
			payload = EXCLUDED.payload,
			updated_at = now()`,
		e.ID,
		string(e.Action),
		string(e.Status),
		nullInt64(entityID),
		nullString(entityType),
		nullInt64(secondaryID),
		e.Seen,
		nullInt(e.PercentComplete),
		e.Created.Time,
		payload,
	)
	return err
}

func queryGetEvent(ctx context.Context, db executor, id int64) (*model.Event, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]model.Event, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Action) > 0 {
		placeholders := make([]string, len(filter.Action))
		for i, a := range filter.Action {
			placeholders[i] = nextArg()
			args = append(args, string(a))
		}
		whereClauses = append(whereClauses, "action IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.EntityType != "" {
		whereClauses = append(whereClauses, "entity_type = "+nextArg())
		args = append(args, filter.EntityType)
	}

	if filter.EntityID != nil {
		p := nextArg()
		whereClauses = append(whereClauses, "(entity_id = "+p+" OR secondary_entity_id = "+p+")")
		args = append(args, *filter.EntityID)
	}

	if filter.Unseen {
		whereClauses = append(whereClauses, "NOT seen")
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	if total == 0 {
		return []model.Event{}, 0, nil
	}

	dataQuery := "SELECT " + eventColumns + " FROM events" + whereSQL + " ORDER BY " + parseSortClause(filter.Sort)
	if size := filter.PageSize; size > 0 && size != paginate.All {
		page := min(max(filter.Page, 1), paginate.Pages(total, size))
		dataQuery += " LIMIT " + nextArg()
		args = append(args, size)
		if offset := (page - 1) * size; offset > 0 {
			dataQuery += " OFFSET " + nextArg()
			args = append(args, offset)
		}
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan events: %w", err)
	}
	return events, total, nil
}

func queryMarkSeen(ctx context.Context, db executor, upToID int64) (int, error) {
	res, err := db.ExecContext(ctx, `UPDATE events SET seen = TRUE, updated_at = now() WHERE id <= $1 AND NOT seen`, upToID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return int(n), nil
}

// sortColumns maps listing sort fields to columns. Ties break newest first,
// matching the cache's stable sort over its newest-first list.
var sortColumns = map[string]string{
	"id":               "id",
	"created":          "created",
	"status":           "status",
	"action":           "action",
	"entity_type":      "entity_type",
	"percent_complete": "percent_complete",
	"seen":             "seen",
}

// parseSortClause converts a sort clause such as "-created" into an ORDER BY
// expression. Unknown fields fall back to store.DefaultSort. NULLs sort
// first ascending and last descending, as in the in-memory cache.
func parseSortClause(clause string) string {
	field, order := orderby.ParseSort(clause)
	col, ok := sortColumns[field]
	if !ok {
		field, order = orderby.ParseSort(store.DefaultSort)
		col = sortColumns[field]
	}
	if col == "id" {
		if order == orderby.Desc {
			return "id DESC"
		}
		return "id ASC"
	}
	if order == orderby.Desc {
		return col + " DESC NULLS LAST, id DESC"
	}
	return col + " ASC NULLS FIRST, id DESC"
}
