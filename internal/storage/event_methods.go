package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lte-gateway/enodebd/internal/models"
)

const eventColumns = "id, created_at, serial, type, level, code, description, details"

// CreateEventLog appends an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `INSERT INTO event_logs (` + eventColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	serial := sql.NullString{String: event.Serial, Valid: event.Serial != ""}
	if _, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, serial, event.Type, event.Level,
		event.Code, event.Description, event.Details,
	); err != nil {
		return fmt.Errorf("create event log: %w", err)
	}
	return nil
}

// eventFilter turns EventLogFilters into a WHERE clause with positional args
type eventFilter struct {
	conds []string
	args  []interface{}
}

func newEventFilter(f EventLogFilters) *eventFilter {
	q := &eventFilter{}
	if f.Serial != nil {
		q.add("serial =", *f.Serial)
	}
	if f.Type != nil {
		q.add("type =", *f.Type)
	}
	if f.Level != nil {
		q.add("level =", *f.Level)
	}
	if f.StartTime != nil {
		q.add("created_at >=", *f.StartTime)
	}
	if f.EndTime != nil {
		q.add("created_at <=", *f.EndTime)
	}
	return q
}

func (q *eventFilter) add(cond string, arg interface{}) {
	q.args = append(q.args, arg)
	q.conds = append(q.conds, fmt.Sprintf("%s $%d", cond, len(q.args)))
}

func (q *eventFilter) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// ListEventLogs lists event logs newest first
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	q := newEventFilter(filters)

	var count int64
	if err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_logs"+q.where(), q.args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count event logs: %w", err)
	}

	n := len(q.args)
	query := fmt.Sprintf("SELECT %s FROM event_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		eventColumns, q.where(), n+1, n+2)
	rows, err := s.getDB().QueryContext(ctx, query, append(q.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list event logs: %w", err)
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		var serial sql.NullString
		if err := rows.Scan(
			&event.ID, &event.CreatedAt, &serial, &event.Type, &event.Level,
			&event.Code, &event.Description, &event.Details,
		); err != nil {
			return nil, 0, err
		}
		event.Serial = serial.String
		events = append(events, event)
	}
	return events, count, rows.Err()
}
