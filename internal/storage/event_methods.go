package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
)

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO event_logs (
			id, created_at, session_id, type, level, code, description, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.SessionID, event.Type,
		event.Level, event.Code, event.Description, event.Details,
	)

	return err
}

// ListEventLogs lists event logs with filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	where, args := buildEventLogFilters(filters)

	var total int64
	countQuery := "SELECT COUNT(*) FROM event_logs WHERE 1=1" + where
	if err := s.getDB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, created_at, session_id, type, level, code, description, details
		FROM event_logs WHERE 1=1%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		var event models.EventLog
		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.SessionID, &event.Type,
			&event.Level, &event.Code, &event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, &event)
	}

	return events, total, rows.Err()
}

// buildEventLogFilters builds the WHERE clause tail for event queries
func buildEventLogFilters(filters EventLogFilters) (string, []interface{}) {
	where := ""
	args := []interface{}{}

	if filters.SessionID != nil {
		args = append(args, *filters.SessionID)
		where += fmt.Sprintf(" AND session_id = $%d", len(args))
	}

	if filters.Type != nil {
		args = append(args, *filters.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	if filters.Level != nil {
		args = append(args, *filters.Level)
		where += fmt.Sprintf(" AND level = $%d", len(args))
	}

	if filters.StartTime != nil {
		args = append(args, *filters.StartTime)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	if filters.EndTime != nil {
		args = append(args, *filters.EndTime)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	return where, args
}
