package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Alert is one published alert row as detected by the pipeline. Overrides
// are stored separately and overlaid at read time by the serving layer.
type Alert struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Severity           string    `json:"severity"`
	Status             string    `json:"status"`
	Source             string    `json:"source"`
	Timestamp          time.Time `json:"timestamp"`
	Description        string    `json:"description"`
	Assignee           string    `json:"assignee,omitempty"`
	OwnerRaw           string    `json:"-"`
	Tactics            []string  `json:"tactics"`
	AffectedEntities   []string  `json:"affectedEntities"`
	RecommendedActions []string  `json:"recommendedActions"`
}

// LogEntry is one published log row.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	IPAddress string    `json:"ipAddress,omitempty"`
	User      string    `json:"user,omitempty"`
	Status    string    `json:"status"`
}

// AlertOverride is an analyst correction to a detected alert. It always
// wins over the detected values when both exist.
type AlertOverride struct {
	AlertID   string    `json:"alert_id"`
	Status    string    `json:"status,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

const alertColumns = `
	id, title, severity, status, source, timestamp, description,
	COALESCE(assignee, ''), COALESCE(owner_raw, ''),
	tactics, affected_entities, recommended_actions
`

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	err := row.Scan(
		&a.ID, &a.Title, &a.Severity, &a.Status, &a.Source, &a.Timestamp,
		&a.Description, &a.Assignee, &a.OwnerRaw,
		&a.Tactics, &a.AffectedEntities, &a.RecommendedActions,
	)
	return a, err
}

// ListAlerts returns published alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 200
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx, `
		SELECT `+alertColumns+`
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify("ListAlerts", "alerts", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, classify("ListAlerts", "alerts", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListAlerts", "alerts", err)
	}
	return alerts, nil
}

// GetAlert returns one alert by id, or ErrNotFound.
func (s *Store) GetAlert(ctx context.Context, id string) (Alert, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	alert, err := scanAlert(s.pool.QueryRow(qctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, &Error{Op: "GetAlert", Table: "alerts", Err: ErrNotFound}
	}
	if err != nil {
		return Alert{}, classify("GetAlert", "alerts", err)
	}
	return alert, nil
}

// ListLogs returns published log entries, newest first.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 500
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx, `
		SELECT id, timestamp, severity, source, category, message,
		       COALESCE(ip_address, ''), COALESCE(username, ''), status
		FROM logs
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify("ListLogs", "logs", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var entry LogEntry
		if err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.Severity, &entry.Source,
			&entry.Category, &entry.Message, &entry.IPAddress, &entry.User, &entry.Status,
		); err != nil {
			return nil, classify("ListLogs", "logs", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListLogs", "logs", err)
	}
	return logs, nil
}

// GetOverride returns the override for one alert, or ErrNotFound.
func (s *Store) GetOverride(ctx context.Context, alertID string) (AlertOverride, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var ov AlertOverride
	err := s.pool.QueryRow(qctx, `
		SELECT alert_id, COALESCE(status, ''), COALESCE(assignee, ''), updated_at, updated_by
		FROM alert_overrides
		WHERE alert_id = $1
	`, alertID).Scan(&ov.AlertID, &ov.Status, &ov.Assignee, &ov.UpdatedAt, &ov.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return AlertOverride{}, &Error{Op: "GetOverride", Table: "alert_overrides", Err: ErrNotFound}
	}
	if err != nil {
		return AlertOverride{}, classify("GetOverride", "alert_overrides", err)
	}
	return ov, nil
}

// ListOverrides returns all overrides keyed by alert id.
func (s *Store) ListOverrides(ctx context.Context) (map[string]AlertOverride, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx, `
		SELECT alert_id, COALESCE(status, ''), COALESCE(assignee, ''), updated_at, updated_by
		FROM alert_overrides
	`)
	if err != nil {
		return nil, classify("ListOverrides", "alert_overrides", err)
	}
	defer rows.Close()

	overrides := make(map[string]AlertOverride)
	for rows.Next() {
		var ov AlertOverride
		if err := rows.Scan(&ov.AlertID, &ov.Status, &ov.Assignee, &ov.UpdatedAt, &ov.UpdatedBy); err != nil {
			return nil, classify("ListOverrides", "alert_overrides", err)
		}
		overrides[ov.AlertID] = ov
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListOverrides", "alert_overrides", err)
	}
	return overrides, nil
}

// UpsertOverride stores an analyst override, last write winning per alert.
func (s *Store) UpsertOverride(ctx context.Context, ov AlertOverride) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(qctx, `
		INSERT INTO alert_overrides (alert_id, status, assignee, updated_at, updated_by)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), now(), $4)
		ON CONFLICT (alert_id) DO UPDATE
		SET status = COALESCE(NULLIF(EXCLUDED.status, ''), alert_overrides.status),
		    assignee = COALESCE(NULLIF(EXCLUDED.assignee, ''), alert_overrides.assignee),
		    updated_at = EXCLUDED.updated_at,
		    updated_by = EXCLUDED.updated_by
	`, ov.AlertID, ov.Status, ov.Assignee, ov.UpdatedBy)
	if err != nil {
		return classify("UpsertOverride", "alert_overrides", err)
	}
	return nil
}
