package serving

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sentrydeck/internal/storage"
)

// Store is the read/override surface the service composes.
type Store interface {
	ListAlerts(ctx context.Context, limit int) ([]storage.Alert, error)
	GetAlert(ctx context.Context, id string) (storage.Alert, error)
	ListLogs(ctx context.Context, limit int) ([]storage.LogEntry, error)
	ListOverrides(ctx context.Context) (map[string]storage.AlertOverride, error)
	GetOverride(ctx context.Context, alertID string) (storage.AlertOverride, error)
	UpsertOverride(ctx context.Context, ov storage.AlertOverride) error
}

var allowedStatuses = map[string]struct{}{
	"new":           {},
	"in_progress":   {},
	"investigating": {},
	"resolved":      {},
	"dismissed":     {},
}

// Service serves alerts and logs with analyst overrides laid on top of
// the detected values.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// EffectiveStatus returns the override status when set, else the detected one.
func EffectiveStatus(alert storage.Alert, ov storage.AlertOverride) string {
	if ov.Status != "" {
		return ov.Status
	}
	return alert.Status
}

// EffectiveAssignee resolves the assignee in precedence order: the
// override, the detected assignee, then the raw owner document captured
// at ingest time.
func EffectiveAssignee(alert storage.Alert, ov storage.AlertOverride) string {
	if assignee := NormalizeAssignee(ov.Assignee); assignee != "" {
		return assignee
	}
	if assignee := NormalizeAssignee(alert.Assignee); assignee != "" {
		return assignee
	}
	return NormalizeAssignee(alert.OwnerRaw)
}

func reconcile(alert storage.Alert, ov storage.AlertOverride) storage.Alert {
	alert.Status = EffectiveStatus(alert, ov)
	alert.Assignee = EffectiveAssignee(alert, ov)
	return alert
}

// ListAlerts returns alerts with overrides applied, newest first.
func (s *Service) ListAlerts(ctx context.Context, limit int) ([]storage.Alert, error) {
	if alerts, ok := s.cachedAlerts(ctx, limit); ok {
		return alerts, nil
	}

	alerts, err := s.store.ListAlerts(ctx, limit)
	if err != nil {
		return nil, err
	}

	overrides, err := s.store.ListOverrides(ctx)
	if err != nil {
		return nil, err
	}

	for i, alert := range alerts {
		alerts[i] = reconcile(alert, overrides[alert.ID])
	}

	s.storeCachedAlerts(ctx, limit, alerts)
	return alerts, nil
}

// GetAlert returns one alert with its override applied.
func (s *Service) GetAlert(ctx context.Context, id string) (storage.Alert, error) {
	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return storage.Alert{}, err
	}

	ov, err := s.store.GetOverride(ctx, id)
	if err != nil && !storage.IsNotFound(err) {
		return storage.Alert{}, err
	}
	return reconcile(alert, ov), nil
}

// ListLogs returns published log entries, newest first.
func (s *Service) ListLogs(ctx context.Context, limit int) ([]storage.LogEntry, error) {
	return s.store.ListLogs(ctx, limit)
}

// OverrideRequest carries an analyst's correction to an alert. Empty
// fields leave the current value alone.
type OverrideRequest struct {
	Status    string `json:"status,omitempty"`
	Assignee  string `json:"assignee,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// ApplyOverride validates and stores a correction, then returns the
// reconciled alert.
func (s *Service) ApplyOverride(ctx context.Context, alertID string, req OverrideRequest) (storage.Alert, error) {
	status := strings.TrimSpace(strings.ToLower(req.Status))
	if status != "" {
		if _, ok := allowedStatuses[status]; !ok {
			return storage.Alert{}, fmt.Errorf("serving: invalid status %q", req.Status)
		}
	}

	assignee := NormalizeAssignee(req.Assignee)
	if status == "" && assignee == "" {
		return storage.Alert{}, fmt.Errorf("serving: override carries no changes")
	}

	// The alert must exist before an override is accepted.
	if _, err := s.store.GetAlert(ctx, alertID); err != nil {
		return storage.Alert{}, err
	}

	if err := s.store.UpsertOverride(ctx, storage.AlertOverride{
		AlertID:   alertID,
		Status:    status,
		Assignee:  assignee,
		UpdatedBy: req.UpdatedBy,
	}); err != nil {
		return storage.Alert{}, err
	}

	s.invalidateAlerts(ctx)
	s.logger.Info("alert override applied",
		"alert_id", alertID,
		"status", status,
		"assignee", assignee,
	)

	return s.GetAlert(ctx, alertID)
}

func (s *Service) cachedAlerts(ctx context.Context, limit int) ([]storage.Alert, bool) {
	if s.cache == nil {
		return nil, false
	}
	var alerts []storage.Alert
	if err := s.cache.Get(ctx, alertsKey(limit), &alerts); err != nil {
		return nil, false
	}
	return alerts, true
}

func (s *Service) storeCachedAlerts(ctx context.Context, limit int, alerts []storage.Alert) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, alertsKey(limit), alerts); err != nil {
		s.logger.Debug("alert cache write failed", "error", err)
	}
}

func (s *Service) invalidateAlerts(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, alertsPrefix); err != nil {
		s.logger.Debug("alert cache invalidation failed", "error", err)
	}
}

const alertsPrefix = "sentrydeck:alerts"

func alertsKey(limit int) string {
	return fmt.Sprintf("%s:%d", alertsPrefix, limit)
}
