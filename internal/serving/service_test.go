package serving

import (
	"context"
	"testing"
	"time"

	"sentrydeck/internal/storage"
)

func TestNormalizeAssignee(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain string", raw: "  Jordan Reyes  ", want: "Jordan Reyes"},
		{name: "empty", raw: "", want: ""},
		{name: "whitespace", raw: "   ", want: ""},
		{name: "literal null", raw: "null", want: ""},
		{name: "literal undefined", raw: "Undefined", want: ""},
		{
			name: "owner object prefers email over display name",
			raw:  `{"email":"a@b.com","displayName":"A B"}`,
			want: "a@b.com",
		},
		{
			name: "owner object assignedTo wins",
			raw:  `{"assignedTo":"soc@contoso.com","email":"a@b.com"}`,
			want: "soc@contoso.com",
		},
		{
			name: "owner object falls through to objectId",
			raw:  `{"objectId":"11111111-2222-3333-4444-555555555555"}`,
			want: "11111111-2222-3333-4444-555555555555",
		},
		{name: "empty object", raw: "{}", want: ""},
		{name: "unparseable json", raw: `{"email":`, want: ""},
		{name: "array", raw: `["a@b.com"]`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAssignee(tt.raw); got != tt.want {
				t.Errorf("NormalizeAssignee(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	alert := storage.Alert{Status: "new"}

	if got := EffectiveStatus(alert, storage.AlertOverride{}); got != "new" {
		t.Errorf("no override: got %q, want new", got)
	}
	if got := EffectiveStatus(alert, storage.AlertOverride{Status: "resolved"}); got != "resolved" {
		t.Errorf("with override: got %q, want resolved", got)
	}
}

func TestEffectiveAssignee(t *testing.T) {
	tests := []struct {
		name  string
		alert storage.Alert
		ov    storage.AlertOverride
		want  string
	}{
		{
			name:  "override wins",
			alert: storage.Alert{Assignee: "detected@contoso.com"},
			ov:    storage.AlertOverride{Assignee: "analyst@contoso.com"},
			want:  "analyst@contoso.com",
		},
		{
			name:  "detected assignee next",
			alert: storage.Alert{Assignee: "detected@contoso.com", OwnerRaw: `{"email":"owner@contoso.com"}`},
			want:  "detected@contoso.com",
		},
		{
			name:  "owner document last",
			alert: storage.Alert{Assignee: "null", OwnerRaw: `{"email":"owner@contoso.com"}`},
			want:  "owner@contoso.com",
		},
		{
			name: "nothing resolves",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveAssignee(tt.alert, tt.ov); got != tt.want {
				t.Errorf("EffectiveAssignee() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeServingStore struct {
	alerts    map[string]storage.Alert
	overrides map[string]storage.AlertOverride
	logs      []storage.LogEntry
}

func (f *fakeServingStore) ListAlerts(_ context.Context, _ int) ([]storage.Alert, error) {
	out := make([]storage.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeServingStore) GetAlert(_ context.Context, id string) (storage.Alert, error) {
	alert, ok := f.alerts[id]
	if !ok {
		return storage.Alert{}, &storage.Error{Op: "GetAlert", Table: "alerts", Err: storage.ErrNotFound}
	}
	return alert, nil
}

func (f *fakeServingStore) ListLogs(_ context.Context, _ int) ([]storage.LogEntry, error) {
	return f.logs, nil
}

func (f *fakeServingStore) ListOverrides(_ context.Context) (map[string]storage.AlertOverride, error) {
	return f.overrides, nil
}

func (f *fakeServingStore) GetOverride(_ context.Context, id string) (storage.AlertOverride, error) {
	ov, ok := f.overrides[id]
	if !ok {
		return storage.AlertOverride{}, &storage.Error{Op: "GetOverride", Table: "alert_overrides", Err: storage.ErrNotFound}
	}
	return ov, nil
}

func (f *fakeServingStore) UpsertOverride(_ context.Context, ov storage.AlertOverride) error {
	if f.overrides == nil {
		f.overrides = make(map[string]storage.AlertOverride)
	}
	existing := f.overrides[ov.AlertID]
	if ov.Status == "" {
		ov.Status = existing.Status
	}
	if ov.Assignee == "" {
		ov.Assignee = existing.Assignee
	}
	ov.UpdatedAt = time.Now()
	f.overrides[ov.AlertID] = ov
	return nil
}

func newTestService(store Store) *Service {
	return NewService(store, nil, nil)
}

func TestService_GetAlert_AppliesOverride(t *testing.T) {
	store := &fakeServingStore{
		alerts: map[string]storage.Alert{
			"incident-42": {ID: "incident-42", Status: "new", Assignee: "null", OwnerRaw: `{"email":"owner@contoso.com"}`},
		},
		overrides: map[string]storage.AlertOverride{
			"incident-42": {AlertID: "incident-42", Status: "investigating"},
		},
	}

	alert, err := newTestService(store).GetAlert(context.Background(), "incident-42")
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if alert.Status != "investigating" {
		t.Errorf("Status = %q, want investigating", alert.Status)
	}
	if alert.Assignee != "owner@contoso.com" {
		t.Errorf("Assignee = %q, want owner@contoso.com", alert.Assignee)
	}
}

func TestService_GetAlert_NoOverride(t *testing.T) {
	store := &fakeServingStore{
		alerts: map[string]storage.Alert{
			"incident-42": {ID: "incident-42", Status: "new"},
		},
	}

	alert, err := newTestService(store).GetAlert(context.Background(), "incident-42")
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if alert.Status != "new" {
		t.Errorf("Status = %q, want new", alert.Status)
	}
}

func TestService_ApplyOverride(t *testing.T) {
	store := &fakeServingStore{
		alerts: map[string]storage.Alert{
			"incident-42": {ID: "incident-42", Status: "new"},
		},
	}
	svc := newTestService(store)

	alert, err := svc.ApplyOverride(context.Background(), "incident-42", OverrideRequest{
		Status:    "Resolved",
		UpdatedBy: "analyst@contoso.com",
	})
	if err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}
	if alert.Status != "resolved" {
		t.Errorf("Status = %q, want resolved", alert.Status)
	}

	// A later assignee-only override keeps the earlier status.
	alert, err = svc.ApplyOverride(context.Background(), "incident-42", OverrideRequest{
		Assignee: `{"email":"a@b.com","displayName":"A B"}`,
	})
	if err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}
	if alert.Status != "resolved" {
		t.Errorf("Status after assignee override = %q, want resolved", alert.Status)
	}
	if alert.Assignee != "a@b.com" {
		t.Errorf("Assignee = %q, want a@b.com", alert.Assignee)
	}
}

func TestService_ApplyOverride_Invalid(t *testing.T) {
	store := &fakeServingStore{
		alerts: map[string]storage.Alert{"incident-42": {ID: "incident-42", Status: "new"}},
	}
	svc := newTestService(store)

	if _, err := svc.ApplyOverride(context.Background(), "incident-42", OverrideRequest{Status: "escalated"}); err == nil {
		t.Error("unknown status should be rejected")
	}
	if _, err := svc.ApplyOverride(context.Background(), "incident-42", OverrideRequest{}); err == nil {
		t.Error("empty override should be rejected")
	}
	if _, err := svc.ApplyOverride(context.Background(), "nope", OverrideRequest{Status: "resolved"}); !storage.IsNotFound(err) {
		t.Errorf("override against a missing alert: err = %v, want not found", err)
	}
}

func TestService_ListAlerts_AppliesOverrides(t *testing.T) {
	store := &fakeServingStore{
		alerts: map[string]storage.Alert{
			"a": {ID: "a", Status: "new"},
			"b": {ID: "b", Status: "new"},
		},
		overrides: map[string]storage.AlertOverride{
			"b": {AlertID: "b", Status: "dismissed", Assignee: "analyst@contoso.com"},
		},
	}

	alerts, err := newTestService(store).ListAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}

	byID := make(map[string]storage.Alert, len(alerts))
	for _, a := range alerts {
		byID[a.ID] = a
	}
	if byID["a"].Status != "new" {
		t.Errorf("alert a status = %q, want new", byID["a"].Status)
	}
	if byID["b"].Status != "dismissed" {
		t.Errorf("alert b status = %q, want dismissed", byID["b"].Status)
	}
	if byID["b"].Assignee != "analyst@contoso.com" {
		t.Errorf("alert b assignee = %q", byID["b"].Assignee)
	}
}
