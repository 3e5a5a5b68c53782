package staging

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"sentrydeck/internal/classify"
)

func classified(kind classify.SourceKind) *classify.Classified {
	return &classify.Classified{
		Kind:        kind,
		OccurredAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Severity:    classify.SeverityMedium,
		Status:      classify.StatusNew,
		Source:      "Azure",
		Provider:    "Azure",
		Category:    "Administrative",
		EventName:   "Write Deployment",
		Actor:       "svc@corp.test",
		Resource:    "vm-01",
		Title:       "Write Deployment",
		Description: "Deployment written",
	}
}

func TestBuildEventUID_NaturalID(t *testing.T) {
	row := classify.RawRow{"incidentnumber": "INC-42"}

	uid := BuildEventUID(row, "Incedent.csv", classified(classify.KindIncident))
	if uid != "incident-inc-42" {
		t.Errorf("uid = %q, want incident-inc-42", uid)
	}
}

func TestBuildEventUID_ContentHash(t *testing.T) {
	row := classify.RawRow{"caller": "svc@corp.test"}
	c := classified(classify.KindActivity)

	first := BuildEventUID(row, "AzurActivity.csv", c)
	second := BuildEventUID(row, "AzurActivity.csv", c)

	if first != second {
		t.Errorf("uid not stable: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "activity-") {
		t.Errorf("uid = %q, want activity- prefix", first)
	}
	if len(first) != len("activity-")+64 {
		t.Errorf("uid length = %d, want kind prefix plus sha256 hex", len(first))
	}
}

func TestBuildEventUID_DiffersByContent(t *testing.T) {
	row := classify.RawRow{}
	a := classified(classify.KindActivity)
	b := classified(classify.KindActivity)
	b.Resource = "vm-02"

	if BuildEventUID(row, "f.csv", a) == BuildEventUID(row, "f.csv", b) {
		t.Error("distinct resources must produce distinct uids")
	}
}

func TestHashRow_Deterministic(t *testing.T) {
	row := classify.RawRow{"b": "2", "a": "1"}

	if HashRow(row) != HashRow(classify.RawRow{"a": "1", "b": "2"}) {
		t.Error("row hash must not depend on key order")
	}
	if len(HashRow(row)) != 64 {
		t.Errorf("hash length = %d, want 64", len(HashRow(row)))
	}
}

func TestBuild(t *testing.T) {
	builder := NewBuilder()
	runID := uuid.New()
	row := classify.RawRow{
		"incidentnumber": "7001",
		"additionaldata": `{"tactics":["InitialAccess","Persistence"],"alertsCount":3}`,
	}

	record, err := builder.Build(runID, row, classified(classify.KindIncident), "Incedent.csv", 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if record.EventUID != "incident-7001" {
		t.Errorf("EventUID = %q", record.EventUID)
	}
	if !record.IsAlertCandidate {
		t.Error("incident rows are always alert candidates")
	}
	if record.ParsedFacts.AlertCount != "3" {
		t.Errorf("AlertCount = %q, want 3", record.ParsedFacts.AlertCount)
	}
	if len(record.ParsedFacts.Tactics) != 2 {
		t.Errorf("Tactics = %v", record.ParsedFacts.Tactics)
	}
	if record.ParsedFacts.IncidentID != "7001" {
		t.Errorf("IncidentID = %q", record.ParsedFacts.IncidentID)
	}
}

func TestBuild_AlertCandidateBySeverity(t *testing.T) {
	builder := NewBuilder()
	c := classified(classify.KindActivity)
	c.Severity = classify.SeverityHigh

	record, err := builder.Build(uuid.New(), classify.RawRow{}, c, "AzurActivity.csv", 3)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !record.IsAlertCandidate {
		t.Error("high severity must flag an alert candidate")
	}

	c.Severity = classify.SeverityLow
	record, err = builder.Build(uuid.New(), classify.RawRow{}, c, "AzurActivity.csv", 4)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if record.IsAlertCandidate {
		t.Error("low severity activity must not flag an alert candidate")
	}
}

func TestBuild_Arrays(t *testing.T) {
	builder := NewBuilder()
	c := classified(classify.KindFirewall)
	c.Resource = ""
	c.Actor = ""

	record, err := builder.Build(uuid.New(), classify.RawRow{}, c, "FierWall.csv", 9)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(record.AffectedEntities) != 1 || record.AffectedEntities[0] != "Unknown" {
		t.Errorf("AffectedEntities = %v, want [Unknown]", record.AffectedEntities)
	}
	if len(record.Tactics) != 2 {
		t.Errorf("Tactics = %v, want category plus kind", record.Tactics)
	}
}

func TestBuild_InvalidSeverityRejected(t *testing.T) {
	builder := NewBuilder()
	c := classified(classify.KindActivity)
	c.Severity = "catastrophic"

	if _, err := builder.Build(uuid.New(), classify.RawRow{}, c, "f.csv", 1); err == nil {
		t.Error("invalid severity must fail validation")
	}
}
