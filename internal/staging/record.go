// Package staging builds the canonical staging record for each accepted row.
// Every record carries a stable event UID so re-ingesting the same export is
// idempotent at the staging table.
package staging

import (
	"time"

	"github.com/google/uuid"

	"sentrydeck/internal/classify"
	"sentrydeck/internal/payload"
)

// Record is one normalized staging row, keyed within a run by EventUID.
type Record struct {
	IngestRunID     uuid.UUID           `json:"ingest_run_id" validate:"required"`
	EventUID        string              `json:"event_uid" validate:"required,max=512"`
	SourceFile      string              `json:"source_file" validate:"required"`
	SourceKind      classify.SourceKind `json:"source_kind" validate:"required,oneof=incident activity firewall security_event"`
	SourceRowNumber int                 `json:"source_row_number" validate:"min=1"`

	OccurredAt time.Time `json:"occurred_at" validate:"required"`
	Severity   string    `json:"severity" validate:"required,oneof=critical high medium low informational"`
	Status     string    `json:"status" validate:"required,oneof=new in_progress investigating resolved dismissed"`

	Source    string `json:"source"`
	Provider  string `json:"provider"`
	Category  string `json:"category"`
	EventCode string `json:"event_code,omitempty"`
	EventName string `json:"event_name,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Resource  string `json:"resource,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	Assignee    string `json:"assignee,omitempty"`

	PayloadRaw  string          `json:"payload_raw,omitempty"`
	PayloadJSON payload.Tree    `json:"payload_json,omitempty"`
	ParsedFacts ParsedFacts     `json:"parsed_facts"`
	RawRow      classify.RawRow `json:"raw_row"`
	RowHash     string          `json:"row_hash" validate:"required,len=64"`

	Tactics            []string `json:"tactics"`
	AffectedEntities   []string `json:"affected_entities"`
	RecommendedActions []string `json:"recommended_actions"`

	IsAlertCandidate bool `json:"is_alert_candidate"`
}

// ParsedFacts is the derived-fact document stored alongside each record for
// the dashboard's detail view.
type ParsedFacts struct {
	Kind           classify.SourceKind `json:"kind"`
	Title          string              `json:"title"`
	Summary        string              `json:"summary"`
	Status         string              `json:"status"`
	Severity       string              `json:"severity"`
	Source         string              `json:"source"`
	Provider       string              `json:"provider"`
	Category       string              `json:"category"`
	EventCode      string              `json:"eventCode"`
	EventName      string              `json:"eventName"`
	Actor          string              `json:"actor"`
	Resource       string              `json:"resource"`
	IP             string              `json:"ip"`
	IncidentID     string              `json:"incidentId"`
	Classification string              `json:"classification"`
	Owner          string              `json:"owner"`
	AlertCount     string              `json:"alertCount"`
	Tactics        []string            `json:"tactics"`
	RuleIDs        []string            `json:"ruleIds"`
	HasPayloadJSON bool                `json:"hasPayloadJson"`
}
