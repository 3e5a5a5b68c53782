// Package classify maps raw tabular rows onto the normalized event fields:
// timestamp, severity, status, and identity. The heuristics are tuned per
// source kind; candidate lists and thresholds come from the exports this
// system actually ingests and are not meant to generalize.
package classify

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"sentrydeck/internal/payload"
)

// ErrMissingTimestamp marks a row whose timestamp could not be resolved from
// any candidate column. Such rows are rejected, never silently dropped.
var ErrMissingTimestamp = errors.New("classify: no timestamp candidate resolved")

// SourceKind tags the origin of a CSV export.
type SourceKind string

const (
	KindIncident      SourceKind = "incident"
	KindActivity      SourceKind = "activity"
	KindFirewall      SourceKind = "firewall"
	KindSecurityEvent SourceKind = "security_event"
)

// Severity levels produced by normalization.
const (
	SeverityCritical      = "critical"
	SeverityHigh          = "high"
	SeverityMedium        = "medium"
	SeverityLow           = "low"
	SeverityInformational = "informational"
)

// Status values produced by normalization. Incidents use in_progress where
// the other kinds use investigating.
const (
	StatusNew           = "new"
	StatusInProgress    = "in_progress"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusDismissed     = "dismissed"
)

// RawRow maps lower-cased, trimmed column names to cell values.
type RawRow map[string]string

// Get returns the first non-empty cell among the named columns. Lookup is
// case-insensitive because RawRow keys are already lower-cased.
func (r RawRow) Get(keys ...string) string {
	for _, key := range keys {
		if value, ok := r[strings.ToLower(key)]; ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// timestampCandidates lists, per kind, the columns tried for the event
// timestamp. First parseable value wins; order matters.
var timestampCandidates = map[SourceKind][]string{
	KindIncident: {
		"timegenerated [utc]",
		"createdtime [utc]",
		"firstactivitytime [utc]",
		"lastactivitytime [utc]",
		"closedtime [utc]",
	},
	KindActivity: {
		"timegenerated [utc]",
		"eventsubmissiontimestamp [utc]",
	},
	KindFirewall: {
		"timegenerated [utc]",
		"starttime [utc]",
		"endtime [utc]",
		"receipttime",
	},
	KindSecurityEvent: {
		"timegenerated [utc]",
		"eventsubmissiontimestamp [utc]",
		"timecollected [utc]",
	},
}

// ParseTimestamp parses a single cell into a time. Some exports embed stray
// commas in their date formats; if the value does not parse as-is, it is
// retried with commas stripped.
func ParseTimestamp(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if parsed, err := dateparse.ParseAny(trimmed); err == nil {
		return parsed.UTC(), true
	}
	stripped := strings.TrimSpace(strings.ReplaceAll(trimmed, ",", ""))
	if stripped == "" || stripped == trimmed {
		return time.Time{}, false
	}
	parsed, err := dateparse.ParseAny(stripped)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// ResolveTimestamp finds the event time from the kind-specific candidate
// columns. Unknown kinds fall back to the security-event candidates.
func ResolveTimestamp(row RawRow, kind SourceKind) (time.Time, bool) {
	fields, ok := timestampCandidates[kind]
	if !ok {
		fields = timestampCandidates[KindSecurityEvent]
	}
	for _, field := range fields {
		if parsed, ok := ParseTimestamp(row.Get(field)); ok {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// severitySubstrings lists, per kind, substring rules for non-numeric
// severity values, applied in order.
var severitySubstrings = map[SourceKind][]struct{ needle, out string }{
	KindIncident: {
		{"critical", SeverityCritical},
		{"high", SeverityHigh},
		{"medium", SeverityMedium},
		{"low", SeverityLow},
		{"informational", SeverityLow},
		{"info", SeverityLow},
	},
	KindActivity: {
		{"critical", SeverityCritical},
		{"error", SeverityHigh},
		{"failed", SeverityHigh},
		{"warning", SeverityMedium},
		{"warn", SeverityMedium},
		{"information", SeverityInformational},
		{"success", SeverityInformational},
	},
	KindFirewall: {
		{"critical", SeverityCritical},
		{"high", SeverityHigh},
		{"notice", SeverityMedium},
		{"warning", SeverityMedium},
		{"info", SeverityInformational},
		{"informational", SeverityInformational},
	},
	KindSecurityEvent: {
		{"critical", SeverityCritical},
		{"error", SeverityHigh},
		{"high", SeverityHigh},
		{"warning", SeverityMedium},
		{"warn", SeverityMedium},
		{"informational", SeverityInformational},
		{"success", SeverityInformational},
	},
}

// NormalizeSeverity maps a raw severity cell to a canonical level. Numeric
// values use kind-specific thresholds; the boundaries are domain-tuned per
// export format and intentionally not unified across kinds. Windows event
// levels in particular are not linear risk scores: common exports carry
// 0/4/8 for informational classes.
func NormalizeSeverity(raw string, kind SourceKind) string {
	value := strings.ToLower(strings.TrimSpace(raw))

	if numeric, err := strconv.ParseFloat(value, 64); err == nil {
		switch kind {
		case KindIncident:
			switch {
			case numeric >= 3:
				return SeverityCritical
			case numeric >= 2:
				return SeverityHigh
			case numeric >= 1:
				return SeverityMedium
			default:
				return SeverityLow
			}
		case KindSecurityEvent:
			switch numeric {
			case 1:
				return SeverityCritical
			case 2:
				return SeverityHigh
			case 3:
				return SeverityMedium
			case 0, 4, 8:
				return SeverityLow
			default:
				return SeverityMedium
			}
		case KindFirewall:
			switch {
			case numeric >= 8:
				return SeverityHigh
			case numeric >= 5:
				return SeverityMedium
			case numeric >= 3:
				return SeverityMedium
			default:
				return SeverityLow
			}
		case KindActivity:
			switch {
			case numeric >= 8:
				return SeverityHigh
			case numeric >= 5:
				return SeverityMedium
			case numeric >= 3:
				return SeverityMedium
			default:
				return SeverityInformational
			}
		default:
			switch {
			case numeric >= 8:
				return SeverityHigh
			case numeric >= 5:
				return SeverityMedium
			case numeric >= 3:
				return SeverityMedium
			default:
				return SeverityLow
			}
		}
	}

	rules, ok := severitySubstrings[kind]
	if !ok {
		rules = severitySubstrings[KindSecurityEvent]
	}
	for _, rule := range rules {
		if strings.Contains(value, rule.needle) {
			return rule.out
		}
	}
	return SeverityLow
}

// NormalizeStatus maps a raw status cell to a canonical status. The rules
// run in fixed priority order; incidents report in_progress where the other
// kinds report investigating.
func NormalizeStatus(raw string, kind SourceKind) string {
	value := strings.ToLower(raw)
	switch {
	case strings.Contains(value, "resolved"),
		strings.Contains(value, "closed"),
		strings.Contains(value, "complete"),
		strings.Contains(value, "success"):
		return StatusResolved
	case strings.Contains(value, "dismiss"), strings.Contains(value, "false"):
		return StatusDismissed
	case strings.Contains(value, "progress"),
		strings.Contains(value, "active"),
		strings.Contains(value, "investigat"):
		if kind == KindIncident {
			return StatusInProgress
		}
		return StatusInvestigating
	default:
		return StatusNew
	}
}

// Owner holds the principal fields recovered from an incident owner blob.
type Owner struct {
	Assignee string
	Actor    string
}

// ParseIncidentOwner decodes the JSON owner blob attached to incident rows.
// Non-JSON or array-shaped input yields an empty Owner.
func ParseIncidentOwner(raw string) Owner {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Owner{}
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return Owner{}
	}

	pick := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := record[key]; ok {
				if text := strings.TrimSpace(stringify(value)); text != "" {
					return text
				}
			}
		}
		return ""
	}

	return Owner{
		Assignee: pick("assignedTo", "userPrincipalName", "email", "objectId"),
		Actor:    pick("userPrincipalName", "email", "assignedTo", "objectId"),
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// FormatProviderLabel reduces a resource-provider identifier to a readable
// label. Values that already read like plain words pass through untouched.
func FormatProviderLabel(provider string) string {
	raw := strings.TrimSpace(provider)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, ".") && strings.ToUpper(raw) != raw {
		return raw
	}

	trimmed := raw
	if len(raw) >= len("microsoft.") && strings.EqualFold(raw[:len("microsoft.")], "microsoft.") {
		trimmed = raw[len("microsoft."):]
	}
	tokens := strings.Split(trimmed, ".")
	label := tokens[len(tokens)-1]
	if label == "" {
		label = raw
	}

	return payload.FormatOperationTitle(label)
}
