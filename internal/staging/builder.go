package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sentrydeck/internal/classify"
)

// Columns that carry a stable natural identifier for a row. When one is
// present the event UID derives from it; otherwise a content hash stands in.
var naturalIDColumns = []string{"eventdataid", "incidentnumber", "correlationid"}

// Fixed triage guidance attached to every staged record.
var defaultRecommendedActions = []string{
	"Review event context",
	"Validate source and actor",
	"Document triage outcome",
}

// Builder turns classified rows into validated staging records.
type Builder struct {
	validate *validator.Validate
}

// NewBuilder creates a Builder with its own validator instance.
func NewBuilder() *Builder {
	return &Builder{validate: validator.New()}
}

// Build assembles and validates the staging record for one row. The caller
// has already classified the row; classification failures never reach here.
func (b *Builder) Build(runID uuid.UUID, row classify.RawRow, c *classify.Classified, fileName string, rowNumber int) (*Record, error) {
	eventUID := BuildEventUID(row, fileName, c)
	rowHash := HashRow(row)

	isIncident := c.Kind == classify.KindIncident
	isHighRisk := c.Severity == classify.SeverityCritical || c.Severity == classify.SeverityHigh

	source := c.ProviderLabel
	if source == "" {
		source = c.Source
	}

	assignee := ""
	if isIncident {
		assignee = c.Owner.Assignee
		if assignee == "" {
			assignee = row.Get("assignedto")
		}
	}

	record := &Record{
		IngestRunID:     runID,
		EventUID:        eventUID,
		SourceFile:      fileName,
		SourceKind:      c.Kind,
		SourceRowNumber: rowNumber,

		OccurredAt: c.OccurredAt,
		Severity:   c.Severity,
		Status:     c.Status,

		Source:    source,
		Provider:  c.Provider,
		Category:  c.Category,
		EventCode: c.EventCode,
		EventName: c.EventName,
		Actor:     c.Actor,
		Resource:  c.Resource,
		IPAddress: c.IPAddress,

		Title:       c.Title,
		Description: c.Description,
		Summary:     c.Description,
		Assignee:    assignee,

		PayloadRaw:  c.PayloadRaw,
		PayloadJSON: c.PayloadTree,
		ParsedFacts: buildParsedFacts(row, c, source),
		RawRow:      row,
		RowHash:     rowHash,

		Tactics:            toArrayValue(c.Category, string(c.Kind)),
		AffectedEntities:   toArrayValue(c.Resource, c.Actor),
		RecommendedActions: defaultRecommendedActions,

		IsAlertCandidate: isIncident || isHighRisk,
	}

	if err := b.validate.Struct(record); err != nil {
		return nil, fmt.Errorf("staging record invalid: %w", err)
	}
	return record, nil
}

// BuildEventUID computes the idempotency key for a row. A stable natural id
// wins when present; otherwise the UID is a content hash over the inputs
// that identify one logical event. Two genuinely distinct events sharing all
// hash inputs will collide; that approximation is accepted.
func BuildEventUID(row classify.RawRow, fileName string, c *classify.Classified) string {
	if stable := row.Get(naturalIDColumns...); stable != "" {
		return fmt.Sprintf("%s-%s", c.Kind, strings.ToLower(stable))
	}

	digest := stableHash(
		fileName,
		c.OccurredAt.UTC().Format(time.RFC3339),
		c.EventName,
		c.Resource,
		c.Actor,
		c.Description,
	)
	return fmt.Sprintf("%s-%s", c.Kind, digest)
}

// HashRow fingerprints the raw row for audit and debugging. The hash plays
// no part in deduplication. Go serializes map keys in sorted order, so the
// digest is deterministic.
func HashRow(row classify.RawRow) string {
	encoded, err := json.Marshal(row)
	if err != nil {
		encoded = []byte(fmt.Sprint(row))
	}
	return stableHash(string(encoded))
}

func stableHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// toArrayValue deduplicates the non-empty inputs, preserving order and
// capping the list at six entries. Empty input collapses to ["Unknown"].
func toArrayValue(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
		if len(out) == 6 {
			break
		}
	}
	if len(out) == 0 {
		return []string{"Unknown"}
	}
	return out
}

// buildParsedFacts assembles the derived-fact document from the classified
// row plus the loosely-typed extras buried in the additionaldata column.
func buildParsedFacts(row classify.RawRow, c *classify.Classified, source string) ParsedFacts {
	title := c.Title
	if title == "" {
		title = c.EventName
	}
	if title == "" {
		title = "Event"
	}
	summary := c.Description
	if summary == "" {
		summary = "No description provided."
	}
	status := c.Status
	if status == "" {
		status = classify.StatusNew
	}
	provider := c.Provider
	if provider == "" {
		provider = source
	}
	if provider == "" {
		provider = "Unknown"
	}
	category := c.Category
	if category == "" {
		category = "Unknown"
	}

	tactics, alertCount := parseAdditionalData(row.Get("additionaldata"))

	return ParsedFacts{
		Kind:           c.Kind,
		Title:          title,
		Summary:        summary,
		Status:         status,
		Severity:       c.Severity,
		Source:         source,
		Provider:       provider,
		Category:       category,
		EventCode:      c.EventCode,
		EventName:      c.EventName,
		Actor:          c.Actor,
		Resource:       c.Resource,
		IP:             c.IPAddress,
		IncidentID:     row.Get("incidentnumber", "providerincidentid", "correlationid", "incidentname"),
		Classification: row.Get("classification", "classificationreason"),
		Owner:          row.Get("owner", "assignedto"),
		AlertCount:     alertCount,
		Tactics:        tactics,
		RuleIDs:        parseRuleIDs(row.Get("relatedanalyticruleids")),
		HasPayloadJSON: c.PayloadTree != nil,
	}
}

// parseAdditionalData pulls the tactics list and alert count out of the
// additionaldata JSON blob, tolerating any malformed input.
func parseAdditionalData(raw string) ([]string, string) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ""
	}
	var decoded struct {
		Tactics     []any `json:"tactics"`
		AlertsCount any   `json:"alertsCount"`
	}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, ""
	}

	var tactics []string
	for _, entry := range decoded.Tactics {
		if text := strings.TrimSpace(fmt.Sprint(entry)); text != "" && entry != nil {
			tactics = append(tactics, text)
		}
		if len(tactics) == 10 {
			break
		}
	}

	alertCount := ""
	if decoded.AlertsCount != nil {
		alertCount = strings.TrimSpace(fmt.Sprint(decoded.AlertsCount))
	}
	return tactics, alertCount
}

// parseRuleIDs decodes the related analytic rule id array, capped at ten.
func parseRuleIDs(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var decoded []any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil
	}
	var out []string
	for _, entry := range decoded {
		out = append(out, fmt.Sprint(entry))
		if len(out) == 10 {
			break
		}
	}
	return out
}
