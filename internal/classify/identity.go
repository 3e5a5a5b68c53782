package classify

import (
	"time"

	"sentrydeck/internal/payload"
)

// Column candidates for the embedded payload blob, in priority order.
var payloadColumns = []string{
	"eventdata",
	"properties",
	"httprequest",
	"additionalextensions",
	"additionaldata",
	"description",
	"message",
	"comments",
}

// Column and payload-key candidates per identity field. Flat columns are
// always tried before the embedded payload; flipping that order changes
// extraction results, so it is part of the contract.
var (
	severityColumns = []string{"severity", "logseverity", "level", "eventlevelname", "activitystatusvalue", "threatseverity"}
	statusColumns   = []string{"status", "activitystatusvalue", "eventoutcome"}

	eventCodeColumns = []string{"eventid", "incidentnumber", "eventdataid", "correlationid", "operationid"}
	eventNameColumns = []string{"operationnamevalue", "title", "activity", "incidentname", "eventsourcename", "operationname"}
	sourceColumns    = []string{"sourcesystem", "providername", "categoryvalue", "category", "resourceprovidervalue", "devicevendor"}
	providerColumns  = []string{"resourceprovidervalue", "providername", "eventsourcename", "sourcesystem", "deviceproduct", "resourceprovider"}
	categoryColumns  = []string{"categoryvalue", "category", "channel", "task", "eventcategory", "deviceeventcategory", "type"}

	actorColumns      = []string{"caller", "account", "accountname", "subjectusername", "sourceusername", "destinationusername"}
	actorPayloadKeys  = []string{"caller", "account", "targetUser", "subjectUserName", "SourceUserName", "DestinationUserName"}
	resourceColumns   = []string{"resource", "resourceid", "entity", "computer", "workstation", "destinationhostname", "devicename"}
	resourcePayload   = []string{"resource", "entity", "resourceId", "fullFilePath", "filePath", "DestinationHostName", "SourceHostName"}
	ipColumns         = []string{"calleripaddress", "ipaddress", "remoteipaddress", "clientipaddress", "clientaddress", "sourceip", "destinationip", "remoteip", "maliciousip"}
	ipPayloadKeys     = []string{"callerIpAddress", "ipAddress", "remoteIpAddress", "SourceIP", "DestinationIP", "clientIpAddress"}
	titlePayloadKeys  = []string{"message", "action", "operationNameValue"}
	summaryPayloadKey = []string{"message", "Activity", "DeviceAction", "FTNTFGTaction", "RequestURL", "Reason", "description", "eventCategory", "statusCode"}
)

// Classified is the normalized view of one raw row.
type Classified struct {
	Kind       SourceKind
	OccurredAt time.Time

	Severity string
	Status   string

	Source        string
	Provider      string
	ProviderLabel string
	Category      string
	EventCode     string
	EventName     string

	Actor     string
	Resource  string
	IPAddress string

	Title       string
	Description string

	Owner Owner

	PayloadRaw  string
	PayloadTree payload.Tree
}

// summaryFromPayload builds the one-line description for a row: a direct
// message from the normalized payload when one exists, else the compacted
// raw blob, else the flat-column fallback.
func summaryFromPayload(payloadRaw string, tree payload.Tree, fallback string) string {
	if direct := payload.FindValue(tree, summaryPayloadKey); direct != "" {
		return payload.ShortValue(payload.Compact(direct), 220)
	}
	if payloadRaw != "" {
		return payload.ShortValue(payload.Compact(payloadRaw), 220)
	}
	if fallback != "" {
		return fallback
	}
	return "No description provided."
}

// ExtractPayload picks the embedded payload blob from a row and normalizes
// it. The raw blob is kept alongside the tree; an opaque blob yields a nil
// tree and no error.
func ExtractPayload(row RawRow) (string, payload.Tree) {
	raw := row.Get(payloadColumns...)
	if raw == "" {
		return "", nil
	}
	result := payload.Parse(raw)
	return raw, result.Normalized
}

// Classify resolves one raw row into its normalized fields. The only hard
// gate is the timestamp: rows without a resolvable one return
// ErrMissingTimestamp and must be rejected by the caller. Every other miss
// degrades to a fallback value.
func Classify(row RawRow, kind SourceKind, fileName string) (*Classified, error) {
	occurredAt, ok := ResolveTimestamp(row, kind)
	if !ok {
		return nil, ErrMissingTimestamp
	}

	severity := NormalizeSeverity(row.Get(severityColumns...), kind)
	status := NormalizeStatus(row.Get(statusColumns...), kind)

	payloadRaw, payloadTree := ExtractPayload(row)

	eventCode := row.Get(eventCodeColumns...)
	eventName := row.Get(eventNameColumns...)

	source := row.Get(sourceColumns...)
	if source == "" {
		source = fileName
	}
	provider := row.Get(providerColumns...)
	if provider == "" {
		provider = source
	}
	category := row.Get(categoryColumns...)
	if category == "" {
		category = "Unknown"
	}

	var owner Owner
	if kind == KindIncident {
		owner = ParseIncidentOwner(row.Get("owner"))
	}

	actor := row.Get(actorColumns...)
	if actor == "" {
		actor = owner.Actor
	}
	if actor == "" {
		actor = payload.FindValue(payloadTree, actorPayloadKeys)
	}

	resource := row.Get(resourceColumns...)
	if resource == "" {
		resource = payload.FindValue(payloadTree, resourcePayload)
	}

	ipAddress := row.Get(ipColumns...)
	if ipAddress == "" {
		ipAddress = payload.FindValue(payloadTree, ipPayloadKeys)
	}

	titleSource := payload.FindValue(payloadTree, titlePayloadKeys)
	if titleSource == "" {
		titleSource = eventName
	}
	if titleSource == "" {
		titleSource = row.Get("title", "activity", "operationnamevalue")
	}
	title := payload.FormatOperationTitle(titleSource)

	description := summaryFromPayload(payloadRaw, payloadTree, row.Get("description", "activity", "title", "message"))

	return &Classified{
		Kind:          kind,
		OccurredAt:    occurredAt,
		Severity:      severity,
		Status:        status,
		Source:        source,
		Provider:      provider,
		ProviderLabel: FormatProviderLabel(provider),
		Category:      category,
		EventCode:     eventCode,
		EventName:     eventName,
		Actor:         actor,
		Resource:      resource,
		IPAddress:     ipAddress,
		Title:         title,
		Description:   description,
		Owner:         owner,
		PayloadRaw:    payloadRaw,
		PayloadTree:   payloadTree,
	}, nil
}
