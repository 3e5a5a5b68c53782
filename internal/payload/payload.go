// Package payload recognizes and normalizes the serialized blobs embedded in
// security-log exports. A single cell may carry JSON, XML, or delimited
// key=value text, and those payloads routinely nest further encoded strings
// inside themselves. The normalizer unwraps them into one tree and derives a
// small set of canonical facts from it.
package payload

// Kind identifies the outermost serialization format of a payload string.
type Kind string

const (
	KindJSON  Kind = "json"
	KindXML   Kind = "xml"
	KindKV    Kind = "kv"
	KindText  Kind = "text"
	KindEmpty Kind = "empty"
)

// Tree is a normalized payload: string/number/bool leaves, maps, and lists.
// Nested encoded strings have already been unwrapped into sub-trees.
type Tree = map[string]any

// Field is one flattened tree entry prepared for display.
type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Facts are the canonical attributes heuristically extracted from a payload.
// Every field is always a non-empty string; "Unknown" marks a miss.
type Facts struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Actor    string `json:"actor"`
	IP       string `json:"ip"`
	Resource string `json:"resource"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Status   string `json:"status"`
}

// Result is the outcome of parsing one payload string.
type Result struct {
	Kind       Kind   `json:"kind"`
	Raw        string `json:"raw"`
	Normalized Tree   `json:"normalized,omitempty"`
	Facts      Facts  `json:"facts"`
}

const (
	// maxDepth bounds recursive unwrapping and flattening. Past the budget,
	// values are coerced to truncated strings instead of recursed.
	maxDepth = 8

	summaryLimit   = 220
	deepValueLimit = 120
	noPayloadText  = "No event payload available."
	attachedText   = "Event payload attached. Open details to inspect."
	unknownValue   = "Unknown"
)
