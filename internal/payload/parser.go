package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/clbanning/mxj/v2"
	"github.com/go-logfmt/logfmt"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	kvSegmentRe  = regexp.MustCompile(`^\s*([^=]+?)\s*=\s*(.+?)\s*$`)
)

// Compact collapses runs of whitespace to single spaces and trims the ends.
func Compact(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
}

// ShortValue truncates a display string, marking the cut with an ellipsis.
func ShortValue(value string, maxLen int) string {
	if len(value) > maxLen {
		return value[:maxLen] + "..."
	}
	return value
}

// Detect reports the outermost format of a payload string without building
// the normalized tree. It never fails; unrecognized input is KindText.
func Detect(raw string) Kind {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return KindEmpty
	case parseJSON(trimmed) != nil:
		return KindJSON
	case parseXML(trimmed) != nil:
		return KindXML
	case parseKV(trimmed) != nil:
		return KindKV
	default:
		return KindText
	}
}

// parseJSON decodes a string that looks like a JSON document. Anything that
// does not both look like and decode as JSON yields nil.
func parseJSON(input string) any {
	trimmed := strings.TrimSpace(input)
	object := strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
	array := strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")
	if !object && !array {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil
	}
	return decoded
}

// parseXML decodes an XML document into a generic map. Returns nil when the
// input does not look like XML or fails to decode.
func parseXML(input string) map[string]any {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "<") || !strings.Contains(trimmed, ">") {
		return nil
	}
	decoded, err := mxj.NewMapXml([]byte(trimmed))
	if err != nil || len(decoded) == 0 {
		return nil
	}
	return map[string]any(decoded)
}

// parseKV interprets newline- or semicolon-delimited key=value text. At least
// two pairs must be found, otherwise the input is not treated as kv.
func parseKV(input string) map[string]any {
	if !strings.Contains(input, "=") {
		return nil
	}
	segments := strings.FieldsFunc(input, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';'
	})

	out := make(map[string]any)
	for _, segment := range segments {
		if !strings.Contains(segment, "=") {
			continue
		}
		// A segment with a single '=' is one pair; the value may contain
		// spaces. Segments packing several pairs go through logfmt.
		if m := kvSegmentRe.FindStringSubmatch(segment); m != nil && strings.Count(m[2], "=") == 0 {
			if m[1] != "" && m[2] != "" {
				out[m[1]] = m[2]
			}
			continue
		}
		dec := logfmt.NewDecoder(strings.NewReader(segment))
		for dec.ScanRecord() {
			for dec.ScanKeyval() {
				key := strings.TrimSpace(string(dec.Key()))
				value := strings.TrimSpace(string(dec.Value()))
				if key != "" && value != "" {
					out[key] = value
				}
			}
		}
	}
	if len(out) < 2 {
		return nil
	}
	return out
}

// normalizeValue rebuilds a decoded value, re-parsing any string leaf that
// itself encodes JSON, XML, or key=value text. depth is the remaining
// recursion budget; once spent, values collapse to truncated strings.
func normalizeValue(value any, depth int) any {
	if depth <= 0 {
		return ShortValue(Compact(fmt.Sprint(value)), deepValueLimit)
	}

	switch v := value.(type) {
	case string:
		text := strings.TrimSpace(v)
		if nested := parseJSON(text); nested != nil {
			return normalizeValue(nested, depth-1)
		}
		if nested := parseXML(text); nested != nil {
			return normalizeValue(nested, depth-1)
		}
		if nested := parseKV(text); nested != nil {
			return normalizeValue(map[string]any(nested), depth-1)
		}
		return Compact(text)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			cleanKey := strings.TrimSpace(key)
			if cleanKey == "" {
				continue
			}
			out[cleanKey] = normalizeValue(child, depth-1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = normalizeValue(child, depth-1)
		}
		return out
	default:
		return v
	}
}

// Normalize builds the normalized tree for an already-decoded value. A bare
// array is wrapped under an "items" key so the result is always a map.
// Returns nil for values that normalize to nothing.
func Normalize(value any) Tree {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return Tree{"items": normalizeValue(v, maxDepth)}
	case map[string]any:
		normalized, _ := normalizeValue(v, maxDepth).(map[string]any)
		if len(normalized) == 0 {
			return nil
		}
		return normalized
	default:
		return nil
	}
}

// Parse detects the format of a raw payload string, normalizes it, and
// extracts facts. Detection order is empty, JSON, XML, key=value, text;
// a candidate that fails to decode falls through to the next format.
// Parse never fails: opaque input comes back as KindText with the compacted
// raw string retained.
func Parse(rawInput string) Result {
	raw := Compact(rawInput)

	if raw == "" {
		facts := ExtractFacts(nil)
		facts.Summary = noPayloadText
		return Result{Kind: KindEmpty, Raw: "", Facts: facts}
	}

	if decoded := parseJSON(raw); decoded != nil {
		normalized := Normalize(decoded)
		return Result{Kind: KindJSON, Raw: raw, Normalized: normalized, Facts: ExtractFacts(normalized)}
	}

	if decoded := parseXML(raw); decoded != nil {
		normalized := Normalize(map[string]any(decoded))
		return Result{Kind: KindXML, Raw: raw, Normalized: normalized, Facts: ExtractFacts(normalized)}
	}

	if decoded := parseKV(raw); decoded != nil {
		normalized := Normalize(map[string]any(decoded))
		return Result{Kind: KindKV, Raw: raw, Normalized: normalized, Facts: ExtractFacts(normalized)}
	}

	return Result{
		Kind: KindText,
		Raw:  raw,
		Facts: Facts{
			Title:    "Event",
			Summary:  ShortValue(raw, summaryLimit),
			Actor:    unknownValue,
			IP:       unknownValue,
			Resource: unknownValue,
			Category: unknownValue,
			Action:   unknownValue,
			Status:   unknownValue,
		},
	}
}
