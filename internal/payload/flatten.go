package payload

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FlatEntry is one (path, value) pair produced by flattening a tree.
type FlatEntry struct {
	Path  string
	Value string
}

var (
	attrSegmentRe = regexp.MustCompile(`\[@.*?\]`)
	indexRe       = regexp.MustCompile(`\[\d+\]`)
	upperRunRe    = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	camelBoundRe  = regexp.MustCompile(`([a-z])([A-Z])`)
	separatorRe   = regexp.MustCompile(`[_./:-]+`)
	wordStartRe   = regexp.MustCompile(`(^|\s)[a-z]`)
)

// Flatten walks a normalized tree and returns its leaves as dotted-path
// entries. Map keys are visited in sorted order so output is deterministic;
// list elements use 1-based [n] segments. Empty values are dropped, and
// branches past the depth budget are rendered as truncated strings.
func Flatten(tree Tree) []FlatEntry {
	if tree == nil {
		return nil
	}
	var out []FlatEntry
	flattenValue(tree, "", 0, &out)
	return out
}

func flattenValue(value any, prefix string, depth int, out *[]FlatEntry) {
	if value == nil {
		return
	}

	if depth > maxDepth {
		if prefix != "" {
			appendEntry(out, prefix, ShortValue(fmt.Sprint(value), deepValueLimit))
		}
		return
	}

	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			flattenValue(v[key], next, depth+1, out)
		}
	case []any:
		for i, item := range v {
			key := fmt.Sprintf("%s[%d]", prefix, i+1)
			flattenValue(item, key, depth+1, out)
		}
	default:
		if prefix != "" {
			appendEntry(out, prefix, Compact(fmt.Sprint(v)))
		}
	}
}

func appendEntry(out *[]FlatEntry, path, value string) {
	if value == "" {
		return
	}
	*out = append(*out, FlatEntry{Path: path, Value: value})
}

// DisplayOptions govern display truncation of flattened fields. Truncation
// is a rendering concern only; the full tree is always retained for storage.
type DisplayOptions struct {
	MaxItems       int
	MaxValueLength int
}

// FlattenForDisplay flattens a tree into labeled fields capped for rendering.
func FlattenForDisplay(tree Tree, opts DisplayOptions) []Field {
	if tree == nil {
		return nil
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 16
	}
	if opts.MaxValueLength <= 0 {
		opts.MaxValueLength = 140
	}

	entries := Flatten(tree)
	if len(entries) > opts.MaxItems {
		entries = entries[:opts.MaxItems]
	}

	fields := make([]Field, 0, len(entries))
	for _, entry := range entries {
		fields = append(fields, Field{
			Key:   entry.Path,
			Label: labelFromPath(entry.Path),
			Value: ShortValue(Compact(entry.Value), opts.MaxValueLength),
		})
	}
	return fields
}

// humanizeToken expands a raw key token into space-separated words: XML
// attribute markers and array indexes are stripped, camel-case boundaries
// and separator characters become spaces.
func humanizeToken(value string) string {
	v := attrSegmentRe.ReplaceAllString(value, "")
	v = indexRe.ReplaceAllString(v, "")
	v = upperRunRe.ReplaceAllString(v, "$1 $2")
	v = camelBoundRe.ReplaceAllString(v, "$1 $2")
	v = separatorRe.ReplaceAllString(v, " ")
	return Compact(v)
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	lower := strings.ToLower(value)
	return wordStartRe.ReplaceAllStringFunc(lower, strings.ToUpper)
}

// labelFromPath derives a human label from the last segment of a dotted path.
func labelFromPath(path string) string {
	segments := strings.Split(path, ".")
	key := segments[len(segments)-1]
	if key == "" {
		key = path
	}
	return titleCase(humanizeToken(key))
}
