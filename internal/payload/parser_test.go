package payload

import (
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Kind
	}{
		{name: "empty string", input: "", want: KindEmpty},
		{name: "whitespace only", input: "   \n\t  ", want: KindEmpty},
		{name: "json object", input: `{"a":"b"}`, want: KindJSON},
		{name: "json array", input: `[{"a":"b"}]`, want: KindJSON},
		{name: "malformed json falls through", input: `{"a":`, want: KindText},
		{name: "xml document", input: `<event><actor>alice</actor></event>`, want: KindXML},
		{name: "malformed xml falls through", input: `< not xml at all`, want: KindText},
		{name: "kv pairs", input: "user=alice;ip=10.0.0.1", want: KindKV},
		{name: "single pair is not kv", input: "user=alice", want: KindText},
		{name: "opaque text", input: "something happened on the host", want: KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.input); got != tt.want {
				t.Errorf("Detect(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_JSON(t *testing.T) {
	result := Parse(`{"message":"VM Scale Set Patch","category":"Administrative"}`)

	if result.Kind != KindJSON {
		t.Fatalf("Kind = %s, want json", result.Kind)
	}
	if result.Facts.Action != "VM Scale Set Patch" {
		t.Errorf("Facts.Action = %q, want VM Scale Set Patch", result.Facts.Action)
	}
	if result.Facts.Category != "Administrative" {
		t.Errorf("Facts.Category = %q, want Administrative", result.Facts.Category)
	}
	if result.Facts.Title != "Vm Scale Set Patch" {
		t.Errorf("Facts.Title = %q, want Vm Scale Set Patch", result.Facts.Title)
	}
}

func TestParse_NestedUnwrap(t *testing.T) {
	// JSON whose string value is itself JSON, which in turn holds kv text.
	raw := `{"properties":"{\"detail\":\"src=10.0.0.5;dst=10.0.0.9\"}"}`
	result := Parse(raw)

	if result.Kind != KindJSON {
		t.Fatalf("Kind = %s, want json", result.Kind)
	}

	entries := Flatten(result.Normalized)
	found := map[string]string{}
	for _, entry := range entries {
		found[entry.Path] = entry.Value
	}
	if found["properties.detail.src"] != "10.0.0.5" {
		t.Errorf("nested kv not unwrapped, entries = %v", found)
	}
	if found["properties.detail.dst"] != "10.0.0.9" {
		t.Errorf("nested kv not unwrapped, entries = %v", found)
	}
}

func TestParse_XML(t *testing.T) {
	result := Parse(`<event><subjectusername>alice</subjectusername><status>Failed</status></event>`)

	if result.Kind != KindXML {
		t.Fatalf("Kind = %s, want xml", result.Kind)
	}
	if result.Facts.Actor != "alice" {
		t.Errorf("Facts.Actor = %q, want alice", result.Facts.Actor)
	}
	if result.Facts.Status != "Failed" {
		t.Errorf("Facts.Status = %q, want Failed", result.Facts.Status)
	}
}

func TestParse_KV(t *testing.T) {
	result := Parse("Activity=Sign In;SourceIP=192.0.2.7")

	if result.Kind != KindKV {
		t.Fatalf("Kind = %s, want kv", result.Kind)
	}
	if result.Facts.Action != "Sign In" {
		t.Errorf("Facts.Action = %q, want Sign In", result.Facts.Action)
	}
	if result.Facts.IP != "192.0.2.7" {
		t.Errorf("Facts.IP = %q, want 192.0.2.7", result.Facts.IP)
	}
}

func TestParse_Text(t *testing.T) {
	long := strings.Repeat("a", 300)
	result := Parse(long)

	if result.Kind != KindText {
		t.Fatalf("Kind = %s, want text", result.Kind)
	}
	if result.Normalized != nil {
		t.Error("Normalized should be nil for text payloads")
	}
	if len(result.Facts.Summary) > summaryLimit+3 {
		t.Errorf("Summary not truncated, len = %d", len(result.Facts.Summary))
	}
	if result.Facts.Actor != "Unknown" {
		t.Errorf("Facts.Actor = %q, want Unknown", result.Facts.Actor)
	}
}

func TestParse_Empty(t *testing.T) {
	result := Parse("   ")

	if result.Kind != KindEmpty {
		t.Fatalf("Kind = %s, want empty", result.Kind)
	}
	if result.Facts.Summary != noPayloadText {
		t.Errorf("Summary = %q, want %q", result.Facts.Summary, noPayloadText)
	}
}

func TestNormalize_DepthBudget(t *testing.T) {
	// Build a map nested deeper than the recursion budget.
	leaf := map[string]any{"value": "deep"}
	tree := any(leaf)
	for i := 0; i < 12; i++ {
		tree = map[string]any{"level": tree}
	}

	normalized := Normalize(tree)
	if normalized == nil {
		t.Fatal("Normalize returned nil for deep tree")
	}

	// Walking must terminate and still surface a leaf somewhere.
	entries := Flatten(normalized)
	if len(entries) == 0 {
		t.Fatal("no entries flattened from deep tree")
	}
	joined := ""
	for _, entry := range entries {
		joined += entry.Value
	}
	if !strings.Contains(joined, "deep") {
		t.Errorf("deep leaf value lost, entries = %v", entries)
	}
}

func TestNormalize_ArrayWrapped(t *testing.T) {
	normalized := Normalize([]any{map[string]any{"a": "1"}, "x"})
	if normalized == nil {
		t.Fatal("Normalize returned nil for array input")
	}
	if _, ok := normalized["items"]; !ok {
		t.Errorf("array input should be wrapped under items, got %v", normalized)
	}
}

// Flattening then regrouping paths must reconstruct the same leaf values.
func TestFlattenRoundTrip(t *testing.T) {
	result := Parse(`{"outer":{"inner":"value","list":["a","b"]},"top":"level"}`)
	entries := Flatten(result.Normalized)

	rebuilt := map[string]string{}
	for _, entry := range entries {
		rebuilt[entry.Path] = entry.Value
	}

	want := map[string]string{
		"outer.inner":   "value",
		"outer.list[1]": "a",
		"outer.list[2]": "b",
		"top":           "level",
	}
	for path, value := range want {
		if rebuilt[path] != value {
			t.Errorf("path %s = %q, want %q", path, rebuilt[path], value)
		}
	}
	if len(rebuilt) != len(want) {
		t.Errorf("entry count = %d, want %d", len(rebuilt), len(want))
	}
}
