package metadata

import (
	"reflect"
	"testing"
)

func TestParseStringList(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"native []any from Encode", []any{"go", "sqlite"}, []string{"go", "sqlite"}},
		{"native []string", []string{"go", "sqlite"}, []string{"go", "sqlite"}},
		{"json array string", `["go", "sqlite"]`, []string{"go", "sqlite"}},
		{"python list literal single quotes", `['go', 'sqlite']`, []string{"go", "sqlite"}},
		{"comma separated plain string", "go, sqlite, badger", []string{"go", "sqlite", "badger"}},
		{"single token", "go", []string{"go"}},
		{"empty string", "", []string{}},
		{"nil", nil, []string{}},
		{"number", 42, []string{}},
		{"empty brackets", "[]", []string{}},
		{"malformed fragment", "[go, sq", []string{"[go", "sq"}},
		{"json array with comma inside quoted element", `["a, b", "c"]`, []string{"a, b", "c"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseStringList(c.in)
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("ParseStringList(%#v) = %#v, want %#v", c.in, got, c.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := CognitiveFields{
		Concepts:       []string{"graph", "retrieval"},
		SurfacesWhen:   []string{"code review"},
		AuthorityScore: 0.75,
		Domain:         "engineering",
		MemoryType:     "decision",
	}
	decoded := Decode(Encode(f))
	if !reflect.DeepEqual(decoded.Concepts, f.Concepts) {
		t.Errorf("concepts round-trip: got %v, want %v", decoded.Concepts, f.Concepts)
	}
	if !reflect.DeepEqual(decoded.SurfacesWhen, f.SurfacesWhen) {
		t.Errorf("surfaces_when round-trip: got %v, want %v", decoded.SurfacesWhen, f.SurfacesWhen)
	}
	if decoded.AuthorityScore != f.AuthorityScore {
		t.Errorf("authority_score round-trip: got %v, want %v", decoded.AuthorityScore, f.AuthorityScore)
	}
	if decoded.Domain != f.Domain || decoded.MemoryType != f.MemoryType {
		t.Errorf("domain/memory_type round-trip mismatch: %+v", decoded)
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	bad := map[string]any{
		"concepts":        42,
		"surfaces_when":   map[string]any{"oops": true},
		"authority_score": "not-a-number",
	}
	got := Decode(bad)
	// authority_score degrades to the spec default (0.5), not zero: an
	// unparseable score is "absent", not "confirmed untrustworthy".
	if len(got.Concepts) != 0 || len(got.SurfacesWhen) != 0 || got.AuthorityScore != 0.5 {
		t.Errorf("expected spec-default degradation for malformed payload, got %+v", got)
	}
}

func TestDecodeFallsBackToCustomMetadata(t *testing.T) {
	meta := map[string]any{
		"custom_metadata": map[string]any{
			"concepts":        []any{"go", "sqlite"},
			"authority_score": 0.8,
		},
	}
	got := Decode(meta)
	if !reflect.DeepEqual(got.Concepts, []string{"go", "sqlite"}) {
		t.Errorf("expected concepts from custom_metadata, got %v", got.Concepts)
	}
	if got.AuthorityScore != 0.8 {
		t.Errorf("expected authority_score from custom_metadata, got %v", got.AuthorityScore)
	}
}

func TestDecodeTopLevelNeverShadowedByCustomMetadata(t *testing.T) {
	meta := map[string]any{
		"concepts": []any{"real"},
		"custom_metadata": map[string]any{
			"concepts": []any{"decoy"},
		},
	}
	got := Decode(meta)
	if !reflect.DeepEqual(got.Concepts, []string{"real"}) {
		t.Errorf("top-level concepts must win over custom_metadata, got %v", got.Concepts)
	}
}

func TestDecodeCanonicalizesAndDedupsConcepts(t *testing.T) {
	meta := map[string]any{
		"concepts": []any{"User Approval", "user  approval", "User_Approval", "Quality"},
	}
	got := Decode(meta)
	if !reflect.DeepEqual(got.Concepts, []string{"user approval", "quality"}) {
		t.Errorf("expected canonicalized, deduped concepts, got %v", got.Concepts)
	}
}

func TestDecodeAuthorityScoreClampedAndDefaulted(t *testing.T) {
	if got := Decode(map[string]any{"authority_score": 1.4}).AuthorityScore; got != 1 {
		t.Errorf("expected clamp to 1, got %v", got)
	}
	if got := Decode(map[string]any{"authority_score": -0.2}).AuthorityScore; got != 0 {
		t.Errorf("expected clamp to 0, got %v", got)
	}
	if got := Decode(map[string]any{}).AuthorityScore; got != 0.5 {
		t.Errorf("expected default 0.5 when absent, got %v", got)
	}
}
