package ir

import (
	"strings"
	"testing"
)

func TestBufferPoolRoundTripResetsContent(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("leftover")
	PutBuffer(buf)

	buf2 := GetBuffer()
	if buf2.Len() != 0 {
		t.Errorf("buffer from pool has len %d, want 0 after reset", buf2.Len())
	}
	PutBuffer(buf2)
}

func TestStringBuilderPoolRoundTripResetsContent(t *testing.T) {
	sb := GetStringBuilder()
	sb.WriteString("leftover")
	PutStringBuilder(sb)

	sb2 := GetStringBuilder()
	if sb2.Len() != 0 {
		t.Errorf("builder from pool has len %d, want 0 after reset", sb2.Len())
	}
	PutStringBuilder(sb2)
}

func TestAnySlicePoolHonorsCapacityHint(t *testing.T) {
	s := GetAnySlice(32)
	if cap(s) < 32 {
		t.Errorf("cap = %d, want >= 32", cap(s))
	}
	if len(s) != 0 {
		t.Errorf("len = %d, want 0", len(s))
	}
	s = append(s, "a", "b")
	PutAnySlice(s)
}

func TestStringSlicePoolHonorsCapacityHint(t *testing.T) {
	s := GetStringSlice(16)
	if cap(s) < 16 {
		t.Errorf("cap = %d, want >= 16", cap(s))
	}
	s = append(s, "x")
	PutStringSlice(s)
}

func TestMapPoolRoundTripClearsContent(t *testing.T) {
	m := GetMap()
	m["k"] = "v"
	PutMap(m)

	m2 := GetMap()
	if len(m2) != 0 {
		t.Errorf("map from pool has %d entries, want 0 after clear", len(m2))
	}
	PutMap(m2)
}

func TestBuildSSEChunkFormatsDataPrefixAndTrailer(t *testing.T) {
	got := string(BuildSSEChunk([]byte(`{"a":1}`)))
	want := "data: {\"a\":1}\n\n"
	if got != want {
		t.Errorf("BuildSSEChunk() = %q, want %q", got, want)
	}
}

func TestBuildSSEEventFormatsEventAndDataLines(t *testing.T) {
	got := string(BuildSSEEvent("response.created", []byte(`{}`)))
	if !strings.HasPrefix(got, "event: response.created\ndata: {}\n\n") {
		t.Errorf("BuildSSEEvent() = %q, want event/data framing", got)
	}
}

func TestPlaceholderSchemaShapeHasPlaceholderProperty(t *testing.T) {
	props, ok := PlaceholderSchema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties = %v, want a map", PlaceholderSchema["properties"])
	}
	if _, ok := props["_placeholder"]; !ok {
		t.Errorf("properties missing _placeholder key")
	}
	required, ok := PlaceholderSchema["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "_placeholder" {
		t.Errorf("required = %v, want [\"_placeholder\"]", PlaceholderSchema["required"])
	}
}
