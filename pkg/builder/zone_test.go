package builder

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestQualifyName tests owner name qualification against a zone.
func TestQualifyName(t *testing.T) {
	tests := []struct {
		name string
		zone string
		want string
	}{
		{"@", "com", "com"},
		{"www", "com", "www.com"},
		{"www.", "com", "www."},
		{"ns1.example.org.", "com", "ns1.example.org."},
		{"@", ".", "."},
		{"example", ".", "example."},
	}
	for _, tt := range tests {
		if got := qualifyName(tt.name, tt.zone); got != tt.want {
			t.Errorf("qualifyName(%q, %q): expected %q, got %q", tt.name, tt.zone, tt.want, got)
		}
	}
}

// TestCompressOwner tests apex and in-zone owner compression for rendering.
func TestCompressOwner(t *testing.T) {
	tests := []struct {
		name string
		zone string
		want string
	}{
		{"com", "com", "@"},
		{"com.", "com", "@"},
		{"www.com", "com", "www"},
		{"ns.com.", "com", "ns"},
		{"other.org.", "com", "other.org."},
		{".", ".", "@"},
		{"example.", ".", "example"},
		{"a.b.example.", ".", "a.b.example."},
	}
	for _, tt := range tests {
		if got := compressOwner(tt.name, tt.zone); got != tt.want {
			t.Errorf("compressOwner(%q, %q): expected %q, got %q", tt.name, tt.zone, tt.want, got)
		}
	}
}

// TestZoneFileKey tests zone file naming, including the root zone.
func TestZoneFileKey(t *testing.T) {
	if got := zoneFileKey("."); got != "root" {
		t.Errorf("root zone: expected root, got %q", got)
	}
	if got := zoneFileKey("example.com"); got != "example.com" {
		t.Errorf("expected example.com, got %q", got)
	}
}

// TestRenderZoneFile tests the rendered master file, including the origin
// header, generated SOA and default records.
func TestRenderZoneFile(t *testing.T) {
	now := time.Unix(1700000000, 0)
	records := []Record{
		{Name: "www.example.com", TTL: 600, Type: "A", Data: "172.20.0.6"},
		{Name: "example.com", TTL: 3600, Type: "TXT", Data: "hello.example.com"},
	}
	out := RenderZoneFile("example.com", records, "172.20.0.6", now)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), out)
	}
	if lines[0] != "$ORIGIN example.com." {
		t.Errorf("unexpected origin line %q", lines[0])
	}

	soa := fmt.Sprintf("%-24s%-8d%-8s%-8s%s", "@", 86400, "IN", "SOA",
		"ns.example.com. admin.example.com. 1700000000 7200 3600 1209600 3600")
	if lines[1] != soa {
		t.Errorf("unexpected SOA line:\nexpected %q\ngot      %q", soa, lines[1])
	}
	if !strings.Contains(lines[2], "NS") || !strings.Contains(lines[2], "ns.example.com.") {
		t.Errorf("expected default NS line, got %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "ns ") || !strings.Contains(lines[3], "172.20.0.6") {
		t.Errorf("expected compressed default A line, got %q", lines[3])
	}
	if !strings.HasPrefix(lines[4], "www ") {
		t.Errorf("in-zone owner should compress, got %q", lines[4])
	}
	if !strings.HasPrefix(lines[5], "@ ") {
		t.Errorf("apex owner should compress to @, got %q", lines[5])
	}
}

// TestRenderZoneFileRoot tests root zone rendering.
func TestRenderZoneFileRoot(t *testing.T) {
	now := time.Unix(1700000000, 0)
	out := RenderZoneFile(".", []Record{
		{Name: "com.", TTL: 3600, Type: "NS", Data: "tld-ns1."},
	}, "172.20.0.4", now)

	if !strings.HasPrefix(out, "$ORIGIN .\n") {
		t.Errorf("expected root origin header, got %q", out)
	}
	if !strings.Contains(out, "ns. admin. 1700000000") {
		t.Errorf("expected root SOA names, got:\n%s", out)
	}
	if !strings.Contains(out, "\ncom ") {
		t.Errorf("expected compressed com owner, got:\n%s", out)
	}
}

// TestZoneRecordSetOrder tests first-seen zone order and statement-order
// records.
func TestZoneRecordSetOrder(t *testing.T) {
	set := NewZoneRecordSet()
	set.Add("b", Record{Name: "one"})
	set.Add("a", Record{Name: "two"})
	set.Add("b", Record{Name: "three"})

	zones := set.Zones()
	if len(zones) != 2 || zones[0] != "b" || zones[1] != "a" {
		t.Errorf("unexpected zone order %v", zones)
	}
	recs := set.Records("b")
	if len(recs) != 2 || recs[0].Name != "one" || recs[1].Name != "three" {
		t.Errorf("unexpected record order %v", recs)
	}
	if set.Len() != 3 {
		t.Errorf("expected 3 records, got %d", set.Len())
	}
}
