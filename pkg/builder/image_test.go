package builder

import (
	"strings"
	"testing"
)

// TestNewImageInternal tests internal image defaults and overrides.
func TestNewImageInternal(t *testing.T) {
	def := mustMapping(t, `
software: bind
version: "9.16.50"
dependency: [libjson-c-dev]
`)
	img, err := NewImage("recursor", def)
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	if !img.Internal || img.Software != SoftwareBind {
		t.Errorf("expected internal bind image, got %+v", img)
	}
	if img.Version != "9.16.50" {
		t.Errorf("expected version override, got %s", img.Version)
	}
	if img.From != softwareDefaults[SoftwareBind].from {
		t.Errorf("expected default base image, got %s", img.From)
	}
	found := false
	for _, d := range img.Dependencies {
		if d == "libjson-c-dev" {
			found = true
		}
	}
	if !found {
		t.Error("extra dependency should extend the defaults")
	}
	if img.Reference() != "" {
		t.Error("internal images have no pull reference")
	}
}

// TestNewImageExternal tests external images pulled as-is.
func TestNewImageExternal(t *testing.T) {
	img, err := NewImage("proxy", mustMapping(t, "from: nginx:1.27\n"))
	if err != nil {
		t.Fatalf("new image: %v", err)
	}
	if img.Internal || img.Reference() != "nginx:1.27" {
		t.Errorf("expected external nginx image, got %+v", img)
	}
}

// TestNewImageErrors tests invalid image definitions.
func TestNewImageErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "{}\n", "needs either software or from"},
		{"unknown software", "software: powerdns\n", "unsupported software"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImage("img", mustMapping(t, tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

// TestParseVolume tests volume string splitting and prefix handling.
func TestParseVolume(t *testing.T) {
	tests := []struct {
		in   string
		want VolumePlacement
	}{
		{"conf/named.conf:/usr/local/etc/named.conf", VolumePlacement{Source: "conf/named.conf", Target: "/usr/local/etc/named.conf"}},
		{"data:/data:ro", VolumePlacement{Source: "data", Target: "/data", Mode: "ro"}},
		{"resource:configs/unbound.conf:/etc/unbound.conf", VolumePlacement{Source: "configs/unbound.conf", Target: "/etc/unbound.conf", Resource: true}},
		{OriginMarker + "/shared/zones:/zones", VolumePlacement{Source: "shared/zones", Target: "/zones", Origin: true}},
	}
	for _, tt := range tests {
		got, err := ParseVolume(tt.in)
		if err != nil {
			t.Errorf("parse %q: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parse %q: expected %+v, got %+v", tt.in, tt.want, got)
		}
	}
}

// TestParseVolumeErrors tests malformed volume strings.
func TestParseVolumeErrors(t *testing.T) {
	for _, in := range []string{"justone", "a:b:c:d", ":/dst", "src:relative"} {
		if _, err := ParseVolume(in); err == nil {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}
