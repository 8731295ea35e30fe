package artifact

import (
	"strings"
	"testing"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/config"
)

func testImage(t *testing.T, name string, def map[string]any) *builder.Image {
	t.Helper()
	raw, err := config.FromGo(def)
	if err != nil {
		t.Fatalf("lift definition: %v", err)
	}
	img, err := builder.NewImage(name, raw)
	if err != nil {
		t.Fatalf("resolve image: %v", err)
	}
	return img
}

func testMirror(t *testing.T, m map[string]any) *config.Value {
	t.Helper()
	raw, err := config.FromGo(m)
	if err != nil {
		t.Fatalf("lift mirror: %v", err)
	}
	return raw
}

// TestRenderDockerfileBind tests that a bind image builds from source with
// python dependencies split onto pip.
func TestRenderDockerfileBind(t *testing.T) {
	img := testImage(t, "authoritative", map[string]any{"software": "bind"})

	out, err := RenderDockerfile(img, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"FROM ubuntu:22.04",
		"bind-9.18.30.tar.xz",
		"RUN pip3 install ply",
		"CMD [\"named\", \"-g\", \"-c\", \"/usr/local/etc/named.conf\"]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected Dockerfile to contain %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "python3-ply") {
		t.Errorf("python3-ply should be installed through pip, not apt:\n%s", out)
	}
	if !strings.Contains(out, "python3-pip") {
		t.Errorf("python3-pip must stay on the apt side:\n%s", out)
	}
}

// TestRenderDockerfileUnbound tests the unbound source build.
func TestRenderDockerfileUnbound(t *testing.T) {
	img := testImage(t, "recursor", map[string]any{"software": "unbound", "version": "1.20.0"})

	out, err := RenderDockerfile(img, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"unbound-1.20.0.tar.gz",
		"mkdir -p /usr/local/etc/unbound/zones",
		"dnsutils iproute2 vim",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected Dockerfile to contain %q:\n%s", want, out)
		}
	}
}

// TestRenderDockerfilePython tests that python utility packages install
// through pip while system packages stay on apt.
func TestRenderDockerfilePython(t *testing.T) {
	img := testImage(t, "client", map[string]any{
		"software": "python",
		"util":     []any{"python3-dnspython", "tcpdump"},
	})

	out, err := RenderDockerfile(img, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "FROM python:3.11-slim") {
		t.Errorf("expected slim base image:\n%s", out)
	}
	if !strings.Contains(out, "RUN pip install --no-cache-dir dnspython") {
		t.Errorf("expected dnspython installed through pip:\n%s", out)
	}
	if !strings.Contains(out, "tcpdump") {
		t.Errorf("expected tcpdump on the apt side:\n%s", out)
	}
}

// TestRenderDockerfileMirrors tests apt and pip mirror injection.
func TestRenderDockerfileMirrors(t *testing.T) {
	img := testImage(t, "authoritative", map[string]any{"software": "bind"})
	mirror := testMirror(t, map[string]any{
		"apt": "https://mirrors.example.edu/ubuntu",
		"pip": "mirrors.example.edu/pypi",
	})

	out, err := RenderDockerfile(img, mirror)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "s|archive.ubuntu.com|mirrors.example.edu/ubuntu|g") {
		t.Errorf("expected apt sources rewritten to the mirror:\n%s", out)
	}
	if !strings.Contains(out, "RUN pip3 config set global.index-url https://mirrors.example.edu/pypi/simple") {
		t.Errorf("expected pip index pointed at the mirror:\n%s", out)
	}
}

// TestRenderDockerfileExternal tests that external images are rejected.
func TestRenderDockerfileExternal(t *testing.T) {
	img := testImage(t, "upstream", map[string]any{"from": "ubuntu:24.04"})
	if _, err := RenderDockerfile(img, nil); err == nil {
		t.Fatal("expected an error for an external image")
	}
}
