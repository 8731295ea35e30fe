package artifact

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/fsio"
)

const writerDocument = `
name: lab
inet: 172.20.0.0/24
images:
  authoritative:
    software: bind
  recursor:
    software: unbound
  client:
    software: python
builds:
  root:
    image: authoritative
    address: 172.20.0.10
    behavior: ". master com NS tld"
    volumes:
      - "resource:configs/named.conf:/usr/local/etc/named.conf"
  tld:
    image: authoritative
    behavior: "com master www A 172.20.0.99"
    volumes:
      - "resource:configs/named.conf:/usr/local/etc/named.conf"
      - "resource:configs/named-authority.conf:/usr/local/etc/extra.conf"
  recursor:
    image: recursor
    behavior: ". hint root"
    volumes:
      - "resource:configs/unbound.conf:/usr/local/etc/unbound/unbound.conf"
  client:
    image: client
    environment:
      - "RESOLVER=${services.recursor.ip}"
`

func compilePlan(t *testing.T, text string) *builder.BuildPlan {
	t.Helper()
	raw, err := config.FromYAML([]byte(text))
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	doc, err := config.NewDocument(raw)
	if err != nil {
		t.Fatalf("lift document: %v", err)
	}
	p := builder.NewPipeline(doc,
		builder.WithLabels(builder.SequentialLabels()),
		builder.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		builder.WithEnv(func(string) (string, bool) { return "", false }),
	)
	plan, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return plan
}

func testWriter(t *testing.T) (*Writer, *fsio.Router, fsio.Path) {
	t.Helper()
	fs := fsio.NewRouter()
	out := fsio.Path{Protocol: fsio.ProtoMem, Path: "/out"}
	w := NewWriter(fs,
		WithOutput(out),
		WithWriterClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	return w, fs, out
}

func readOutput(t *testing.T, fs *fsio.Router, p fsio.Path) string {
	t.Helper()
	content, err := fs.ReadText(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return content
}

// TestWriteTree tests the full output layout for a mixed bind, unbound and
// python topology.
func TestWriteTree(t *testing.T) {
	plan := compilePlan(t, writerDocument)
	w, fs, out := testWriter(t)

	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("write: %v", err)
	}

	root := out.Join("lab")
	for _, rel := range []string{
		"root/Dockerfile",
		"root/contents/named.conf",
		"root/contents/generated_zones.conf",
		"root/contents/zones/db.root",
		"recursor/Dockerfile",
		"recursor/contents/unbound.conf",
		"recursor/contents/zones/gen_recursor_root.hints",
		"client/Dockerfile",
		"docker-compose.yml",
	} {
		ok, err := fs.Exists(root.Join(rel))
		if err != nil {
			t.Fatalf("exists %s: %v", rel, err)
		}
		if !ok {
			t.Errorf("expected %s in the output tree", rel)
		}
	}
}

// TestWriteBindFragments tests the generated include file and its hookup
// into the main bind configuration.
func TestWriteBindFragments(t *testing.T) {
	plan := compilePlan(t, writerDocument)
	w, fs, out := testWriter(t)
	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("write: %v", err)
	}

	gen := readOutput(t, fs, out.Join("lab", "root", "contents", "generated_zones.conf"))
	if !strings.HasPrefix(gen, "# Auto-generated by DNS Builder for 'root'\n\n") {
		t.Errorf("unexpected include file header:\n%s", gen)
	}
	if !strings.Contains(gen, `zone "." { type master; file "/usr/local/etc/zones/db.root"; };`) {
		t.Errorf("expected a master zone clause:\n%s", gen)
	}

	main := readOutput(t, fs, out.Join("lab", "root", "contents", "named.conf"))
	if !strings.Contains(main, "options {") {
		t.Errorf("expected the bundled configuration to survive the copy:\n%s", main)
	}
	if !strings.Contains(main, `include "/usr/local/etc/generated_zones.conf";`) {
		t.Errorf("expected an include directive for the generated file:\n%s", main)
	}

	zone := readOutput(t, fs, out.Join("lab", "root", "contents", "zones", "db.root"))
	if !strings.HasPrefix(zone, "$ORIGIN .\n") {
		t.Errorf("unexpected zone file origin:\n%s", zone)
	}
	if !strings.Contains(zone, "SOA") || !strings.Contains(zone, "NS") {
		t.Errorf("expected SOA and NS records:\n%s", zone)
	}
}

// TestWriteSecondaryConfInclude tests that a second mounted .conf is
// included from the main configuration.
func TestWriteSecondaryConfInclude(t *testing.T) {
	plan := compilePlan(t, writerDocument)
	w, fs, out := testWriter(t)
	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("write: %v", err)
	}

	main := readOutput(t, fs, out.Join("lab", "tld", "contents", "named.conf"))
	if !strings.Contains(main, `include "/usr/local/etc/extra.conf";`) {
		t.Errorf("expected the secondary configuration to be included:\n%s", main)
	}
}

// TestWriteUnboundFragments tests the unbound include file assembly: server
// options under one server clause, an unbound-style include directive in
// the main configuration.
func TestWriteUnboundFragments(t *testing.T) {
	plan := compilePlan(t, writerDocument)
	w, fs, out := testWriter(t)
	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("write: %v", err)
	}

	gen := readOutput(t, fs, out.Join("lab", "recursor", "contents", "generated_zones.conf"))
	if !strings.Contains(gen, "server:\n\troot-hints: \"/usr/local/etc/unbound/zones/gen_recursor_root.hints\"") {
		t.Errorf("expected a server clause with the root hints path:\n%s", gen)
	}

	main := readOutput(t, fs, out.Join("lab", "recursor", "contents", "unbound.conf"))
	if !strings.Contains(main, "include: \"/usr/local/etc/generated_zones.conf\"") {
		t.Errorf("expected an unbound include directive:\n%s", main)
	}

	hints := readOutput(t, fs, out.Join("lab", "recursor", "contents", "zones", "gen_recursor_root.hints"))
	if !strings.Contains(hints, "root.") {
		t.Errorf("expected the hint file to name the root service:\n%s", hints)
	}
}

// TestWriteCompose tests the rendered compose descriptor.
func TestWriteCompose(t *testing.T) {
	plan := compilePlan(t, writerDocument)
	w, fs, out := testWriter(t)
	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("write: %v", err)
	}

	compose := readOutput(t, fs, out.Join("lab", "docker-compose.yml"))
	for _, want := range []string{
		"name: lab",
		"container_name: lab-root",
		"ipv4_address: 172.20.0.10",
		"subnet: 172.20.0.0/24",
		"build: ./root",
		"NET_ADMIN",
		"./root/contents/named.conf:/usr/local/etc/named.conf",
		"./root/contents/generated_zones.conf:/usr/local/etc/generated_zones.conf",
		"driver: bridge",
	} {
		if !strings.Contains(compose, want) {
			t.Errorf("expected compose descriptor to contain %q:\n%s", want, compose)
		}
	}

	resolver := plan.Service("recursor").Address
	if !strings.Contains(compose, "RESOLVER="+resolver) {
		t.Errorf("expected the client environment to carry the resolver address %s:\n%s", resolver, compose)
	}
}

// TestWriteFragmentsWithoutMainConf tests that behavior without a mounted
// main configuration is rejected.
func TestWriteFragmentsWithoutMainConf(t *testing.T) {
	plan := compilePlan(t, `
name: broken
inet: 172.21.0.0/24
images:
  authoritative:
    software: bind
builds:
  root:
    image: authoritative
    behavior: ". master com NS 172.21.0.9"
`)
	w, _, _ := testWriter(t)
	err := w.Write(context.Background(), plan)
	if err == nil {
		t.Fatal("expected an error for behavior without a main configuration")
	}
	if !strings.Contains(err.Error(), "main .conf") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestWriteReplacesPreviousOutput tests that a rerun does not leave stale
// files from the previous render behind.
func TestWriteReplacesPreviousOutput(t *testing.T) {
	plan := compilePlan(t, writerDocument)
	fs := fsio.NewRouter()
	out := fsio.Path{Protocol: fsio.ProtoFile, Path: filepath.ToSlash(t.TempDir())}
	w := NewWriter(fs, WithOutput(out))

	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("first write: %v", err)
	}
	stale := out.Join("lab", "stale.txt")
	if err := fs.WriteText(stale, "leftover"); err != nil {
		t.Fatalf("plant stale file: %v", err)
	}
	if err := w.Write(context.Background(), plan); err != nil {
		t.Fatalf("second write: %v", err)
	}
	ok, err := fs.Exists(stale)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Error("expected the previous output to be cleared")
	}
}
