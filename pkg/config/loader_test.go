package config

import (
	"strings"
	"testing"

	"github.com/kie-chi/dnsbuilder/pkg/fsio"
)

func memWrite(t *testing.T, fs *fsio.Router, path, text string) {
	t.Helper()
	p, err := fsio.Parse(path)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", path, err)
	}
	if err := fs.WriteText(p, text); err != nil {
		t.Fatalf("WriteText(%q) returned error: %v", path, err)
	}
}

// TestLoaderIncludeMerge tests that includes layer underneath the including
// document, later includes overriding earlier ones
func TestLoaderIncludeMerge(t *testing.T) {
	fs := fsio.NewRouter()
	memWrite(t, fs, "mem:///lab/base.yml", `
name: base
inet: 10.0.0.0/16
builds:
  resolver:
    ref: "unbound:recursor"
    image: {apt: [vim]}
`)
	memWrite(t, fs, "mem:///lab/site.yml", `
inet: 10.1.0.0/16
builds:
  resolver:
    image: {apt: [tcpdump]}
`)
	memWrite(t, fs, "mem:///lab/main.yml", `
include:
  - base.yml
  - site.yml
name: lab
builds:
  client:
    image: {from: "ubuntu:22.04"}
`)

	doc, err := NewLoader(fs).Load("mem:///lab/main.yml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.Name != "lab" {
		t.Errorf("expected including document's name to win, got %q", doc.Name)
	}
	if doc.Inet != "10.1.0.0/16" {
		t.Errorf("expected later include to override earlier, got %q", doc.Inet)
	}

	resolver, ok := doc.Builds.Get("resolver")
	if !ok {
		t.Fatal("expected 'resolver' from includes")
	}
	img, _ := resolver.Get("image")
	apt, _ := img.Get("apt")
	if apt.Len() != 2 {
		t.Errorf("expected apt union [vim tcpdump], got %s", apt.Project())
	}
	if ref, _ := resolver.Get("ref"); ref.Text() != "unbound:recursor" {
		t.Error("expected 'ref' from base include to survive")
	}
	if _, ok := doc.Builds.Get("client"); !ok {
		t.Error("expected 'client' from the including document")
	}
}

// TestLoaderNestedIncludeRelativePaths tests that relative includes resolve
// against the including file's directory
func TestLoaderNestedIncludeRelativePaths(t *testing.T) {
	fs := fsio.NewRouter()
	memWrite(t, fs, "mem:///lab/main.yml", "include: shared/common.yml\nname: lab\ninet: 10.0.0.0/16\n")
	memWrite(t, fs, "mem:///lab/shared/common.yml", "include: defaults.yml\n")
	memWrite(t, fs, "mem:///lab/shared/defaults.yml", "builds: {resolver: {ref: \"unbound:recursor\"}}\n")

	doc, err := NewLoader(fs).Load("mem:///lab/main.yml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, ok := doc.Builds.Get("resolver"); !ok {
		t.Error("expected build from nested include")
	}
}

func TestLoaderIncludeCycle(t *testing.T) {
	fs := fsio.NewRouter()
	memWrite(t, fs, "mem:///a.yml", "include: b.yml\nname: a\ninet: 10.0.0.0/16\n")
	memWrite(t, fs, "mem:///b.yml", "include: a.yml\n")

	_, err := NewLoader(fs).Load("mem:///a.yml")
	if err == nil {
		t.Fatal("expected include cycle error")
	}
	if !strings.Contains(err.Error(), "include cycle") || !strings.Contains(err.Error(), " -> ") {
		t.Errorf("expected cycle error naming the chain, got: %v", err)
	}
}

// TestLoaderExpandsComprehensions tests that builds sequences are expanded
// before validation
func TestLoaderExpandsComprehensions(t *testing.T) {
	fs := fsio.NewRouter()
	memWrite(t, fs, "mem:///main.yml", `
name: lab
inet: 10.0.0.0/16
builds:
  - name: "auth{{.i}}"
    for_each: {range: 2}
    template: {ref: "bind:authority"}
`)
	doc, err := NewLoader(fs).Load("mem:///main.yml")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if doc.Builds.Len() != 2 {
		t.Errorf("expected 2 expanded services, got %v", doc.Builds.Keys())
	}
}

func TestLoaderRejectsBadHeader(t *testing.T) {
	fs := fsio.NewRouter()
	memWrite(t, fs, "mem:///main.yml", "name: lab\ninet: not-a-subnet\n")
	if _, err := NewLoader(fs).Load("mem:///main.yml"); err == nil {
		t.Error("expected validation error for malformed inet")
	}

	memWrite(t, fs, "mem:///noname.yml", "inet: 10.0.0.0/16\n")
	if _, err := NewLoader(fs).Load("mem:///noname.yml"); err == nil {
		t.Error("expected validation error for missing name")
	}
}

func TestLoaderMissingFile(t *testing.T) {
	fs := fsio.NewRouter()
	if _, err := NewLoader(fs).Load("mem:///absent.yml"); err == nil {
		t.Error("expected error for missing document")
	}
}
