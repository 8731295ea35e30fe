package config

import (
	"strings"
	"testing"
)

// TestExpandBuildsMapping tests that a plain mapping passes through unchanged
func TestExpandBuildsMapping(t *testing.T) {
	builds := mustYAML(t, "resolver: {ref: \"unbound:recursor\"}\n")
	got, err := ExpandBuilds(builds)
	if err != nil {
		t.Fatalf("ExpandBuilds returned error: %v", err)
	}
	if !got.Equal(builds) {
		t.Errorf("expected mapping passthrough, got %s", got.Project())
	}
}

func TestExpandBuildsSequenceOfSingles(t *testing.T) {
	builds := mustYAML(t, `
- resolver: {ref: "unbound:recursor"}
- authority: {ref: "bind:authority"}
`)
	got, err := ExpandBuilds(builds)
	if err != nil {
		t.Fatalf("ExpandBuilds returned error: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 services, got %d", got.Len())
	}
	if keys := got.Keys(); keys[0] != "resolver" || keys[1] != "authority" {
		t.Errorf("expected declaration order to survive, got %v", keys)
	}
}

// TestExpandBuildsRange tests the {range: n} comprehension form
func TestExpandBuildsRange(t *testing.T) {
	builds := mustYAML(t, `
- name: "auth{{.i}}"
  for_each: {range: 3}
  template:
    ref: "bind:authority"
    behavior: "zone{{.i}}.test/ master"
`)
	got, err := ExpandBuilds(builds)
	if err != nil {
		t.Fatalf("ExpandBuilds returned error: %v", err)
	}
	want := []string{"auth0", "auth1", "auth2"}
	keys := got.Keys()
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("service %d: expected %q, got %q", i, k, keys[i])
		}
	}
	def, _ := got.Get("auth1")
	behavior, _ := def.Get("behavior")
	if behavior.Text() != "zone1.test/ master" {
		t.Errorf("expected rendered behavior, got %q", behavior.Text())
	}
}

func TestExpandBuildsRangeForms(t *testing.T) {
	tests := []struct {
		name  string
		r     string
		count int
		first string
	}{
		{"stop only", "{range: 2}", 2, "0"},
		{"start stop", "{range: [5, 8]}", 3, "5"},
		{"with step", "{range: [0, 10, 5]}", 2, "0"},
		{"negative step", "{range: [3, 0, -1]}", 3, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builds := mustYAML(t, "- name: \"s{{.value}}\"\n  for_each: "+tt.r+"\n  template: {ref: \"unbound:recursor\"}\n")
			got, err := ExpandBuilds(builds)
			if err != nil {
				t.Fatalf("ExpandBuilds returned error: %v", err)
			}
			if got.Len() != tt.count {
				t.Fatalf("expected %d services, got %v", tt.count, got.Keys())
			}
			if got.Keys()[0] != "s"+tt.first {
				t.Errorf("expected first service s%s, got %s", tt.first, got.Keys()[0])
			}
		})
	}
}

// TestExpandBuildsExplicitList tests iterating an explicit element list with
// {{.value}} available in templates
func TestExpandBuildsExplicitList(t *testing.T) {
	builds := mustYAML(t, `
- name: "ns-{{.value}}"
  for_each: [eu, us]
  template:
    ref: "bind:authority"
    behavior: "{{.value}}.example.com/ master"
`)
	got, err := ExpandBuilds(builds)
	if err != nil {
		t.Fatalf("ExpandBuilds returned error: %v", err)
	}
	def, ok := got.Get("ns-us")
	if !ok {
		t.Fatalf("expected service ns-us, got %v", got.Keys())
	}
	behavior, _ := def.Get("behavior")
	if behavior.Text() != "us.example.com/ master" {
		t.Errorf("unexpected rendered behavior %q", behavior.Text())
	}
}

func TestExpandBuildsDuplicateNames(t *testing.T) {
	builds := mustYAML(t, `
- resolver: {ref: "unbound:recursor"}
- resolver: {ref: "bind:recursor"}
`)
	if _, err := ExpandBuilds(builds); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate name error, got: %v", err)
	}

	generated := mustYAML(t, `
- name: "same"
  for_each: {range: 2}
  template: {ref: "unbound:recursor"}
`)
	if _, err := ExpandBuilds(generated); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate generated name error, got: %v", err)
	}
}

func TestExpandBuildsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"scalar builds", "just-a-string"},
		{"non-mapping entry", "- 42"},
		{"multi-key entry", "- {a: {}, b: {}}"},
		{"comprehension without template", "- {name: x, for_each: {range: 1}}"},
		{"zero step", "- {name: x, for_each: {range: [0, 3, 0]}, template: {}}"},
		{"bad template key", "- name: \"{{.missing}}\"\n  for_each: {range: 1}\n  template: {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExpandBuilds(mustYAML(t, tt.in)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
