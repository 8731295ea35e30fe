package config

import "testing"

func mustYAML(t *testing.T, text string) *Value {
	t.Helper()
	v, err := FromYAML([]byte(text))
	if err != nil {
		t.Fatalf("FromYAML(%q) returned error: %v", text, err)
	}
	return v
}

// TestMergeMappings tests recursive mapping merge with override precedence
func TestMergeMappings(t *testing.T) {
	base := mustYAML(t, `
image:
  from: "ubuntu:22.04"
  apt: [vim]
cap_add: [NET_ADMIN]
`)
	override := mustYAML(t, `
image:
  from: "debian:12"
address: 10.0.0.5
`)
	got := Merge(base, override)

	img, ok := got.Get("image")
	if !ok {
		t.Fatal("merged result lost 'image'")
	}
	from, _ := img.Get("from")
	if from.Text() != "debian:12" {
		t.Errorf("expected override 'from' to win, got %q", from.Text())
	}
	if apt, ok := img.Get("apt"); !ok || apt.Len() != 1 {
		t.Error("expected base-only 'apt' to survive the merge")
	}
	if _, ok := got.Get("cap_add"); !ok {
		t.Error("expected base-only 'cap_add' to survive the merge")
	}
	if addr, ok := got.Get("address"); !ok || addr.Text() != "10.0.0.5" {
		t.Error("expected override-only 'address' in result")
	}
}

// TestMergeMappingKeyOrder tests that base keys keep their position and
// override-only keys append at the end
func TestMergeMappingKeyOrder(t *testing.T) {
	base := mustYAML(t, "a: 1\nb: 2\nc: 3\n")
	override := mustYAML(t, "b: 20\nd: 4\n")
	got := Merge(base, override)

	want := []string{"a", "b", "c", "d"}
	keys := got.Keys()
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: expected %q, got %q", i, k, keys[i])
		}
	}
}

// TestMergeSequences tests set-union semantics keyed on canonical projection
func TestMergeSequences(t *testing.T) {
	base := mustYAML(t, "[vim, dnsutils]")
	override := mustYAML(t, "[dnsutils, tcpdump]")
	got := Merge(base, override)

	want := []string{"vim", "dnsutils", "tcpdump"}
	if got.Len() != len(want) {
		t.Fatalf("expected %v, got %s", want, got.Project())
	}
	for i, e := range got.Elems() {
		if e.Text() != want[i] {
			t.Errorf("element %d: expected %q, got %q", i, want[i], e.Text())
		}
	}
}

// TestMergeSequenceOverrideRepeats tests that repeats inside the override
// sequence are only filtered against base, not against each other
func TestMergeSequenceOverrideRepeats(t *testing.T) {
	base := mustYAML(t, "[a]")
	override := mustYAML(t, "[b, b, a]")
	got := Merge(base, override)

	want := []string{"a", "b", "b"}
	if got.Len() != len(want) {
		t.Fatalf("expected %v, got %s", want, got.Project())
	}
	for i, e := range got.Elems() {
		if e.Text() != want[i] {
			t.Errorf("element %d: expected %q, got %q", i, want[i], e.Text())
		}
	}
}

// TestMergeSequenceOfMappings tests that structured elements are deduplicated
// by structure, not identity
func TestMergeSequenceOfMappings(t *testing.T) {
	base := mustYAML(t, "- {port: 53, proto: udp}")
	override := mustYAML(t, "- {proto: udp, port: 53}\n- {port: 53, proto: tcp}")
	got := Merge(base, override)

	if got.Len() != 2 {
		t.Fatalf("expected 2 elements after dedup, got %d: %s", got.Len(), got.Project())
	}
}

func TestMergeEmptyIdentities(t *testing.T) {
	doc := mustYAML(t, "name: lab\ninet: 10.1.0.0/16\n")

	if got := Merge(Mapping(), doc); !got.Equal(doc) {
		t.Errorf("Merge(empty, doc) = %s, want doc", got.Project())
	}
	if got := Merge(doc, Mapping()); !got.Equal(doc) {
		t.Errorf("Merge(doc, empty) = %s, want doc", got.Project())
	}
}

// TestMergeMixedContainers tests the mapping/sequence normalization path used
// for environment blocks
func TestMergeMixedContainers(t *testing.T) {
	base := mustYAML(t, "HTTP_USER: root\n")
	override := mustYAML(t, "[HTTP_PASS=root, VAR_ONLY]")
	got := Merge(base, override)

	if got.Kind() != KindMapping {
		t.Fatalf("expected mapping result, got %s", got.Kind())
	}
	if v, ok := got.Get("HTTP_USER"); !ok || v.Text() != "root" {
		t.Error("expected HTTP_USER=root from base")
	}
	if v, ok := got.Get("HTTP_PASS"); !ok || v.Text() != "root" {
		t.Error("expected HTTP_PASS=root parsed from override token")
	}
	if v, ok := got.Get("VAR_ONLY"); !ok || !v.IsNull() {
		t.Error("expected VAR_ONLY mapped to null")
	}
}

// TestMergeMixedContainersNormalizeFails tests that a non-normalizable pair
// falls back to replacement
func TestMergeMixedContainersNormalizeFails(t *testing.T) {
	base := mustYAML(t, "a: 1\n")
	override := mustYAML(t, "- {not: scalar}")
	got := Merge(base, override)

	if !got.Equal(override) {
		t.Errorf("expected override to replace base, got %s", got.Project())
	}
}

func TestMergeScalarReplaces(t *testing.T) {
	got := Merge(String("old"), String("new"))
	if got.Text() != "new" {
		t.Errorf("expected scalar override, got %q", got.Text())
	}
	got = Merge(mustYAML(t, "[a, b]"), String("flat"))
	if got.Text() != "flat" {
		t.Errorf("expected scalar to replace sequence, got %q", got.Text())
	}
}

// TestMergeDoesNotAliasInputs tests that mutating the result leaves both
// inputs untouched
func TestMergeDoesNotAliasInputs(t *testing.T) {
	base := mustYAML(t, "outer: {inner: [x]}")
	override := mustYAML(t, "other: 1\n")
	got := Merge(base, override)

	outer, _ := got.Get("outer")
	inner, _ := outer.Get("inner")
	inner.Append(String("y"))

	bOuter, _ := base.Get("outer")
	bInner, _ := bOuter.Get("inner")
	if bInner.Len() != 1 {
		t.Error("merge result aliased base's sequence")
	}
}

func TestNormalizeToMapping(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"mapping", "a: 1", true},
		{"env tokens", "[A=1, B]", true},
		{"equals in value", "[A=b=c]", true},
		{"non-string element", "[1]", false},
		{"nested element", "- {a: 1}", false},
		{"scalar", "plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeToMapping(mustYAML(t, tt.in))
			if ok != tt.ok {
				t.Fatalf("NormalizeToMapping(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if !ok {
				return
			}
			if tt.name == "equals in value" {
				v, _ := got.Get("A")
				if v.Text() != "b=c" {
					t.Errorf("expected split on first '=', got %q", v.Text())
				}
			}
		})
	}
}
