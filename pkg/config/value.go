package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindNull is the absent/null value.
	KindNull Kind = iota

	// KindScalar is a string, number or boolean leaf.
	KindScalar

	// KindSequence is an ordered list of values.
	KindSequence

	// KindMapping is an ordered map with unique string keys.
	KindMapping
)

// String returns the kind name for error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the tagged variant all configuration data is represented as.
// The zero value is the null value.
type Value struct {
	kind   Kind
	scalar any // string, bool, int64 or float64 when kind == KindScalar

	seq []*Value // when kind == KindSequence

	keys  []string          // mapping key order, when kind == KindMapping
	items map[string]*Value // mapping entries, when kind == KindMapping
}

// Null returns the null value.
func Null() *Value {
	return &Value{kind: KindNull}
}

// String returns a string scalar.
func String(s string) *Value {
	return &Value{kind: KindScalar, scalar: s}
}

// Bool returns a boolean scalar.
func Bool(b bool) *Value {
	return &Value{kind: KindScalar, scalar: b}
}

// Int returns an integer scalar.
func Int(i int64) *Value {
	return &Value{kind: KindScalar, scalar: i}
}

// Float returns a floating point scalar.
func Float(f float64) *Value {
	return &Value{kind: KindScalar, scalar: f}
}

// Sequence returns a sequence holding the given elements.
func Sequence(elems ...*Value) *Value {
	v := &Value{kind: KindSequence}
	v.seq = append(v.seq, elems...)
	return v
}

// Mapping returns an empty ordered mapping.
func Mapping() *Value {
	return &Value{kind: KindMapping, items: make(map[string]*Value)}
}

// Kind reports the variant held by v.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether v is the null value.
func (v *Value) IsNull() bool {
	return v.Kind() == KindNull
}

// Scalar returns the raw scalar value. It is nil unless Kind is KindScalar.
func (v *Value) Scalar() any {
	if v == nil {
		return nil
	}
	return v.scalar
}

// Text returns the lexical form of a scalar value. Non-scalars return the
// canonical projection, which callers should only rely on for diagnostics.
func (v *Value) Text() string {
	if v.Kind() != KindScalar {
		return v.Project()
	}
	return scalarText(v.scalar)
}

func scalarText(s any) string {
	switch t := s.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Elems returns the elements of a sequence. The returned slice must not be
// modified. It is nil for non-sequences.
func (v *Value) Elems() []*Value {
	if v.Kind() != KindSequence {
		return nil
	}
	return v.seq
}

// Append adds an element to a sequence.
func (v *Value) Append(elem *Value) {
	if v.kind != KindSequence {
		panic("config: Append on non-sequence value")
	}
	v.seq = append(v.seq, elem)
}

// Len returns the number of entries in a sequence or mapping, zero otherwise.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.keys)
	default:
		return 0
	}
}

// Keys returns the mapping keys in declaration order. The returned slice must
// not be modified. It is nil for non-mappings.
func (v *Value) Keys() []string {
	if v.Kind() != KindMapping {
		return nil
	}
	return v.keys
}

// Get looks up a mapping entry.
func (v *Value) Get(key string) (*Value, bool) {
	if v.Kind() != KindMapping {
		return nil, false
	}
	e, ok := v.items[key]
	return e, ok
}

// Set stores a mapping entry, preserving the original position of existing
// keys and appending new keys at the end.
func (v *Value) Set(key string, val *Value) {
	if v.kind != KindMapping {
		panic("config: Set on non-mapping value")
	}
	if _, ok := v.items[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.items[key] = val
}

// Delete removes a mapping entry if present.
func (v *Value) Delete(key string) {
	if v.Kind() != KindMapping {
		return
	}
	if _, ok := v.items[key]; !ok {
		return
	}
	delete(v.items, key)
	for i, k := range v.keys {
		if k == key {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of v sharing no mutable state with it.
func (v *Value) Clone() *Value {
	if v == nil {
		return Null()
	}
	switch v.kind {
	case KindNull, KindScalar:
		c := *v
		return &c
	case KindSequence:
		c := Sequence()
		for _, e := range v.seq {
			c.seq = append(c.seq, e.Clone())
		}
		return c
	case KindMapping:
		c := Mapping()
		for _, k := range v.keys {
			c.Set(k, v.items[k].Clone())
		}
		return c
	default:
		return Null()
	}
}

// Project returns the canonical string projection of v, used by the sequence
// merge to decide element identity. Mapping projections are key-sorted so the
// projection is independent of declaration order.
func (v *Value) Project() string {
	var b strings.Builder
	v.project(&b)
	return b.String()
}

func (v *Value) project(b *strings.Builder) {
	switch v.Kind() {
	case KindNull:
		b.WriteString("null")
	case KindScalar:
		b.WriteString(scalarText(v.scalar))
	case KindSequence:
		b.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				b.WriteString(", ")
			}
			e.project(b)
		}
		b.WriteByte(']')
	case KindMapping:
		sorted := make([]string, len(v.keys))
		copy(sorted, v.keys)
		sort.Strings(sorted)
		b.WriteByte('{')
		for i, k := range sorted {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			v.items[k].project(b)
		}
		b.WriteByte('}')
	}
}

// Equal reports structural equality. Mapping key order is not significant.
func (v *Value) Equal(o *Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindScalar:
		return scalarText(v.scalar) == scalarText(o.scalar)
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for k, e := range v.items {
			oe, ok := o.items[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromYAML decodes a YAML document into a Value, preserving mapping key order.
func FromYAML(data []byte) (*Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if node.Kind == 0 || len(node.Content) == 0 {
		return Null(), nil
	}
	return fromNode(node.Content[0])
}

func fromNode(n *yaml.Node) (*Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return fromScalarNode(n)
	case yaml.SequenceNode:
		v := Sequence()
		for _, c := range n.Content {
			e, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			v.Append(e)
		}
		return v, nil
	case yaml.MappingNode:
		v := Mapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			kn, vn := n.Content[i], n.Content[i+1]
			if kn.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key must be a scalar", kn.Line)
			}
			if _, dup := v.Get(kn.Value); dup {
				return nil, fmt.Errorf("line %d: duplicate mapping key %q", kn.Line, kn.Value)
			}
			e, err := fromNode(vn)
			if err != nil {
				return nil, err
			}
			v.Set(kn.Value, e)
		}
		return v, nil
	case yaml.AliasNode:
		return fromNode(n.Alias)
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

func fromScalarNode(n *yaml.Node) (*Value, error) {
	switch n.Tag {
	case "!!null", "":
		if n.Tag == "!!null" {
			return Null(), nil
		}
		return String(n.Value), nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad bool %q", n.Line, n.Value)
		}
		return Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad int %q", n.Line, n.Value)
		}
		return Int(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad float %q", n.Line, n.Value)
		}
		return Float(f), nil
	default:
		return String(n.Value), nil
	}
}

// FromGo converts plain Go data (as produced by yaml/json decoding or the hook
// engine) into a Value. Map key order follows the sorted key set since plain
// maps carry no order.
func FromGo(data any) (*Value, error) {
	switch t := data.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		return Float(t), nil
	case []any:
		v := Sequence()
		for _, e := range t {
			c, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			v.Append(c)
		}
		return v, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		v := Mapping()
		for _, k := range keys {
			c, err := FromGo(t[k])
			if err != nil {
				return nil, err
			}
			v.Set(k, c)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported go value of type %T", data)
	}
}

// ToGo converts a Value into plain Go data (map[string]any, []any, scalars),
// losing key order. Used at the hook and artifact boundaries.
func (v *Value) ToGo() any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindScalar:
		return v.scalar
	case KindSequence:
		out := make([]any, 0, len(v.seq))
		for _, e := range v.seq {
			out = append(out, e.ToGo())
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.items[k].ToGo()
		}
		return out
	default:
		return nil
	}
}

// MarshalYAML renders a Value through yaml.v3, keeping mapping key order.
func (v *Value) MarshalYAML() (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindScalar:
		return v.scalar, nil
	case KindSequence:
		out := make([]any, 0, len(v.seq))
		for _, e := range v.seq {
			out = append(out, e)
		}
		return out, nil
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range v.keys {
			kn := &yaml.Node{Kind: yaml.ScalarNode, Value: k}
			vn := &yaml.Node{}
			if err := vn.Encode(v.items[k]); err != nil {
				return nil, err
			}
			n.Content = append(n.Content, kn, vn)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v", v.Kind())
	}
}
