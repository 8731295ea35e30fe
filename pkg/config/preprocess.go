package config

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
)

// ExpandBuilds expands comprehension-style build declarations into the final
// builds mapping. A builds sequence may contain single-entry mappings (one
// service each) and comprehension blocks:
//
//	- name: "auth{{.i}}"
//	  for_each: {range: 3}    # or an explicit list
//	  template: {ref: "bind:authority", ...}
//
// Name and template strings are rendered with text/template against
// {{.i}} (index) and {{.value}} (current element). A builds mapping is
// returned unchanged. The input is never mutated.
func ExpandBuilds(builds *Value) (*Value, error) {
	switch builds.Kind() {
	case KindMapping:
		return builds.Clone(), nil
	case KindSequence:
	default:
		return nil, fmt.Errorf("'builds' must be a mapping or a sequence, got %s", builds.Kind())
	}

	out := Mapping()
	for _, item := range builds.Elems() {
		if item.Kind() != KindMapping {
			return nil, fmt.Errorf("invalid entry in 'builds' sequence: expected a mapping, got %s", item.Kind())
		}
		if _, ok := item.Get("for_each"); ok {
			if err := expandBlock(item, out); err != nil {
				return nil, err
			}
			continue
		}
		if item.Len() != 1 {
			return nil, fmt.Errorf("invalid entry in 'builds' sequence: expected a single-service mapping or a comprehension block")
		}
		name := item.Keys()[0]
		if _, dup := out.Get(name); dup {
			return nil, fmt.Errorf("duplicate service name %q in 'builds'", name)
		}
		def, _ := item.Get(name)
		out.Set(name, def.Clone())
	}
	return out, nil
}

func expandBlock(block, out *Value) error {
	nameTmpl, _ := block.Get("name")
	iter, _ := block.Get("for_each")
	tmpl, hasTmpl := block.Get("template")
	if nameTmpl.Kind() != KindScalar || !hasTmpl {
		return fmt.Errorf("invalid build comprehension: 'name', 'for_each' and 'template' are required")
	}

	elems, err := iterElems(iter)
	if err != nil {
		return err
	}
	for i, elem := range elems {
		ctx := map[string]any{"i": i, "value": elem.ToGo()}
		name, err := renderString(nameTmpl.Text(), ctx)
		if err != nil {
			return fmt.Errorf("render comprehension name %q: %w", nameTmpl.Text(), err)
		}
		if _, dup := out.Get(name); dup {
			return fmt.Errorf("duplicate service name %q generated by build comprehension", name)
		}
		def, err := renderValue(tmpl, ctx)
		if err != nil {
			return fmt.Errorf("render comprehension template for %q: %w", name, err)
		}
		out.Set(name, def)
	}
	return nil
}

// iterElems materializes the for_each iterator: either an explicit sequence or
// a {range: n} / {range: [start, stop]} / {range: [start, stop, step]} block.
func iterElems(iter *Value) ([]*Value, error) {
	switch iter.Kind() {
	case KindSequence:
		return iter.Elems(), nil
	case KindMapping:
		r, ok := iter.Get("range")
		if !ok {
			return nil, fmt.Errorf("invalid 'for_each': mapping form requires a 'range' key")
		}
		return rangeElems(r)
	default:
		return nil, fmt.Errorf("invalid 'for_each': must be a sequence or a range mapping, got %s", iter.Kind())
	}
}

func rangeElems(r *Value) ([]*Value, error) {
	args := []int64{0, 0, 1}
	switch r.Kind() {
	case KindScalar:
		n, err := strconv.ParseInt(r.Text(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid 'range' argument %q", r.Text())
		}
		args[1] = n
	case KindSequence:
		elems := r.Elems()
		if len(elems) < 1 || len(elems) > 3 {
			return nil, fmt.Errorf("'range' takes 1 to 3 integers, got %d", len(elems))
		}
		parsed := make([]int64, len(elems))
		for i, e := range elems {
			n, err := strconv.ParseInt(e.Text(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid 'range' argument %q", e.Text())
			}
			parsed[i] = n
		}
		switch len(parsed) {
		case 1:
			args[1] = parsed[0]
		case 2:
			args[0], args[1] = parsed[0], parsed[1]
		case 3:
			args[0], args[1], args[2] = parsed[0], parsed[1], parsed[2]
		}
	default:
		return nil, fmt.Errorf("invalid 'range': must be an integer or a sequence of integers")
	}
	if args[2] == 0 {
		return nil, fmt.Errorf("'range' step must not be zero")
	}

	var out []*Value
	if args[2] > 0 {
		for i := args[0]; i < args[1]; i += args[2] {
			out = append(out, Int(i))
		}
	} else {
		for i := args[0]; i > args[1]; i += args[2] {
			out = append(out, Int(i))
		}
	}
	return out, nil
}

func renderString(s string, ctx map[string]any) (string, error) {
	t, err := template.New("builds").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderValue renders every string scalar in a tree and deep-copies the rest.
func renderValue(v *Value, ctx map[string]any) (*Value, error) {
	switch v.Kind() {
	case KindScalar:
		if s, ok := v.Scalar().(string); ok {
			rendered, err := renderString(s, ctx)
			if err != nil {
				return nil, err
			}
			return String(rendered), nil
		}
		return v.Clone(), nil
	case KindSequence:
		out := Sequence()
		for _, e := range v.Elems() {
			r, err := renderValue(e, ctx)
			if err != nil {
				return nil, err
			}
			out.Append(r)
		}
		return out, nil
	case KindMapping:
		out := Mapping()
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			r, err := renderValue(e, ctx)
			if err != nil {
				return nil, err
			}
			out.Set(k, r)
		}
		return out, nil
	default:
		return v.Clone(), nil
	}
}
