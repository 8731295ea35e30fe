package config

import "strings"

// Merge layers override on top of base and returns a freshly allocated result.
// Neither input is mutated and the result shares no mutable state with them.
//
// The merge rules depend on the kind pair:
//
//   - mapping x mapping: keys unique to one side are copied, shared keys merge
//     recursively with override's entry as the override side.
//   - sequence x sequence: base is kept in order; override elements whose
//     canonical projection is absent from base's projection set are appended in
//     their original order. The set is computed from base once and never
//     updated while scanning override, so repeats inside override survive.
//   - mapping x sequence (either direction): both sides are normalized to
//     mappings ("KEY=VALUE" tokens) and shallow-merged with override winning;
//     if either side does not normalize, override replaces base wholesale.
//   - anything else: override replaces base.
func Merge(base, override *Value) *Value {
	switch {
	case base.Kind() == KindMapping && override.Kind() == KindMapping:
		return mergeMappings(base, override)

	case base.Kind() == KindSequence && override.Kind() == KindSequence:
		return mergeSequences(base, override)

	case isContainer(base) && isContainer(override):
		bm, bok := NormalizeToMapping(base)
		om, ook := NormalizeToMapping(override)
		if !bok || !ook {
			return override.Clone()
		}
		merged := bm
		for _, k := range om.Keys() {
			e, _ := om.Get(k)
			merged.Set(k, e)
		}
		return merged

	default:
		return override.Clone()
	}
}

func mergeMappings(base, override *Value) *Value {
	out := Mapping()
	for _, k := range base.Keys() {
		bv, _ := base.Get(k)
		if ov, ok := override.Get(k); ok {
			out.Set(k, Merge(bv, ov))
		} else {
			out.Set(k, bv.Clone())
		}
	}
	for _, k := range override.Keys() {
		if _, ok := base.Get(k); ok {
			continue
		}
		ov, _ := override.Get(k)
		out.Set(k, ov.Clone())
	}
	return out
}

func mergeSequences(base, override *Value) *Value {
	out := Sequence()
	seen := make(map[string]struct{}, base.Len())
	for _, e := range base.Elems() {
		seen[e.Project()] = struct{}{}
		out.Append(e.Clone())
	}
	// The projection set is fixed here: override's own repeats are not
	// collapsed against each other, only against base.
	for _, e := range override.Elems() {
		if _, dup := seen[e.Project()]; dup {
			continue
		}
		out.Append(e.Clone())
	}
	return out
}

func isContainer(v *Value) bool {
	k := v.Kind()
	return k == KindMapping || k == KindSequence
}

// NormalizeToMapping converts a value into a fresh mapping if possible.
// Mappings shallow-copy. Sequences of string scalars split each element on the
// first '='; a token with no '=' maps the whole token to null. Anything else
// (including sequences holding non-string elements) does not normalize.
func NormalizeToMapping(v *Value) (*Value, bool) {
	switch v.Kind() {
	case KindMapping:
		out := Mapping()
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out.Set(k, e.Clone())
		}
		return out, true
	case KindSequence:
		out := Mapping()
		for _, e := range v.Elems() {
			if e.Kind() != KindScalar {
				return nil, false
			}
			s, ok := e.Scalar().(string)
			if !ok {
				return nil, false
			}
			if key, val, found := strings.Cut(s, "="); found {
				out.Set(key, String(val))
			} else {
				out.Set(s, Null())
			}
		}
		return out, true
	default:
		return nil, false
	}
}
