// Package config implements the configuration data model for dnsbuilder.
//
// All configuration is represented as Value, a tagged variant over four kinds:
// Null, Scalar, Sequence and Mapping. Mappings preserve key declaration order.
// The package provides the layered deep-merge engine used for include merging
// and template inheritance, the YAML loader with include resolution, build
// comprehension preprocessing, and document validation (CUE schema plus
// struct-level checks).
//
// The merge engine is pure: it never mutates either input and the result never
// aliases mutable state from them.
package config
