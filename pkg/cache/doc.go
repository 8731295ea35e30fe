// Package cache provides SQLite-backed persistence for compile runs and
// digest-keyed build plans. A plan is cached under the SHA-256 digest of the
// canonical document projection, so an unchanged configuration can skip
// recompilation entirely.
package cache
