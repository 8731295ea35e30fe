// Package fsio provides the multi-protocol path and filesystem layer used to
// load configuration includes and materialize build artifacts.
//
// Paths are URI-like strings resolved into a Path descriptor carrying the
// protocol, optional host, slash path and optional ref fragment. Supported
// protocols:
//
//	file://  local disk (the default for bare paths)
//	mem://   process-local in-memory tree
//	temp://  in-memory scratch namespace, wiped per run
//	res://   bundled read-only resources compiled into the binary
//	git://   remote repository checkout (clone + ref), read-only
//	sftp://  remote host over SSH
//
// The Router multiplexes a FileSystem implementation per protocol and applies
// an explicit copy support matrix: remote-to-remote copies are rejected rather
// than silently degraded, so callers stage through a local or in-memory path.
package fsio
