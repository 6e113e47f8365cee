// Package store caches conversation snapshots in a local SQLite database so
// listing and reading work offline. The cache is refreshed on every
// successful authoritative fetch and is never treated as a source of truth.
package store
