// Package store persists pass-run traces to SQLite: one row per run plus
// the observers inserted and the registry's edge bindings, for later
// inspection and debugging.
package store
