// Package store runs querykit queries against a relational database through
// bun.
//
// SQL text comes from internal/querysql; bun formats the bound values for
// the connected dialect and scans rows into records. Two dialects are
// supported:
//
//   - SQLite (mattn/go-sqlite3), opened with WAL, a busy timeout, foreign
//     keys and case-sensitive LIKE so pattern matching agrees with the
//     in-memory backend
//   - PostgreSQL (lib/pq)
//
// # Ordering
//
// Every SELECT ends with the entity's id as a final ascending key, so rows
// with equal sort keys come back in the same order on every run.
//
// # Values
//
// Fields typed "any" may hold maps or slices; these are stored as JSON text
// and decoded again on read. []byte column values are returned as strings.
package store
