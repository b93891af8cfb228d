// Package catalog persists the file index, duplicate groups, migration
// tasks, and operation checkpoints in SQLite.
//
// The Store manages database connections, schema migrations, and the
// status transitions that mirror the public file lifecycle. Status moves
// go through compare-and-set statements so a crashed worker can never
// leave a record half-written, and checkpoints are replaced atomically so
// the last successfully written cursor always survives a crash.
//
// Treat this package as the single source of truth for catalog semantics;
// when you add statuses or columns, add a migration under migrations/ and
// update the transition table in models.go.
package catalog
