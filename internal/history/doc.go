// Package history journals analysis runs in SQLite.
//
// The Store records each accepted run, its feature selection, and its final
// outcome so the runs endpoints and the CLI can report on past work after the
// event stream is gone. Rows move from running to exactly one terminal status;
// startup recovery fails any row left running by a crashed daemon.
//
// The database is a bounded journal, not an archive. Prune keeps the most
// recent rows and schema changes bump the version in schema.go; users delete
// the database to adopt a new schema.
package history
