// Package sqlite provides a SQLite-backed session store.
//
// Store implements service.SessionStore on top of modernc.org/sqlite, a
// cgo-free driver. Every RunAtomic call is one immediate transaction, and the
// callback's reads go through that transaction, so capacity checks and the
// writes they guard commit together. Lock contention surfaces as a
// retryable CONFLICT error.
//
// Schema changes live in the migrations package as numbered .sql files with
// "-- +migrate Up" and "-- +migrate Down" sections. Open applies any that
// have not been recorded in schema_migrations.
package sqlite
