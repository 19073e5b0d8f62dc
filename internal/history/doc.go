// Package history persists the export run ledger in SQLite.
//
// Every batch run gets a row keyed by its run id, and every (controller,
// source) pair it attempted is recorded with its destination, outcome and
// error classification. The CLI reads the ledger for `fseqgen history`.
// Migrations are embedded and applied on Open.
package history
