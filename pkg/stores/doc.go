// Package stores archives computed plans in SQLite.
//
// Reports are keyed by target version. Saving with replace removes earlier
// reports for the same target in the same transaction. The schema is created
// from embedded golang-migrate migrations. Nothing read from the archive
// feeds back into planning.
package stores
