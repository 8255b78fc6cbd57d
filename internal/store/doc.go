// Package store is the encrypted-at-rest conversation and message log
// (spec §4.G). It keeps the teacher's store-behind-an-interface shape from
// internal/store/file_store.go and internal/store/io.go (atomic writes,
// passphrase-derived envelope encryption) but moves the row store itself
// from flat JSON files to database/sql over modernc.org/sqlite, since the
// log needs write-ahead journaling, a busy-timeout, and concurrent
// readers that a JSON file cannot give it.
package store
