// Package sqlite implements the store interfaces on an embedded SQLite
// database. The database runs in WAL mode: writers serialize through the
// single file while readers stay unblocked, which is the concurrency
// contract the rest of the system is built on. The atomic claim in
// ClaimNext is the only coordination between worker processes.
package sqlite
