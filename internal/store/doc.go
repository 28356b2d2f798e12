// Package store defines the persistence contracts of the job queue: the
// JobStore interface, shared sentinel errors, the DBTX abstraction over
// connections and transactions, and helpers for running transactional and
// retried store operations.
//
// Implementations live under internal/platform (currently SQLite). All
// mutations are transactional; the atomic claim in ClaimNext is the only
// synchronization primitive between workers.
package store
