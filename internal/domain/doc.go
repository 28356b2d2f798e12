// Package domain defines the core entities of the audiobook job queue:
// jobs and their state machine, progress, error and checkpoint records,
// per-job log entries and tracked files.
//
// Entities here carry no persistence logic. Structured fields that cross
// the store boundary (progress, options, error info, checkpoints) are
// serialized as JSON by the store layer, not here.
package domain
