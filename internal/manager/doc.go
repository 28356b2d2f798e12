// Package manager is the producer-side surface of the job system: it
// validates submissions, persists them as queued jobs, and exposes the
// status, cancel, resume, and cleanup operations. The manager never
// touches task execution; submitting a job is a single insert and returns
// immediately, however large the book.
package manager
