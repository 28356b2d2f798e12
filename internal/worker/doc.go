// Package worker runs the job-processing loop: poll the store for
// claimable work, drive the executor over the claimed job, persist
// progress and checkpoints at unit boundaries, and move the job to its
// terminal state. Multiple workers may run against the same database; the
// store's transactional claim is the only coordination between them.
package worker
