// Package executor defines the contract between the worker loop and the
// audio pipeline, and provides the audiobook executor that drives it. The
// executor turns a claimed job into a lazy sequence of per-chapter units,
// skipping chapters the job's checkpoint marks as done, so a resumed job
// never re-synthesizes finished work. The actual text extraction, speech
// synthesis and audio encoding live behind small collaborator interfaces.
package executor
