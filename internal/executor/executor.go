package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/konsultti/kokoro-tts/internal/domain"
)

// Chapter is one unit of work extracted from the input document.
type Chapter struct {
	// Index is the chapter's position in the book, zero-based. It doubles
	// as the unit index recorded in checkpoints.
	Index int

	// Name is the chapter title, used for progress display.
	Name string

	// Text is the chapter body to synthesize.
	Text string
}

// Unit is one completed unit of work emitted by an executor. A unit
// normally carries a single artifact; a chapter that had to be subdivided
// carries its parts in playback order.
type Unit struct {
	Index         int
	ChapterName   string
	ArtifactPaths []string

	// Total is the number of units in the whole job, so progress can be
	// reported without a separate planning call.
	Total int

	// Skipped marks a unit restored from a previous run's checkpoint
	// rather than synthesized in this run.
	Skipped bool
}

// UnitError reports that one unit failed after the executor exhausted its
// internal retries. The surrounding job is resumable from its checkpoint.
type UnitError struct {
	Index int
	Name  string
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// Executor produces a job's units one at a time through emit. Emission is
// lazy: the next unit is not started until emit returns. A non-nil error
// from emit aborts the run and is returned unchanged, which is how the
// worker stops a run at a unit boundary (cancellation, shutdown).
//
// Run returns *UnitError when a single unit failed but the rest of the job
// is recoverable, and any other error for conditions that fail the whole
// job.
type Executor interface {
	Run(ctx context.Context, job *domain.Job, emit func(Unit) error) error
}

// ChapterSource extracts chapters from an input document. Options are the
// job's opaque options blob; sources that understand keys like intro
// chapter injection or front-matter skipping honor them, others ignore
// them.
type ChapterSource interface {
	Chapters(ctx context.Context, input domain.InputDescriptor, options json.RawMessage) ([]Chapter, error)
}

// Synthesizer renders text to an audio artifact at path. It returns
// an error when the text cannot be synthesized; the executor may retry
// with smaller pieces of the same text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, options json.RawMessage, path string) error
}

// Encoder concatenates unit artifacts, in order, into the final output
// file and returns its size in bytes.
type Encoder interface {
	Encode(ctx context.Context, artifacts []string, output domain.OutputDescriptor, options json.RawMessage) (int64, error)
}
