package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/platform/logger"
)

// maxSplitDepth bounds how many times an oversized chapter is halved
// before its failure is reported as a unit failure. Depth 3 means a
// chapter is attempted in up to 8 pieces.
const maxSplitDepth = 3

// Audiobook drives the chapter pipeline for one job: extract chapters,
// synthesize each one to a temp artifact under workDir, and emit a unit
// per chapter in book order. Chapters already recorded in the job's
// checkpoint are restored from their existing artifacts instead of being
// synthesized again.
type Audiobook struct {
	source  ChapterSource
	synth   Synthesizer
	workDir string
}

// NewAudiobook creates an executor that keeps per-job temp artifacts under
// workDir.
func NewAudiobook(source ChapterSource, synth Synthesizer, workDir string) *Audiobook {
	return &Audiobook{
		source:  source,
		synth:   synth,
		workDir: workDir,
	}
}

// Run implements Executor.
func (a *Audiobook) Run(ctx context.Context, job *domain.Job, emit func(Unit) error) error {
	log := logger.FromContext(ctx)

	chapters, err := a.source.Chapters(ctx, job.Input, job.Options)
	if err != nil {
		return fmt.Errorf("failed to extract chapters from %s: %w", job.Input.Path, err)
	}
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters found in %s", job.Input.Path)
	}

	jobDir := filepath.Join(a.workDir, job.ID.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	for _, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return err
		}

		if job.Checkpoint.IsChapterCompleted(ch.Index) {
			artifacts, err := a.restoreArtifacts(jobDir, ch.Index)
			if err != nil {
				return fmt.Errorf("failed to restore artifacts for chapter %d: %w", ch.Index, err)
			}
			if err := emit(Unit{Index: ch.Index, ChapterName: ch.Name, ArtifactPaths: artifacts, Total: len(chapters), Skipped: true}); err != nil {
				return err
			}
			continue
		}

		base := filepath.Join(jobDir, chapterBase(ch.Index))
		if err := removeStale(base); err != nil {
			return fmt.Errorf("failed to clean stale artifacts for chapter %d: %w", ch.Index, err)
		}

		artifacts, err := a.synthesizeChapter(ctx, ch, job, base, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &UnitError{Index: ch.Index, Name: ch.Name, Err: err}
		}

		log.Debug("chapter synthesized",
			"job_id", job.ID,
			"chapter", ch.Index,
			"parts", len(artifacts))

		if err := emit(Unit{Index: ch.Index, ChapterName: ch.Name, ArtifactPaths: artifacts, Total: len(chapters)}); err != nil {
			return err
		}
	}

	return nil
}

// synthesizeChapter renders one chapter, halving the text and retrying
// when synthesis fails, until maxSplitDepth is reached.
func (a *Audiobook) synthesizeChapter(ctx context.Context, ch Chapter, job *domain.Job, base string, depth int) ([]string, error) {
	path := base + ".wav"
	err := a.synth.Synthesize(ctx, ch.Text, job.Options, path)
	if err == nil {
		return []string{path}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if depth >= maxSplitDepth {
		return nil, err
	}

	left, right, ok := splitText(ch.Text)
	if !ok {
		return nil, err
	}

	logger.FromContext(ctx).Warn("chapter synthesis failed, retrying in halves",
		"job_id", job.ID,
		"chapter", ch.Index,
		"depth", depth+1,
		"error", err)

	// Part suffixes keep lexicographic order equal to playback order.
	leftPaths, err := a.synthesizeChapter(ctx, Chapter{Index: ch.Index, Name: ch.Name, Text: left}, job, base+"_a", depth+1)
	if err != nil {
		return nil, err
	}
	rightPaths, err := a.synthesizeChapter(ctx, Chapter{Index: ch.Index, Name: ch.Name, Text: right}, job, base+"_b", depth+1)
	if err != nil {
		return nil, err
	}
	return append(leftPaths, rightPaths...), nil
}

// restoreArtifacts collects the artifacts a previous run produced for a
// completed chapter.
func (a *Audiobook) restoreArtifacts(jobDir string, index int) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(jobDir, chapterBase(index)+"*.wav"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no artifacts on disk despite checkpoint entry")
	}
	sort.Strings(matches)
	return matches, nil
}

func chapterBase(index int) string {
	return fmt.Sprintf("chapter_%04d", index)
}

// removeStale deletes leftovers of a previously failed attempt so a
// retried chapter cannot mix old part files with new ones.
func removeStale(base string) error {
	matches, err := filepath.Glob(base + "*.wav")
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}

// splitText halves text at the whitespace nearest its midpoint. Returns
// false when the text has no usable split point.
func splitText(text string) (string, string, bool) {
	mid := len(text) / 2
	split := strings.LastIndexAny(text[:mid], " \n\t")
	if split <= 0 {
		offset := strings.IndexAny(text[mid:], " \n\t")
		if offset < 0 {
			return "", "", false
		}
		split = mid + offset
	}

	left := strings.TrimSpace(text[:split])
	right := strings.TrimSpace(text[split:])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}
