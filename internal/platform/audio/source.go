package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/konsultti/kokoro-tts/internal/domain"
	"github.com/konsultti/kokoro-tts/internal/executor"
)

// chapterHeading matches the usual plain-text chapter markers at the start
// of a line.
var chapterHeading = regexp.MustCompile(`(?i)^\s*(chapter|part|book|prologue|epilogue|introduction)\b`)

// TextChapterSource extracts chapters from plain-text books by splitting
// on chapter headings. A book without recognizable headings becomes a
// single chapter. EPUB and PDF extraction needs external tooling and is
// reported as an unsupported input.
type TextChapterSource struct{}

// Chapters implements executor.ChapterSource.
func (TextChapterSource) Chapters(_ context.Context, input domain.InputDescriptor, options json.RawMessage) ([]executor.Chapter, error) {
	if input.Type != domain.InputTypeTXT {
		return nil, fmt.Errorf("unsupported input type %q: only txt extraction is built in", input.Type)
	}

	f, err := os.Open(input.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	var opts sourceOptions
	if len(options) > 0 {
		// Unknown option keys belong to other collaborators; ignore them.
		_ = json.Unmarshal(options, &opts)
	}

	chapters, err := splitChapters(f)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, nil
	}

	if opts.SkipFrontMatter && len(chapters) > 1 && !chapterHeading.MatchString(chapters[0].Name) {
		chapters = chapters[1:]
	}
	if opts.IntroText != "" {
		intro := executor.Chapter{Name: "Introduction", Text: opts.IntroText}
		chapters = append([]executor.Chapter{intro}, chapters...)
	}

	for i := range chapters {
		chapters[i].Index = i
	}
	return chapters, nil
}

// sourceOptions are the option keys this source understands; they ride in
// the job's opaque options blob.
type sourceOptions struct {
	SkipFrontMatter bool   `json:"skip_front_matter"`
	IntroText       string `json:"intro_text"`
}

func splitChapters(f *os.File) ([]executor.Chapter, error) {
	var chapters []executor.Chapter
	var name string
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text == "" {
			return
		}
		if name == "" {
			name = fmt.Sprintf("Section %d", len(chapters)+1)
		}
		chapters = append(chapters, executor.Chapter{Name: name, Text: text})
		body.Reset()
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if chapterHeading.MatchString(line) {
			flush()
			name = strings.TrimSpace(line)
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	flush()

	return chapters, nil
}
