package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSynthesizer renders text by running an external TTS command. The
// text is written to the command's stdin and the output path is appended
// as the final argument. Voice and speed options from the job's options
// blob are passed as flags when present.
type CommandSynthesizer struct {
	// Command is the TTS binary to run.
	Command string

	// Args are fixed arguments placed before the option flags.
	Args []string
}

type synthOptions struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// Synthesize implements executor.Synthesizer.
func (s CommandSynthesizer) Synthesize(ctx context.Context, text string, options json.RawMessage, path string) error {
	args := append([]string{}, s.Args...)

	var opts synthOptions
	if len(options) > 0 {
		_ = json.Unmarshal(options, &opts)
	}
	if opts.Voice != "" {
		args = append(args, "--voice", opts.Voice)
	}
	if opts.Speed > 0 {
		args = append(args, "--speed", fmt.Sprintf("%g", opts.Speed))
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, s.Command, args...)
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("%s failed: %w: %s", s.Command, err, detail)
		}
		return fmt.Errorf("%s failed: %w", s.Command, err)
	}
	return nil
}
