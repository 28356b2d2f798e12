package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/konsultti/kokoro-tts/internal/domain"
)

// FFmpegEncoder concatenates chapter artifacts into the final output file
// with ffmpeg's concat demuxer.
type FFmpegEncoder struct {
	// Path is the ffmpeg binary, "ffmpeg" by default.
	Path string
}

type encoderOptions struct {
	Bitrate string `json:"bitrate"`
}

// Encode implements executor.Encoder.
func (e FFmpegEncoder) Encode(ctx context.Context, artifacts []string, output domain.OutputDescriptor, options json.RawMessage) (int64, error) {
	if len(artifacts) == 0 {
		return 0, fmt.Errorf("no artifacts to encode")
	}
	ffmpeg := e.Path
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	if err := os.MkdirAll(filepath.Dir(output.Path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	listPath, err := writeConcatList(artifacts)
	if err != nil {
		return 0, err
	}
	defer os.Remove(listPath)

	var opts encoderOptions
	if len(options) > 0 {
		_ = json.Unmarshal(options, &opts)
	}

	cmd := exec.CommandContext(ctx, ffmpeg, encodeArgs(listPath, output, opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 400 {
			detail = detail[len(detail)-400:]
		}
		return 0, fmt.Errorf("ffmpeg failed: %w: %s", err, detail)
	}

	info, err := os.Stat(output.Path)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return info.Size(), nil
}

// encodeArgs builds the ffmpeg invocation for the target format.
func encodeArgs(listPath string, output domain.OutputDescriptor, opts encoderOptions) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
	}

	switch output.Format {
	case domain.OutputFormatWAV:
		args = append(args, "-c", "copy")
	case domain.OutputFormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", bitrateOr(opts, "128k"))
	case domain.OutputFormatM4A:
		args = append(args, "-c:a", "aac", "-b:a", bitrateOr(opts, "128k"), "-movflags", "+faststart")
	}

	return append(args, output.Path)
}

func bitrateOr(opts encoderOptions, fallback string) string {
	if opts.Bitrate != "" {
		return opts.Bitrate
	}
	return fallback
}

// writeConcatList writes the ffmpeg concat demuxer file listing every
// artifact in playback order.
func writeConcatList(artifacts []string) (string, error) {
	f, err := os.CreateTemp("", "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}

	for _, a := range artifacts {
		// The concat demuxer requires single quotes in paths doubled.
		escaped := strings.ReplaceAll(a, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to write concat list: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close concat list: %w", err)
	}
	return f.Name(), nil
}
