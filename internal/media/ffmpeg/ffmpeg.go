// Package ffmpeg shells out to ffmpeg for the clip production steps: cutting
// the promotional excerpt from a full track and mixing the spoken watermark
// over it.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/services"
)

// Toolkit runs ffmpeg with a configurable binary path.
type Toolkit struct {
	binary string
}

// New constructs a toolkit. An empty binary falls back to ffmpeg on PATH.
func New(binary string) *Toolkit {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Toolkit{binary: binary}
}

// Trim cuts the opening clipLength of the input into outputPath, re-encoding
// to mp3 so the result plays anywhere WhatsApp does.
func (t *Toolkit) Trim(ctx context.Context, inputPath, outputPath string, clipLength time.Duration) error {
	if strings.TrimSpace(inputPath) == "" {
		return errors.New("ffmpeg trim: empty input path")
	}
	if strings.TrimSpace(outputPath) == "" {
		return errors.New("ffmpeg trim: empty output path")
	}
	if clipLength <= 0 {
		return errors.New("ffmpeg trim: clip length must be positive")
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-t", formatSeconds(clipLength),
		"-codec:a", "libmp3lame", "-qscale:a", "2",
		outputPath,
	}
	return t.run(ctx, "ffmpeg trim", args)
}

// WatermarkSpec describes how the spoken watermark is mixed over the clip.
type WatermarkSpec struct {
	// Path to the watermark audio file.
	Path string
	// GainDB attenuates the watermark relative to the clip.
	GainDB float64
	// Delay before the watermark first plays.
	Delay time.Duration
}

// MixWatermark overlays the watermark onto the clip. The clip keeps its
// duration; the watermark is delayed, attenuated, and mixed in.
func (t *Toolkit) MixWatermark(ctx context.Context, clipPath, outputPath string, spec WatermarkSpec) error {
	if strings.TrimSpace(clipPath) == "" {
		return errors.New("ffmpeg watermark: empty clip path")
	}
	if strings.TrimSpace(outputPath) == "" {
		return errors.New("ffmpeg watermark: empty output path")
	}
	if strings.TrimSpace(spec.Path) == "" {
		return errors.New("ffmpeg watermark: empty watermark path")
	}

	delayMillis := spec.Delay.Milliseconds()
	if delayMillis < 0 {
		delayMillis = 0
	}
	filter := fmt.Sprintf(
		"[1:a]volume=%sdB,adelay=%d|%d[wm];[0:a][wm]amix=inputs=2:duration=first:dropout_transition=0[out]",
		formatGain(spec.GainDB), delayMillis, delayMillis,
	)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", clipPath,
		"-i", spec.Path,
		"-filter_complex", filter,
		"-map", "[out]",
		"-codec:a", "libmp3lame", "-qscale:a", "2",
		outputPath,
	}
	return t.run(ctx, "ffmpeg watermark", args)
}

func (t *Toolkit) run(ctx context.Context, op string, args []string) error {
	cmd := exec.CommandContext(ctx, t.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %w: %s",
			services.ErrExternalTool, op, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func formatGain(db float64) string {
	return strconv.FormatFloat(db, 'f', -1, 64)
}
