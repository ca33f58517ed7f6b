package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpeg grabs stills from V4L2 devices with the ffmpeg binary
type FFmpeg struct {
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// Args builds the ffmpeg command line for one attempt
func (f *FFmpeg) Args(a Attempt) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(a.FPS),
	}
	if a.Format != "" {
		args = append(args, "-input_format", a.Format)
	}
	return append(args,
		"-video_size", fmt.Sprintf("%dx%d", a.Width, a.Height),
		"-i", a.Device,
		"-frames:v", "1",
		"-q:v", "4",
		"-y",
		a.OutputPath,
	)
}

func (f *FFmpeg) Snap(ctx context.Context, a Attempt) error {
	return RunTool(ctx, f.Path, f.Args(a))
}

// RunTool runs an external command to completion. On failure the returned error carries
// the command's stderr (or stdout) so callers can classify it.
func RunTool(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	// children that inherit the pipes must not keep Run blocked after a kill
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out: %s", bin, diagnostic(&stderr, &stdout, ctxErr))
		}
		return fmt.Errorf("%s cancelled: %w", bin, ctxErr)
	}

	return errors.New(diagnostic(&stderr, &stdout, err))
}

func diagnostic(stderr, stdout *bytes.Buffer, fallback error) string {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(stdout.String()); msg != "" {
		return msg
	}
	return fallback.Error()
}
