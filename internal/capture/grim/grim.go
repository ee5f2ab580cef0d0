// Package grim captures wlroots outputs by running the grim helper.
package grim

import (
	"bufio"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// Backend runs grim and decodes the PNG it streams on stdout.
type Backend struct {
	// Command is the helper executable, "grim" by default.
	Command string
	// Prefix is inserted before grim's own arguments.
	Prefix []string

	log *zerolog.Logger
}

// New creates a backend running grim from PATH.
func New() *Backend {
	return &Backend{Command: "grim", log: logger.WithComponent("grim-backend")}
}

// Descriptor registers the backend.
func (b *Backend) Descriptor() capture.Descriptor {
	return capture.Descriptor{
		ID:      capture.BackendGrim,
		Label:   "grim (wlroots screencopy)",
		Probe:   b.Probe,
		Capture: b.Capture,
	}
}

// Probe requires a Wayland display and the helper on PATH.
func (b *Backend) Probe() bool {
	if os.Getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	path, err := exec.LookPath(b.Command)
	if err != nil {
		b.log.Debug().Err(err).Msg("grim not found on PATH")
		return false
	}
	b.log.Debug().Str("path", path).Msg("Found grim")
	return true
}

// Args returns the helper arguments for a target.
func Args(target capture.Target) []string {
	args := make([]string, 0, 2)
	if target.IncludePointer {
		args = append(args, "-c")
	}
	return append(args, "-")
}

// Capture runs the helper and decodes stdout until end of stream.
func (b *Backend) Capture(ctx context.Context, target capture.Target) (*capture.Result, error) {
	if target.Mode == capture.ModeWindow {
		return nil, fmt.Errorf("%w: grim cannot capture a single window", capture.ErrUnsupportedMode)
	}

	args := append(append([]string{}, b.Prefix...), Args(target)...)
	cmd := exec.CommandContext(ctx, b.Command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	b.log.Debug().Strs("args", args).Msg("Starting grim")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", b.Command, err)
	}

	stderrDone := make(chan string, 1)
	go b.logStderr(stderr, stderrDone)

	img, decodeErr := png.Decode(bufio.NewReader(stdout))
	// Drain whatever is left so the helper can exit.
	_, _ = io.Copy(io.Discard, stdout)

	lastLine := <-stderrDone
	waitErr := cmd.Wait()

	if waitErr != nil {
		if lastLine != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", b.Command, waitErr, lastLine)
		}
		return nil, fmt.Errorf("%s failed: %w", b.Command, waitErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", b.Command, decodeErr)
	}

	return &capture.Result{Image: capture.ToRGBA(img)}, nil
}

// logStderr logs helper output line by line and reports the last line.
func (b *Backend) logStderr(r io.Reader, done chan<- string) {
	var last string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		last = line
		b.log.Warn().Str("grim", line).Msg("grim output")
	}
	done <- last
}
