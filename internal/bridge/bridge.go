// Package bridge runs the area selection in a child process forced onto the
// X11 compatibility path, for sessions where the compositor refuses an
// exclusive grab to this process.
//
// The exchange is file based: the parent writes the frozen frame as PNG and
// passes its path plus a result path as the last two arguments; the child
// writes {"aborted", "x", "y", "width", "height"} as JSON to the result path.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

const (
	// RenderBackendEnv forces the child's overlay onto X11 spanning mode.
	RenderBackendEnv = "SNAPFRAME_RENDER_BACKEND"

	// DisableEnv set to 1 skips the bridge and selects in process.
	DisableEnv = "SNAPFRAME_DISABLE_SELECTION_BRIDGE"
)

// ErrSubprocessFailed covers spawn failures, abnormal exits and unreadable
// results.
var ErrSubprocessFailed = errors.New("selection helper failed")

// Disabled reports whether the environment turns the bridge off.
func Disabled() bool {
	return os.Getenv(DisableEnv) == "1"
}

// ForcedX11 reports whether this process was started as a bridged child.
func ForcedX11() bool {
	return strings.EqualFold(os.Getenv(RenderBackendEnv), "x11")
}

// Result is the JSON document written by the child.
type Result struct {
	Aborted bool `json:"aborted"`
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
}

// Rect returns the selection, or nil when aborted or too small.
func (r Result) Rect() *geometry.Rect {
	if r.Aborted {
		return nil
	}
	rect := geometry.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	if !rect.Usable() {
		return nil
	}
	return &rect
}

// Bridge spawns the selection helper.
type Bridge struct {
	// Executable and Args start the helper; the two file paths are appended.
	Executable string
	Args       []string

	// TempDir holds the exchange files. Empty means os.TempDir().
	TempDir string

	log *zerolog.Logger
}

// New creates a bridge that runs executable with args.
func New(executable string, args ...string) *Bridge {
	return &Bridge{
		Executable: executable,
		Args:       args,
		log:        logger.WithComponent("selection-bridge"),
	}
}

// SelectArea runs one out-of-process selection over background. A nil rect
// with a nil error means the user cancelled. Both exchange files are removed
// before returning, whatever the outcome.
func (b *Bridge) SelectArea(ctx context.Context, background *image.RGBA) (*geometry.Rect, error) {
	stamp := time.Now().UnixMilli()

	bgPath, err := b.writeBackground(stamp, background)
	if bgPath != "" {
		defer b.remove(bgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubprocessFailed, err)
	}

	resultFile, err := os.CreateTemp(b.TempDir, fmt.Sprintf("snapframe_area_select_result_%d_*.json", stamp))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create result file: %w", ErrSubprocessFailed, err)
	}
	resultPath := resultFile.Name()
	resultFile.Close()
	defer b.remove(resultPath)

	args := append(append([]string{}, b.Args...), bgPath, resultPath)
	cmd := exec.CommandContext(ctx, b.Executable, args...)
	cmd.Env = append(os.Environ(), RenderBackendEnv+"=x11")
	cmd.Stderr = os.Stderr

	b.log.Debug().
		Str("executable", b.Executable).
		Strs("args", args).
		Msg("Starting selection helper")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrSubprocessFailed, err)
	}

	res, err := readResult(resultPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubprocessFailed, err)
	}

	rect := res.Rect()
	if rect == nil {
		b.log.Debug().Msg("Selection helper reported no selection")
		return nil, nil
	}
	b.log.Debug().Str("area", rect.String()).Msg("Selection helper resolved area")
	return rect, nil
}

func (b *Bridge) writeBackground(stamp int64, background *image.RGBA) (string, error) {
	f, err := os.CreateTemp(b.TempDir, fmt.Sprintf("snapframe_area_select_bg_%d_*.png", stamp))
	if err != nil {
		return "", fmt.Errorf("failed to create background file: %w", err)
	}
	path := f.Name()
	if err := png.Encode(f, background); err != nil {
		f.Close()
		return path, fmt.Errorf("failed to encode background: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("failed to write background: %w", err)
	}
	return path, nil
}

func (b *Bridge) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		b.log.Debug().Err(err).Str("path", path).Msg("Failed to remove exchange file")
	}
}

func readResult(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read result: %w", err)
	}
	if len(data) == 0 {
		return Result{}, errors.New("helper wrote no result")
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("invalid result: %w", err)
	}
	return res, nil
}

// SelectFunc runs the in-process selection inside the helper.
type SelectFunc func(ctx context.Context, background *image.RGBA) (*geometry.Rect, error)

// ServeHelper is the child side: it loads the background, runs selectFn and
// writes the result file on every path out, aborted when anything fails.
func ServeHelper(ctx context.Context, bgPath, resultPath string, selectFn SelectFunc) (err error) {
	res := Result{Aborted: true}
	defer func() {
		data, merr := json.Marshal(res)
		if merr == nil {
			merr = os.WriteFile(resultPath, data, 0600)
		}
		if merr != nil && err == nil {
			err = fmt.Errorf("failed to write result: %w", merr)
		}
	}()

	f, err := os.Open(bgPath)
	if err != nil {
		return fmt.Errorf("failed to open background: %w", err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode background: %w", err)
	}

	rect, err := selectFn(ctx, capture.ToRGBA(img))
	if err != nil {
		return err
	}
	if rect != nil {
		res = Result{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
	}
	return nil
}
