package grim

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
)

// TestHelperProcess stands in for grim when re-executed by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("HELPER_BEHAVIOUR") {
	case "fail":
		fmt.Fprintln(os.Stderr, "grim: compositor doesn't support wlr-screencopy-unstable-v1")
		os.Exit(1)
	case "garbage":
		fmt.Fprint(os.Stdout, "not a png")
		os.Exit(0)
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	img.SetRGBA(63, 47, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	if len(os.Args) > 0 && os.Args[len(os.Args)-2] == "-c" {
		img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	}
	if err := png.Encode(os.Stdout, img); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

func helperBackend(t *testing.T, behaviour string) *Backend {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_BEHAVIOUR", behaviour)
	b := New()
	b.Command = os.Args[0]
	b.Prefix = []string{"-test.run=TestHelperProcess", "--"}
	return b
}

func TestCaptureDecodesStdout(t *testing.T) {
	b := helperBackend(t, "")
	res, err := b.Capture(context.Background(), capture.Target{Mode: capture.ModeScreen, IncludePointer: true})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), res.Image.Bounds())
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, res.Image.RGBAAt(63, 47))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, res.Image.RGBAAt(0, 0))
	assert.Zero(t, res.OriginX)
}

func TestCaptureReportsHelperFailure(t *testing.T) {
	b := helperBackend(t, "fail")
	_, err := b.Capture(context.Background(), capture.Target{Mode: capture.ModeScreen})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wlr-screencopy")
}

func TestCaptureRejectsGarbage(t *testing.T) {
	b := helperBackend(t, "garbage")
	_, err := b.Capture(context.Background(), capture.Target{Mode: capture.ModeArea})
	assert.Error(t, err)
}

func TestWindowModeUnsupported(t *testing.T) {
	_, err := New().Capture(context.Background(), capture.Target{Mode: capture.ModeWindow})
	assert.ErrorIs(t, err, capture.ErrUnsupportedMode)
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []string{"-"}, Args(capture.Target{}))
	assert.Equal(t, []string{"-c", "-"}, Args(capture.Target{IncludePointer: true}))
}

func TestProbeNeedsWayland(t *testing.T) {
	t.Setenv("WAYLAND_DISPLAY", "")
	assert.False(t, New().Probe())

	t.Setenv("WAYLAND_DISPLAY", "wayland-1")
	b := New()
	b.Command = "snapframe-definitely-missing-helper"
	assert.False(t, b.Probe())
}
