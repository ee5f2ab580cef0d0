package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// Mode selects what a capture covers.
type Mode string

const (
	ModeScreen Mode = "SCREEN"
	ModeWindow Mode = "WINDOW"
	ModeArea   Mode = "AREA"
)

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeScreen, "":
		return ModeScreen, nil
	case ModeWindow:
		return ModeWindow, nil
	case ModeArea:
		return ModeArea, nil
	}
	return "", fmt.Errorf("unknown capture mode %q (want screen, window or area)", s)
}

// Request describes one capture attempt. It is built by the caller and never
// modified by this package.
type Request struct {
	Mode            Mode           `json:"mode"`
	IncludePointer  bool           `json:"include_pointer"`
	Backend         BackendID      `json:"backend,omitempty"`
	DisableFallback bool           `json:"disable_fallback"`
	Rect            *geometry.Rect `json:"rect,omitempty"`
}

// Result is a captured pixel buffer and the global position of its top-left
// pixel. The caller owns Image.
type Result struct {
	Image   *image.RGBA
	OriginX int
	OriginY int
	Backend BackendID

	// Scale is image pixels per global pixel; 0 means 1. HiDPI frames from
	// the portal or grim are larger than the area they cover.
	Scale float64

	// OriginUnknown is set when the server chose what to capture and did not
	// say where it was, as for SHELL window captures. OriginX and OriginY
	// are then 0 and meaningless.
	OriginUnknown bool
}

// PixelScale returns Scale, defaulting to 1.
func (r *Result) PixelScale() float64 {
	if r.Scale <= 0 {
		return 1
	}
	return r.Scale
}

// Bounds returns the global rectangle covered by the result.
func (r *Result) Bounds() geometry.Rect {
	b := r.Image.Bounds()
	s := r.PixelScale()
	if s == 1 {
		return geometry.Rect{X: r.OriginX, Y: r.OriginY, Width: b.Dx(), Height: b.Dy()}
	}
	return geometry.Rect{
		X:      r.OriginX,
		Y:      r.OriginY,
		Width:  int(math.Round(float64(b.Dx()) / s)),
		Height: int(math.Round(float64(b.Dy()) / s)),
	}
}

// Target is what a backend is asked to produce.
type Target struct {
	Mode           Mode
	IncludePointer bool

	// Click is the global point picked for WINDOW mode. Backends whose
	// server picks the window receive the (0,0) placeholder.
	Click geometry.Point
}

// Freeze reports whether the backend is producing the full-screen
// freeze-frame for an area selection rather than a final image.
func (t Target) Freeze() bool {
	return t.Mode == ModeArea
}

// CaptureFunc produces an image for a target.
type CaptureFunc func(ctx context.Context, target Target) (*Result, error)

// AreaSelector resolves an interactive rectangle over a frozen background
// whose top-left pixel sits at the global point origin. The rect is in global
// coordinates. A nil rect with a nil error means the user cancelled.
type AreaSelector interface {
	SelectArea(ctx context.Context, background *image.RGBA, origin geometry.Point) (*geometry.Rect, error)
}

// PointSelector resolves the global point of the next click. A nil point with
// a nil error means the user cancelled.
type PointSelector interface {
	SelectPoint(ctx context.Context) (*geometry.Point, error)
}

// Flasher shows a transient confirmation over a global rectangle. It must not
// block and must not fail the capture it decorates.
type Flasher interface {
	Flash(r geometry.Rect)
}
