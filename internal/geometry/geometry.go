// Package geometry holds the coordinate types shared by capture backends and
// the selection overlays. All rectangles and points are in global
// (virtual-desktop) pixels unless a name says otherwise.
package geometry

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// MinSelection is the smallest width and height a selection may resolve to.
const MinSelection = 5

// Point is a position on the virtual desktop.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rect is a normalized rectangle: (X, Y) is the min corner and the size is
// never negative.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Span returns the axis-aligned box between two corners in any order.
func Span(a, b Point) Rect {
	return Rect{
		X:      min(a.X, b.X),
		Y:      min(a.Y, b.Y),
		Width:  abs(b.X - a.X),
		Height: abs(b.Y - a.Y),
	}
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Usable reports whether r is large enough to be returned as a selection.
func (r Rect) Usable() bool {
	return r.Width >= MinSelection && r.Height >= MinSelection
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// FromImage converts an image.Rectangle to a Rect.
func FromImage(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Inset grows r by n pixels on every side (shrinks it for negative n).
func (r Rect) Inset(n int) Rect {
	return Rect{X: r.X - n, Y: r.Y - n, Width: r.Width + 2*n, Height: r.Height + 2*n}
}

// Union returns the smallest rect containing both r and o. Empty inputs are
// ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return FromImage(r.Image().Union(o.Image()))
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRect parses "x,y,w,h" or "x,y wxh".
func ParseRect(s string) (Rect, error) {
	fields := strings.FieldsFunc(s, func(c rune) bool {
		return c == ',' || c == ' ' || c == 'x'
	})
	if len(fields) != 4 {
		return Rect{}, fmt.Errorf("invalid rectangle %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Rect{}, fmt.Errorf("invalid rectangle %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] < 0 || v[3] < 0 {
		return Rect{}, fmt.Errorf("invalid rectangle %q: negative size", s)
	}
	return Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// Monitor describes one connected display in global coordinates.
type Monitor struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ScaleFactor float64 `json:"scale_factor"`
}

// Bounds returns the monitor rectangle.
func (m Monitor) Bounds() Rect {
	return Rect{X: m.X, Y: m.Y, Width: m.Width, Height: m.Height}
}

// Origin returns the monitor's top-left corner.
func (m Monitor) Origin() Point {
	return Point{X: m.X, Y: m.Y}
}

// ToGlobal translates a monitor-local point to global coordinates.
func (m Monitor) ToGlobal(local Point) Point {
	return Point{X: local.X + m.X, Y: local.Y + m.Y}
}

// ToLocal translates a global rectangle into this monitor's local space.
func (m Monitor) ToLocal(r Rect) Rect {
	return Rect{X: r.X - m.X, Y: r.Y - m.Y, Width: r.Width, Height: r.Height}
}

// Scale returns the scale factor, treating unset values as 1.
func (m Monitor) Scale() float64 {
	if m.ScaleFactor <= 0 {
		return 1
	}
	return m.ScaleFactor
}

// Desktop returns the bounding box of all monitors as a single pseudo
// monitor, used when one overlay spans the whole virtual desktop.
func Desktop(monitors []Monitor) Monitor {
	if len(monitors) == 0 {
		return Monitor{ScaleFactor: 1}
	}
	box := monitors[0].Bounds()
	scale := monitors[0].Scale()
	for _, m := range monitors[1:] {
		box = box.Union(m.Bounds())
		if m.Scale() > scale {
			scale = m.Scale()
		}
	}
	return Monitor{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height, ScaleFactor: scale}
}

// FrameScale returns frame pixels per global pixel for a full-desktop frame
// frameWidth pixels wide. HiDPI portal and grim frames come back larger than
// the logical desktop. It is 1 when either width is unknown.
func FrameScale(frameWidth int, monitors []Monitor) float64 {
	desktop := Desktop(monitors)
	if frameWidth <= 0 || desktop.Width <= 0 || frameWidth == desktop.Width {
		return 1
	}
	return float64(frameWidth) / float64(desktop.Width)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
