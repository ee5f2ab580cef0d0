package overlay

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// View is the shared selection state every surface draws.
type View struct {
	// Monitor is the surface being drawn. Set by the scene.
	Monitor geometry.Monitor

	// Selection is in global coordinates.
	Selection geometry.Rect
	Dragging  bool
}

// localSelection returns the selection in the surface's coordinates.
func (v View) localSelection() image.Rectangle {
	return v.Monitor.ToLocal(v.Selection).Image()
}

// Layer draws one part of an overlay frame. dst is surface-local and clip
// is the local region to repaint; nothing outside clip may change.
type Layer interface {
	Render(dst *image.RGBA, view View, clip image.Rectangle)
}

var (
	// DimColor is 40% black, premultiplied.
	DimColor = color.RGBA{A: 102}

	// AccentColor is the selection border, rgba(0.2, 0.6, 1.0, 0.8)
	// premultiplied.
	AccentColor = color.RGBA{R: 41, G: 122, B: 204, A: 204}
)

// BackgroundLayer paints the frozen frame. Origin is the global position of
// the frame's top-left pixel; Scale is frame pixels per global pixel.
type BackgroundLayer struct {
	Image  *image.RGBA
	Origin geometry.Point
	Scale  float64
}

func (l *BackgroundLayer) Render(dst *image.RGBA, view View, clip image.Rectangle) {
	xdraw.Draw(dst, clip, image.Black, image.Point{}, xdraw.Src)
	if l.Image == nil {
		return
	}

	// Global position of the clip, relative to the frame origin.
	offset := image.Pt(view.Monitor.X-l.Origin.X, view.Monitor.Y-l.Origin.Y)
	src := clip.Add(offset)

	if l.Scale <= 0 || l.Scale == 1 {
		xdraw.Draw(dst, clip, l.Image, l.Image.Bounds().Min.Add(src.Min), xdraw.Src)
		return
	}

	scaled := image.Rect(
		int(math.Floor(float64(src.Min.X)*l.Scale)),
		int(math.Floor(float64(src.Min.Y)*l.Scale)),
		int(math.Ceil(float64(src.Max.X)*l.Scale)),
		int(math.Ceil(float64(src.Max.Y)*l.Scale)),
	).Add(l.Image.Bounds().Min)
	xdraw.ApproxBiLinear.Scale(dst, clip, l.Image, scaled, xdraw.Src, nil)
}

// DimLayer washes everything outside the selection.
type DimLayer struct {
	Color color.RGBA
}

func (l *DimLayer) Render(dst *image.RGBA, view View, clip image.Rectangle) {
	wash := image.NewUniform(l.Color)
	for _, r := range Subtract(clip, view.localSelection()) {
		xdraw.Draw(dst, r, wash, image.Point{}, xdraw.Over)
	}
}

// BorderLayer strokes the selection while dragging. The stroke is 2 pixels
// per unit of monitor scale, centred on the selection edge.
type BorderLayer struct {
	Color color.RGBA
}

// StrokeWidth returns the border width for a monitor scale.
func StrokeWidth(scale float64) int {
	w := int(math.Round(2 * scale))
	if w < 1 {
		w = 1
	}
	return w
}

func (l *BorderLayer) Render(dst *image.RGBA, view View, clip image.Rectangle) {
	if !view.Dragging || view.Selection.Empty() {
		return
	}
	width := StrokeWidth(view.Monitor.Scale())
	outside := width / 2
	sel := view.Monitor.ToLocal(view.Selection)
	ring(dst, sel.Inset(outside).Image(), sel.Inset(outside-width).Image(), clip, l.Color)
}

// EdgeLayer outlines the whole surface, used by the window picker.
type EdgeLayer struct {
	Color color.RGBA
	Width int
}

func (l *EdgeLayer) Render(dst *image.RGBA, _ View, clip image.Rectangle) {
	b := dst.Bounds()
	ring(dst, b, b.Inset(l.Width), clip, l.Color)
}

// ring fills outer minus inner, restricted to clip.
func ring(dst *image.RGBA, outer, inner, clip image.Rectangle, c color.RGBA) {
	paint := image.NewUniform(c)
	for _, r := range Subtract(outer.Intersect(clip), inner) {
		xdraw.Draw(dst, r, paint, image.Point{}, xdraw.Over)
	}
}

// Subtract returns up to four rectangles covering r minus hole.
func Subtract(r, hole image.Rectangle) []image.Rectangle {
	if r.Empty() {
		return nil
	}
	hole = hole.Intersect(r)
	if hole.Empty() {
		return []image.Rectangle{r}
	}
	out := make([]image.Rectangle, 0, 4)
	add := func(x image.Rectangle) {
		if !x.Empty() {
			out = append(out, x)
		}
	}
	add(image.Rect(r.Min.X, r.Min.Y, r.Max.X, hole.Min.Y))
	add(image.Rect(r.Min.X, hole.Max.Y, r.Max.X, r.Max.Y))
	add(image.Rect(r.Min.X, hole.Min.Y, hole.Min.X, hole.Max.Y))
	add(image.Rect(hole.Max.X, hole.Min.Y, r.Max.X, hole.Max.Y))
	return out
}
