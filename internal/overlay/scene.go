package overlay

import (
	"image"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// Scene is an ordered stack of layers drawn bottom to top.
type Scene struct {
	layers []Layer
}

// NewScene creates a scene from layers, bottom first.
func NewScene(layers ...Layer) *Scene {
	return &Scene{layers: layers}
}

// AreaScene is the rubber-band overlay: frozen background, dim wash with a
// hole, selection border and size label.
func AreaScene(background *image.RGBA, origin geometry.Point, scale float64) *Scene {
	return NewScene(
		&BackgroundLayer{Image: background, Origin: origin, Scale: scale},
		&DimLayer{Color: DimColor},
		&BorderLayer{Color: AccentColor},
		NewSizeLabelLayer(),
	)
}

// PickerScene is the window picker affordance: a ring along every surface
// edge.
func PickerScene(width int) *Scene {
	return NewScene(&EdgeLayer{Color: AccentColor, Width: width})
}

// Render repaints clip (surface-local) of frame for the given monitor.
func (s *Scene) Render(frame *image.RGBA, m geometry.Monitor, view View, clip image.Rectangle) {
	clip = clip.Intersect(frame.Bounds())
	if clip.Empty() {
		return
	}
	view.Monitor = m
	for _, l := range s.layers {
		l.Render(frame, view, clip)
	}
}

// Frame allocates a frame for a monitor and renders it fully.
func (s *Scene) Frame(m geometry.Monitor, view View) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	s.Render(frame, m, view, frame.Bounds())
	return frame
}
