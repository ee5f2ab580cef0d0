package display

import (
	"errors"
	"image"

	"github.com/kbinani/screenshot"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// Monitors lists active displays in root coordinates. X11 has no
// per-monitor scale, so every monitor reports 1.
func Monitors() ([]geometry.Monitor, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, errors.New("no active displays")
	}
	bounds := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		bounds = append(bounds, screenshot.GetDisplayBounds(i))
	}
	return fromBounds(bounds), nil
}

// fromBounds converts display bounds to monitors, dropping empty and
// mirrored outputs.
func fromBounds(bounds []image.Rectangle) []geometry.Monitor {
	seen := make(map[image.Rectangle]bool)
	var monitors []geometry.Monitor
	for _, b := range bounds {
		if b.Empty() || seen[b] {
			continue
		}
		seen[b] = true
		monitors = append(monitors, geometry.Monitor{
			X:           b.Min.X,
			Y:           b.Min.Y,
			Width:       b.Dx(),
			Height:      b.Dy(),
			ScaleFactor: 1,
		})
	}
	return monitors
}
