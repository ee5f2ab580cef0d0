package overlay

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// SizeLabelLayer prints the selection size in its top-left corner while
// dragging. The label stays inside the selection so it is always covered by
// the selection's damage region; it is skipped when it does not fit.
type SizeLabelLayer struct {
	TextColor  color.RGBA
	Background color.RGBA
	Padding    int
	Margin     int
}

// NewSizeLabelLayer returns a white-on-translucent-black label.
func NewSizeLabelLayer() *SizeLabelLayer {
	return &SizeLabelLayer{
		TextColor:  color.RGBA{255, 255, 255, 255},
		Background: color.RGBA{A: 160},
		Padding:    4,
		Margin:     4,
	}
}

// LabelText formats a selection size.
func LabelText(width, height int) string {
	return fmt.Sprintf("%d x %d", width, height)
}

// labelBox returns the local rectangle the label occupies, or an empty
// rectangle when it does not fit inside sel.
func (l *SizeLabelLayer) labelBox(sel image.Rectangle, text string) image.Rectangle {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Metrics().Height.Ceil()

	box := image.Rect(0, 0, textWidth+l.Padding*2, textHeight+l.Padding*2).
		Add(sel.Min).
		Add(image.Pt(l.Margin, l.Margin))
	if !box.In(sel) {
		return image.Rectangle{}
	}
	return box
}

func (l *SizeLabelLayer) Render(dst *image.RGBA, view View, clip image.Rectangle) {
	if !view.Dragging || view.Selection.Empty() {
		return
	}
	sel := view.localSelection()
	text := LabelText(view.Selection.Width, view.Selection.Height)
	box := l.labelBox(sel, text)
	if box.Empty() || !box.Overlaps(clip) {
		return
	}

	// Draw through a clipped sub-image so nothing outside clip changes.
	target, ok := dst.SubImage(clip.Intersect(dst.Bounds())).(*image.RGBA)
	if !ok {
		return
	}
	xdraw.Draw(target, box, image.NewUniform(l.Background), image.Point{}, xdraw.Over)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  target,
		Src:  image.NewUniform(l.TextColor),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(box.Min.X + l.Padding),
			Y: fixed.I(box.Min.Y+l.Padding) + face.Metrics().Ascent,
		},
	}
	d.DrawString(text)
}
