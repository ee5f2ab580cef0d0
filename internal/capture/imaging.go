package capture

import (
	"image"
	"image/draw"
	"math"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// ToRGBA returns img as *image.RGBA with its top-left at (0,0), copying only
// when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Crop copies the global rect out of a result whose buffer starts at
// (originX, originY). The rect is clamped to the buffer; nil is returned when
// nothing overlaps.
func Crop(src *image.RGBA, originX, originY int, rect geometry.Rect) (*image.RGBA, geometry.Rect) {
	local := rect.Image().Sub(image.Pt(originX, originY)).Add(src.Bounds().Min)
	local = local.Intersect(src.Bounds())
	if local.Empty() {
		return nil, geometry.Rect{}
	}

	width, height := local.Dx(), local.Dy()
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for dy := 0; dy < height; dy++ {
		srcStart := src.PixOffset(local.Min.X, local.Min.Y+dy)
		dstStart := dy * out.Stride
		copy(out.Pix[dstStart:dstStart+width*4], src.Pix[srcStart:srcStart+width*4])
	}

	got := geometry.FromImage(local.Sub(src.Bounds().Min).Add(image.Pt(originX, originY)))
	return out, got
}

// CropScaled is Crop for a buffer holding scale pixels per global pixel. rect
// is converted to buffer pixels (outward to whole pixels) before cropping and
// the covered rectangle is returned in global pixels.
func CropScaled(src *image.RGBA, originX, originY int, rect geometry.Rect, scale float64) (*image.RGBA, geometry.Rect) {
	if scale <= 0 || scale == 1 {
		return Crop(src, originX, originY, rect)
	}
	toFrame := func(v, origin int, ceil bool) int {
		f := float64(v-origin) * scale
		if ceil {
			return int(math.Ceil(f))
		}
		return int(math.Floor(f))
	}
	frame := geometry.FromImage(image.Rect(
		toFrame(rect.X, originX, false), toFrame(rect.Y, originY, false),
		toFrame(rect.X+rect.Width, originX, true), toFrame(rect.Y+rect.Height, originY, true),
	))

	out, got := Crop(src, 0, 0, frame)
	if out == nil {
		return nil, geometry.Rect{}
	}
	toGlobal := func(v, origin int, ceil bool) int {
		f := float64(v) / scale
		if ceil {
			return origin + int(math.Ceil(f))
		}
		return origin + int(math.Floor(f))
	}
	global := geometry.FromImage(image.Rect(
		toGlobal(got.X, originX, false), toGlobal(got.Y, originY, false),
		toGlobal(got.X+got.Width, originX, true), toGlobal(got.Y+got.Height, originY, true),
	))
	return out, global
}

// Cursor is a pointer image with its hotspot and global position.
type Cursor struct {
	Image    *image.RGBA
	HotX     int
	HotY     int
	Position geometry.Point
}

// CompositeCursor draws the cursor onto dst, whose top-left pixel sits at
// global (originX, originY). Parts outside dst are clipped.
func CompositeCursor(dst *image.RGBA, originX, originY int, c Cursor) {
	if c.Image == nil {
		return
	}
	topLeft := image.Pt(
		c.Position.X-originX-c.HotX+dst.Bounds().Min.X,
		c.Position.Y-originY-c.HotY+dst.Bounds().Min.Y,
	)
	target := image.Rectangle{Min: topLeft, Max: topLeft.Add(c.Image.Bounds().Size())}
	clipped := target.Intersect(dst.Bounds())
	if clipped.Empty() {
		return
	}
	srcPt := c.Image.Bounds().Min.Add(clipped.Min.Sub(topLeft))
	draw.Draw(dst, clipped, c.Image, srcPt, draw.Over)
}
