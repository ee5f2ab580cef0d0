package display

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/SnapFrame/internal/overlay"
)

// putImageHeader is the fixed size of a PutImage request in bytes.
const putImageHeader = 24

const keysymEscape xproto.Keysym = 0xff1b

// pixmapFormat is the ZPixmap layout for the root depth.
type pixmapFormat struct {
	depth         byte
	bytesPerPixel int
	padBytes      int
}

func findFormat(formats []xproto.Format, depth byte) (pixmapFormat, error) {
	for _, f := range formats {
		if f.Depth != depth {
			continue
		}
		pf := pixmapFormat{depth: depth, bytesPerPixel: int(f.BitsPerPixel) / 8, padBytes: int(f.ScanlinePad) / 8}
		if pf.bytesPerPixel != 3 && pf.bytesPerPixel != 4 {
			return pixmapFormat{}, fmt.Errorf("unsupported bits per pixel %d at depth %d", f.BitsPerPixel, depth)
		}
		if pf.padBytes < 1 {
			pf.padBytes = 1
		}
		return pf, nil
	}
	return pixmapFormat{}, fmt.Errorf("no format found for depth %d", depth)
}

// stride is the padded scanline length for width pixels.
func (f pixmapFormat) stride(width int) int {
	unpadded := width * f.bytesPerPixel
	return ((unpadded + f.padBytes - 1) / f.padBytes) * f.padBytes
}

// encode converts r of img into padded ZPixmap scanlines. The byte order
// matches the usual visual masks: 0xff blue, 0xff00 green, 0xff0000 red.
func (f pixmapFormat) encode(img *image.RGBA, r image.Rectangle) ([]byte, error) {
	r = r.Intersect(img.Bounds())
	stride := f.stride(r.Dx())
	data := make([]byte, stride*r.Dy())

	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst := (y - r.Min.Y) * stride
		src := img.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			p := img.Pix[src : src+4]
			switch f.bytesPerPixel {
			case 4:
				data[dst] = p[2]
				data[dst+1] = p[1]
				data[dst+2] = p[0]
				if f.depth == 32 {
					data[dst+3] = p[3]
				}
			case 3:
				data[dst] = p[2]
				data[dst+1] = p[1]
				data[dst+2] = p[0]
			default:
				return nil, fmt.Errorf("unsupported bytes per pixel: %d", f.bytesPerPixel)
			}
			dst += f.bytesPerPixel
			src += 4
		}
	}
	return data, nil
}

// rowsPerRequest returns how many scanlines of stride bytes fit in one
// PutImage request.
func rowsPerRequest(stride, maxRequest int) int {
	if stride <= 0 {
		return 0
	}
	return (maxRequest - putImageHeader) / stride
}

// borderRects covers a w x h window with a ring of width pixels.
func borderRects(w, h, width int) []xproto.Rectangle {
	outer := image.Rect(0, 0, w, h)
	parts := overlay.Subtract(outer, outer.Inset(width))
	rects := make([]xproto.Rectangle, 0, len(parts))
	for _, p := range parts {
		rects = append(rects, xproto.Rectangle{
			X:      int16(p.Min.X),
			Y:      int16(p.Min.Y),
			Width:  uint16(p.Dx()),
			Height: uint16(p.Dy()),
		})
	}
	return rects
}

// keycodesFor scans a keyboard mapping for every keycode bound to sym.
func keycodesFor(keysyms []xproto.Keysym, perCode byte, first xproto.Keycode, sym xproto.Keysym) []xproto.Keycode {
	if perCode == 0 {
		return nil
	}
	var codes []xproto.Keycode
	n := int(perCode)
	for i := 0; i+n <= len(keysyms); i += n {
		for _, ks := range keysyms[i : i+n] {
			if ks == sym {
				codes = append(codes, first+xproto.Keycode(i/n))
				break
			}
		}
	}
	return codes
}
