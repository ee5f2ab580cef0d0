// Package x11 captures the screen straight from the X server.
package x11

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
	"github.com/bryanchriswhite/SnapFrame/internal/window"
)

// Backend captures the root window with xproto.GetImage. The connection is
// opened on first use.
type Backend struct {
	mu       sync.Mutex
	conn     *xgb.Conn
	screen   *xproto.ScreenInfo
	finder   *window.Finder
	xfixesOK bool
	log      *zerolog.Logger
}

// New creates an unconnected backend.
func New() *Backend {
	return &Backend{log: logger.WithComponent("x11-backend")}
}

// Probe reports whether the session is an X11 session.
func Probe() bool {
	return os.Getenv("XDG_SESSION_TYPE") == "x11"
}

// Descriptor registers the backend. WINDOW mode needs a client-side click.
func (b *Backend) Descriptor() capture.Descriptor {
	return capture.Descriptor{
		ID:          capture.BackendX11,
		Label:       "X11 (xproto GetImage)",
		Probe:       Probe,
		Capture:     b.Capture,
		PicksWindow: true,
	}
}

func (b *Backend) connect() error {
	if b.conn != nil {
		return nil
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	b.conn = conn
	b.screen = xproto.Setup(conn).DefaultScreen(conn)
	b.finder = window.NewFinder(conn, b.screen.Root)

	if err := xfixes.Init(conn); err != nil {
		b.log.Warn().Err(err).Msg("XFixes extension not available - pointer will not be captured")
	} else if _, err := xfixes.QueryVersion(conn, 4, 0).Reply(); err != nil {
		b.log.Warn().Err(err).Msg("XFixes version query failed - pointer will not be captured")
	} else {
		b.xfixesOK = true
	}
	return nil
}

// Close releases the X connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}

// Capture grabs the whole root window, or the frame of the window under
// target.Click in WINDOW mode.
func (b *Backend) Capture(ctx context.Context, target capture.Target) (*capture.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.connect(); err != nil {
		return nil, err
	}

	screen := geometry.Rect{Width: int(b.screen.WidthInPixels), Height: int(b.screen.HeightInPixels)}
	rect := screen
	if target.Mode == capture.ModeWindow {
		w, err := b.finder.FrameAt(target.Click)
		if err != nil {
			return nil, fmt.Errorf("failed to find window: %w", err)
		}
		rect = geometry.FromImage(w.Frame.Image().Intersect(screen.Image()))
		if rect.Empty() {
			return nil, fmt.Errorf("window %#x is off screen", w.ID)
		}
		b.log.Debug().
			Uint32("window_id", w.ID).
			Str("title", w.Title).
			Str("class", w.Class).
			Str("frame", rect.String()).
			Msg("Capturing window frame")
	}

	img, err := b.getImage(rect)
	if err != nil {
		return nil, err
	}

	if target.IncludePointer {
		if cur, err := b.cursor(); err != nil {
			b.log.Debug().Err(err).Msg("Failed to read cursor image")
		} else {
			capture.CompositeCursor(img, rect.X, rect.Y, cur)
		}
	}

	return &capture.Result{Image: img, OriginX: rect.X, OriginY: rect.Y}, nil
}

func (b *Backend) getImage(r geometry.Rect) (*image.RGBA, error) {
	reply, err := xproto.GetImage(
		b.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(b.screen.Root),
		int16(r.X), int16(r.Y),
		uint16(r.Width), uint16(r.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	depth := int(b.screen.RootDepth)
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported root depth %d", depth)
	}
	return convertZPixmap(reply.Data, r.Width, r.Height)
}

func (b *Backend) cursor() (capture.Cursor, error) {
	if !b.xfixesOK {
		return capture.Cursor{}, fmt.Errorf("xfixes unavailable")
	}
	reply, err := xfixes.GetCursorImage(b.conn).Reply()
	if err != nil {
		return capture.Cursor{}, err
	}
	return capture.Cursor{
		Image:    cursorImage(int(reply.Width), int(reply.Height), reply.CursorImage),
		HotX:     int(reply.Xhot),
		HotY:     int(reply.Yhot),
		Position: geometry.Point{X: int(reply.X), Y: int(reply.Y)},
	}, nil
}

// convertZPixmap converts 32 bits-per-pixel BGRX scanlines to RGBA.
func convertZPixmap(data []byte, width, height int) (*image.RGBA, error) {
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image data: got %d bytes for %dx%d", len(data), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		o := i * 4
		// BGRA to RGBA
		img.Pix[o] = data[o+2]
		img.Pix[o+1] = data[o+1]
		img.Pix[o+2] = data[o]
		img.Pix[o+3] = 255
	}
	return img, nil
}

// cursorImage converts XFixes premultiplied ARGB pixels to RGBA.
func cursorImage(width, height int, argb []uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height && i < len(argb); i++ {
		p := argb[i]
		o := i * 4
		img.Pix[o] = uint8(p >> 16)
		img.Pix[o+1] = uint8(p >> 8)
		img.Pix[o+2] = uint8(p)
		img.Pix[o+3] = uint8(p >> 24)
	}
	return img
}
