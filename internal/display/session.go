package display

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/overlay"
)

type session struct {
	conn     *conn
	cursor   xproto.Cursor
	surfaces []*surface
	monitors []geometry.Monitor
	escape   map[xproto.Keycode]bool

	events    chan overlay.Event
	done      chan struct{}
	closeOnce sync.Once

	log *zerolog.Logger
}

type surface struct {
	conn    *conn
	monitor geometry.Monitor
	win     xproto.Window
	gc      xproto.Gcontext

	// mu guards frame, the surface's own copy of the last presented pixels.
	// Exposes repaint from it on the event pump while the overlay keeps
	// drawing into its buffer.
	mu    sync.Mutex
	frame *image.RGBA

	// upload sends pixels to the window; nil means put.
	upload func(frame *image.RGBA, r image.Rectangle) error
}

func (s *session) open(ctx context.Context, opts overlay.SessionOptions) error {
	c := s.conn
	cursor, err := c.crosshair()
	if err != nil {
		s.log.Debug().Err(err).Msg("Using default cursor")
	} else {
		s.cursor = cursor
	}

	for _, m := range opts.Monitors {
		win, err := c.createWindow(m.Bounds(), 0, overlayEventMask, s.cursor)
		if err != nil {
			return err
		}
		surf := &surface{conn: c, monitor: m, win: win}
		s.surfaces = append(s.surfaces, surf)
		s.monitors = append(s.monitors, m)

		if opts.Title != "" {
			if err := c.setWindowTitle(win, opts.Title); err != nil {
				s.log.Warn().Err(err).Msg("Failed to set window title")
			}
		}
		if err := c.setWindowClass(win, "snapframe", "SnapFrame"); err != nil {
			s.log.Warn().Err(err).Msg("Failed to set window class")
		}
		if opts.Border > 0 {
			if err := c.shapeBorder(win, m.Width, m.Height, opts.Border); err != nil {
				s.log.Warn().Err(err).Msg("Failed to shape picker border")
			}
		}

		gc, err := xproto.NewGcontextId(c.Conn)
		if err != nil {
			return fmt.Errorf("failed to create graphics context ID: %w", err)
		}
		if err := xproto.CreateGCChecked(c.Conn, gc, xproto.Drawable(win), 0, nil).Check(); err != nil {
			return fmt.Errorf("failed to create GC: %w", err)
		}
		surf.gc = gc

		if err := xproto.MapWindowChecked(c.Conn, win).Check(); err != nil {
			return fmt.Errorf("failed to map window: %w", err)
		}
	}
	c.Sync()

	s.escape = c.escapeKeycodes()
	if err := c.grab(ctx, s.surfaces[0].win, s.cursor); err != nil {
		return err
	}

	go s.pump()
	return nil
}

func (s *session) Surfaces() []overlay.Surface {
	out := make([]overlay.Surface, len(s.surfaces))
	for i, surf := range s.surfaces {
		out[i] = surf
	}
	return out
}

func (s *session) Events() <-chan overlay.Event {
	return s.events
}

// Close releases the grab and destroys every surface. It is safe to call
// more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		c := s.conn
		xproto.UngrabPointer(c.Conn, xproto.TimeCurrentTime)
		xproto.UngrabKeyboard(c.Conn, xproto.TimeCurrentTime)
		for _, surf := range s.surfaces {
			if surf.gc != 0 {
				xproto.FreeGC(c.Conn, surf.gc)
			}
			xproto.DestroyWindow(c.Conn, surf.win)
		}
		if s.cursor != 0 {
			xproto.FreeCursor(c.Conn, s.cursor)
		}
		c.Sync()
		c.Close()
	})
	return nil
}

// pump translates X events into overlay events until the connection closes.
// Closing the connection makes WaitForEvent return (nil, nil).
func (s *session) pump() {
	defer close(s.events)

	for {
		ev, xerr := s.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			s.log.Debug().Str("error", xerr.Error()).Msg("X error during overlay session")
			continue
		}

		var out overlay.Event
		switch e := ev.(type) {
		case xproto.ButtonPressEvent:
			if e.Detail != xproto.ButtonIndex1 {
				continue
			}
			out = s.pointerEvent(overlay.Press, e.RootX, e.RootY)
		case xproto.ButtonReleaseEvent:
			if e.Detail != xproto.ButtonIndex1 {
				continue
			}
			out = s.pointerEvent(overlay.Release, e.RootX, e.RootY)
		case xproto.MotionNotifyEvent:
			out = s.pointerEvent(overlay.Motion, e.RootX, e.RootY)
		case xproto.KeyPressEvent:
			if !s.escape[e.Detail] {
				continue
			}
			out = overlay.Event{Kind: overlay.Cancel}
		case xproto.ExposeEvent:
			s.expose(e)
			continue
		default:
			continue
		}

		select {
		case s.events <- out:
		case <-s.done:
			return
		}
	}
}

func (s *session) pointerEvent(kind overlay.EventKind, rootX, rootY int16) overlay.Event {
	idx, local := locate(s.monitors, geometry.Point{X: int(rootX), Y: int(rootY)})
	return overlay.Event{Kind: kind, Surface: idx, X: local.X, Y: local.Y}
}

func (s *session) expose(e xproto.ExposeEvent) {
	for _, surf := range s.surfaces {
		if surf.win != e.Window {
			continue
		}
		r := image.Rect(int(e.X), int(e.Y), int(e.X)+int(e.Width), int(e.Y)+int(e.Height))
		if err := surf.repaint(r); err != nil {
			s.log.Debug().Err(err).Msg("Failed to repaint exposed region")
		}
		return
	}
}

// locate finds the monitor containing the global point p and returns its
// index and p in that monitor's coordinates. Points in no monitor are
// reported against the first.
func locate(monitors []geometry.Monitor, p geometry.Point) (int, geometry.Point) {
	idx := 0
	for i, m := range monitors {
		if m.Bounds().Contains(p) {
			idx = i
			break
		}
	}
	if len(monitors) == 0 {
		return 0, p
	}
	m := monitors[idx]
	return idx, geometry.Point{X: p.X - m.X, Y: p.Y - m.Y}
}

func (s *surface) Monitor() geometry.Monitor { return s.monitor }

// Present copies damage from frame into the surface and uploads it. The
// caller may reuse frame as soon as it returns.
func (s *surface) Present(frame *image.RGBA, damage image.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := damage.Intersect(frame.Bounds())
	if s.frame == nil || s.frame.Bounds() != frame.Bounds() {
		s.frame = image.NewRGBA(frame.Bounds())
		copied = frame.Bounds()
	}
	draw.Draw(s.frame, copied, frame, copied.Min, draw.Src)

	if err := s.send(damage); err != nil {
		return err
	}
	if s.conn != nil {
		s.conn.Sync()
	}
	return nil
}

// repaint uploads r of the last presented frame again.
func (s *surface) repaint(r image.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil
	}
	return s.send(r)
}

// send uploads r of s.frame. mu must be held.
func (s *surface) send(r image.Rectangle) error {
	if s.upload != nil {
		return s.upload(s.frame, r)
	}
	return s.put(s.frame, r)
}

// put uploads r of frame, split into as many PutImage requests as the
// server's maximum request length needs.
func (s *surface) put(frame *image.RGBA, r image.Rectangle) error {
	r = r.Intersect(frame.Bounds())
	if r.Empty() {
		return nil
	}
	f := s.conn.format
	stride := f.stride(r.Dx())
	rows := rowsPerRequest(stride, s.conn.maxRequest)
	if rows < 1 {
		return fmt.Errorf("row of %d bytes exceeds maximum request length", stride)
	}

	for y := r.Min.Y; y < r.Max.Y; y += rows {
		band := image.Rect(r.Min.X, y, r.Max.X, min(y+rows, r.Max.Y))
		data, err := f.encode(frame, band)
		if err != nil {
			return err
		}
		err = xproto.PutImageChecked(
			s.conn.Conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(s.win),
			s.gc,
			uint16(band.Dx()), uint16(band.Dy()),
			int16(band.Min.X), int16(band.Min.Y),
			0,
			f.depth,
			data,
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}
