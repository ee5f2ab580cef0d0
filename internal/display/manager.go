// Package display hosts the selection overlays and the capture flash on an
// X11 server (native or XWayland).
package display

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
	"github.com/bryanchriswhite/SnapFrame/internal/overlay"
)

const (
	// Glyphs of the core "cursor" font.
	crosshairGlyph = 34

	grabAttempts = 20
	grabInterval = 25 * time.Millisecond

	overlayEventMask = xproto.EventMaskButtonPress |
		xproto.EventMaskButtonRelease |
		xproto.EventMaskPointerMotion |
		xproto.EventMaskKeyPress |
		xproto.EventMaskExposure
)

// Manager opens overlay sessions and flash windows. Every session and flash
// gets its own X connection, closed with it.
type Manager struct {
	// Connect dials the X server. Defaults to xgb.NewConn.
	Connect func() (*xgb.Conn, error)

	// ListMonitors enumerates monitors. Defaults to Monitors.
	ListMonitors func() ([]geometry.Monitor, error)

	log *zerolog.Logger
}

var (
	_ overlay.Host      = (*Manager)(nil)
	_ overlay.FlashHost = (*Manager)(nil)
)

// NewManager creates a display manager. No connection is made until a
// session or flash is opened.
func NewManager() *Manager {
	return &Manager{
		Connect:      xgb.NewConn,
		ListMonitors: Monitors,
		log:          logger.WithComponent("x11-host"),
	}
}

// Monitors lists the connected monitors.
func (m *Manager) Monitors() ([]geometry.Monitor, error) {
	return m.ListMonitors()
}

// conn holds one X connection with the screen data every window needs.
type conn struct {
	*xgb.Conn
	screen     *xproto.ScreenInfo
	format     pixmapFormat
	maxRequest int
	atoms      map[string]xproto.Atom
}

func (m *Manager) dial() (*conn, error) {
	c, err := m.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	setup := xproto.Setup(c)
	screen := setup.DefaultScreen(c)

	format, err := findFormat(setup.PixmapFormats, screen.RootDepth)
	if err != nil {
		c.Close()
		return nil, err
	}
	return &conn{
		Conn:       c,
		screen:     screen,
		format:     format,
		maxRequest: int(setup.MaximumRequestLength) * 4,
		atoms:      make(map[string]xproto.Atom),
	}, nil
}

// getAtom gets an atom ID by name
func (c *conn) getAtom(name string) (xproto.Atom, error) {
	if a, ok := c.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(c.Conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	c.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// createWindow creates an unmapped override-redirect window over r.
func (c *conn) createWindow(r geometry.Rect, background uint32, eventMask uint32, cursor xproto.Cursor) (xproto.Window, error) {
	win, err := xproto.NewWindowId(c.Conn)
	if err != nil {
		return 0, fmt.Errorf("failed to create window ID: %w", err)
	}

	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{background, 1, eventMask}
	if cursor != 0 {
		mask |= xproto.CwCursor
		values = append(values, uint32(cursor))
	}

	err = xproto.CreateWindowChecked(
		c.Conn,
		c.screen.RootDepth,
		win,
		c.screen.Root,
		int16(r.X), int16(r.Y),
		uint16(r.Width), uint16(r.Height),
		0,
		xproto.WindowClassInputOutput,
		c.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return 0, fmt.Errorf("failed to create window: %w", err)
	}
	return win, nil
}

// setWindowTitle sets the window title
func (c *conn) setWindowTitle(win xproto.Window, title string) error {
	titleAtom, err := c.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}

	utf8Atom, err := c.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}

	return xproto.ChangePropertyChecked(
		c.Conn,
		xproto.PropModeReplace,
		win,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

// setWindowClass sets the window class
func (c *conn) setWindowClass(win xproto.Window, instance, class string) error {
	classAtom, err := c.getAtom("WM_CLASS")
	if err != nil {
		return err
	}

	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"

	return xproto.ChangePropertyChecked(
		c.Conn,
		xproto.PropModeReplace,
		win,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// crosshair creates the crosshair cursor from the core cursor font.
func (c *conn) crosshair() (xproto.Cursor, error) {
	font, err := xproto.NewFontId(c.Conn)
	if err != nil {
		return 0, err
	}
	name := "cursor"
	if err := xproto.OpenFontChecked(c.Conn, font, uint16(len(name)), name).Check(); err != nil {
		return 0, fmt.Errorf("failed to open cursor font: %w", err)
	}
	defer xproto.CloseFont(c.Conn, font)

	cursor, err := xproto.NewCursorId(c.Conn)
	if err != nil {
		return 0, err
	}
	err = xproto.CreateGlyphCursorChecked(
		c.Conn, cursor, font, font,
		crosshairGlyph, crosshairGlyph+1,
		0, 0, 0,
		0xffff, 0xffff, 0xffff,
	).Check()
	if err != nil {
		return 0, fmt.Errorf("failed to create cursor: %w", err)
	}
	return cursor, nil
}

// grab takes the pointer and keyboard for win. The server refuses grabs on
// windows that are not yet viewable, so it retries for a short while.
func (c *conn) grab(ctx context.Context, win xproto.Window, cursor xproto.Cursor) error {
	var lastStatus byte
	for i := 0; i < grabAttempts; i++ {
		reply, err := xproto.GrabPointer(
			c.Conn, false, win,
			uint16(xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease|xproto.EventMaskPointerMotion),
			xproto.GrabModeAsync, xproto.GrabModeAsync,
			xproto.WindowNone, cursor, xproto.TimeCurrentTime,
		).Reply()
		if err != nil {
			return fmt.Errorf("failed to grab pointer: %w", err)
		}
		lastStatus = reply.Status
		if reply.Status == xproto.GrabStatusSuccess {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(grabInterval):
		}
	}
	if lastStatus != xproto.GrabStatusSuccess {
		return fmt.Errorf("pointer grab refused (status %d)", lastStatus)
	}

	for i := 0; i < grabAttempts; i++ {
		reply, err := xproto.GrabKeyboard(
			c.Conn, false, win, xproto.TimeCurrentTime,
			xproto.GrabModeAsync, xproto.GrabModeAsync,
		).Reply()
		if err != nil {
			break
		}
		if reply.Status == xproto.GrabStatusSuccess {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(grabInterval):
		}
	}
	// Escape will not work without the keyboard but the mouse still does.
	return nil
}

// escapeKeycodes returns every keycode that produces Escape.
func (c *conn) escapeKeycodes() map[xproto.Keycode]bool {
	setup := xproto.Setup(c.Conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(c.Conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return nil
	}
	codes := make(map[xproto.Keycode]bool)
	for _, kc := range keycodesFor(reply.Keysyms, reply.KeysymsPerKeycode, setup.MinKeycode, keysymEscape) {
		codes[kc] = true
	}
	return codes
}

// shapeBorder restricts win's bounding shape to a ring of width pixels.
func (c *conn) shapeBorder(win xproto.Window, w, h, width int) error {
	if err := shape.Init(c.Conn); err != nil {
		return fmt.Errorf("shape extension unavailable: %w", err)
	}
	return shape.RectanglesChecked(
		c.Conn, shape.SoSet, shape.SkBounding, xproto.ClipOrderingUnsorted,
		win, 0, 0, borderRects(w, h, width),
	).Check()
}

// passThrough makes win transparent to input.
func (c *conn) passThrough(win xproto.Window) error {
	if err := shape.Init(c.Conn); err != nil {
		return fmt.Errorf("shape extension unavailable: %w", err)
	}
	return shape.RectanglesChecked(
		c.Conn, shape.SoSet, shape.SkInput, xproto.ClipOrderingUnsorted,
		win, 0, 0, nil,
	).Check()
}

// Open creates one override-redirect surface per requested monitor and
// grabs input on the first one.
func (m *Manager) Open(ctx context.Context, opts overlay.SessionOptions) (overlay.Session, error) {
	if len(opts.Monitors) == 0 {
		return nil, errors.New("no monitors to cover")
	}
	c, err := m.dial()
	if err != nil {
		return nil, err
	}

	s := &session{
		conn:   c,
		events: make(chan overlay.Event, 64),
		done:   make(chan struct{}),
		log:    m.log,
	}
	if err := s.open(ctx, opts); err != nil {
		s.Close()
		return nil, err
	}

	m.log.Debug().
		Int("surfaces", len(s.surfaces)).
		Str("title", opts.Title).
		Msg("Overlay session opened")
	return s, nil
}

// OpenFlash maps a white, input-transparent window over r.
func (m *Manager) OpenFlash(r geometry.Rect) (overlay.FlashWindow, error) {
	c, err := m.dial()
	if err != nil {
		return nil, err
	}
	win, err := c.createWindow(r, 0xffffff, 0, 0)
	if err != nil {
		c.Close()
		return nil, err
	}
	f := &flashWindow{conn: c, win: win}

	if err := c.passThrough(win); err != nil {
		m.log.Debug().Err(err).Msg("Flash window will block input")
	}
	if err := c.setWindowClass(win, "snapframe", "SnapFrame"); err != nil {
		m.log.Debug().Err(err).Msg("Failed to set window class")
	}
	if err := f.SetOpacity(1); err != nil {
		f.Close()
		return nil, err
	}
	if err := xproto.MapWindowChecked(c.Conn, win).Check(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map flash window: %w", err)
	}
	c.Sync()
	return f, nil
}

type flashWindow struct {
	conn *conn
	win  xproto.Window
}

func (f *flashWindow) SetOpacity(opacity float64) error {
	atom, err := f.conn.getAtom("_NET_WM_WINDOW_OPACITY")
	if err != nil {
		return err
	}
	v := opacityValue(opacity)
	data := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	err = xproto.ChangePropertyChecked(
		f.conn.Conn, xproto.PropModeReplace, f.win,
		atom, xproto.AtomCardinal, 32, 1, data,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to set opacity: %w", err)
	}
	return nil
}

func (f *flashWindow) Close() error {
	xproto.DestroyWindow(f.conn.Conn, f.win)
	f.conn.Sync()
	f.conn.Close()
	return nil
}

// opacityValue maps [0,1] to the _NET_WM_WINDOW_OPACITY cardinal.
func opacityValue(opacity float64) uint32 {
	switch {
	case opacity <= 0:
		return 0
	case opacity >= 1:
		return 0xffffffff
	}
	return uint32(opacity * float64(0xffffffff))
}
