package window

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// Finder queries the X server for client windows. It shares the caller's
// connection and never closes it.
type Finder struct {
	conn *xgb.Conn
	root xproto.Window
	log  *zerolog.Logger

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewFinder creates a finder on an existing connection.
func NewFinder(conn *xgb.Conn, root xproto.Window) *Finder {
	return &Finder{
		conn:  conn,
		root:  root,
		log:   logger.WithComponent("window-finder"),
		atoms: make(map[string]xproto.Atom),
	}
}

// FrameAt returns the top-most window frame containing p. When nothing
// pickable lies under p the active window is used.
func (f *Finder) FrameAt(p geometry.Point) (Info, error) {
	stack, err := f.Stack()
	if err != nil {
		f.log.Debug().Err(err).Msg("Failed to read stacking order")
	}
	if w, ok := Pick(stack, p); ok {
		f.describe(&w)
		f.log.Debug().
			Uint32("window_id", w.ID).
			Str("title", w.Title).
			Str("class", w.Class).
			Str("frame", w.Frame.String()).
			Msg("Picked window under pointer")
		return w, nil
	}

	f.log.Debug().Int("x", p.X).Int("y", p.Y).Msg("No window under pointer, using active window")
	w, err := f.Active()
	if err != nil {
		return Info{}, err
	}
	f.describe(&w)
	return w, nil
}

// Active returns the window named by _NET_ACTIVE_WINDOW, or the input focus
// when the window manager does not publish it.
func (f *Finder) Active() (Info, error) {
	values, err := f.cardinalProperty(f.root, "_NET_ACTIVE_WINDOW")
	if err == nil && len(values) > 0 && values[0] != 0 {
		return f.Info(xproto.Window(values[0]))
	}

	focus, err := xproto.GetInputFocus(f.conn).Reply()
	if err != nil {
		return Info{}, fmt.Errorf("failed to get input focus: %w", err)
	}
	if focus.Focus == f.root || focus.Focus <= 1 {
		return Info{}, fmt.Errorf("no active window")
	}
	return f.Info(focus.Focus)
}

// Stack returns client windows bottom to top using EWMH
// _NET_CLIENT_LIST_STACKING with a QueryTree fallback.
func (f *Finder) Stack() ([]Info, error) {
	ids, err := f.cardinalProperty(f.root, "_NET_CLIENT_LIST_STACKING")
	if err == nil && len(ids) > 0 {
		f.log.Debug().Int("count", len(ids)).Msg("Stack: using EWMH _NET_CLIENT_LIST_STACKING")
		return f.infos(ids), nil
	}
	if err != nil {
		f.log.Debug().Err(err).Msg("Stack: EWMH failed, falling back to QueryTree")
	}

	tree, err := xproto.QueryTree(f.conn, f.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query tree: %w", err)
	}
	ids = make([]uint32, 0, len(tree.Children))
	for _, child := range tree.Children {
		ids = append(ids, uint32(child))
	}
	return f.infos(ids), nil
}

func (f *Finder) infos(ids []uint32) []Info {
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		info, err := f.Info(xproto.Window(id))
		if err != nil {
			f.log.Debug().Uint32("window_id", id).Err(err).Msg("Skipping window")
			continue
		}
		out = append(out, info)
	}
	return out
}

// Info reads the root-relative frame and window types of a window, the only
// properties picking needs. Labels are filled by describe.
func (f *Finder) Info(win xproto.Window) (Info, error) {
	info := Info{ID: uint32(win)}

	attrs, err := xproto.GetWindowAttributes(f.conn, win).Reply()
	if err != nil {
		return info, fmt.Errorf("failed to get window attributes: %w", err)
	}
	info.Viewable = attrs.MapState == xproto.MapStateViewable

	geom, err := xproto.GetGeometry(f.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return info, fmt.Errorf("failed to get window geometry: %w", err)
	}
	pos, err := xproto.TranslateCoordinates(f.conn, win, f.root, 0, 0).Reply()
	if err != nil {
		return info, fmt.Errorf("failed to translate coordinates: %w", err)
	}
	client := geometry.Rect{
		X:      int(pos.DstX),
		Y:      int(pos.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}
	extents, _ := f.cardinalProperty(win, "_NET_FRAME_EXTENTS")
	info.Frame = withExtents(client, extents)

	if types, err := f.cardinalProperty(win, "_NET_WM_WINDOW_TYPE"); err == nil {
		for _, a := range types {
			if name, err := f.atomName(xproto.Atom(a)); err == nil {
				info.Types = append(info.Types, name)
			}
		}
	}

	return info, nil
}

// describe fills the title and class of the one window that was chosen.
func (f *Finder) describe(info *Info) {
	win := xproto.Window(info.ID)
	netName, _ := f.stringProperty(win, "_NET_WM_NAME")
	var wmName string
	if netName == "" {
		wmName, _ = f.stringProperty(win, "WM_NAME")
	}
	info.Title = preferTitle(netName, wmName)
	if raw, err := f.stringProperty(win, "WM_CLASS"); err == nil {
		info.Class = parseClass(raw)
	}
}

// atom interns name, caching the result.
func (f *Finder) atom(name string) (xproto.Atom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(f.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	f.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (f *Finder) atomName(a xproto.Atom) (string, error) {
	reply, err := xproto.GetAtomName(f.conn, a).Reply()
	if err != nil {
		return "", err
	}
	return reply.Name, nil
}

func (f *Finder) property(win xproto.Window, name string) (*xproto.GetPropertyReply, error) {
	a, err := f.atom(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s atom: %w", name, err)
	}
	reply, err := xproto.GetProperty(
		f.conn,
		false,
		win,
		a,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s property: %w", name, err)
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	return reply, nil
}

func (f *Finder) stringProperty(win xproto.Window, name string) (string, error) {
	reply, err := f.property(win, name)
	if err != nil {
		return "", err
	}
	return string(reply.Value), nil
}

func (f *Finder) cardinalProperty(win xproto.Window, name string) ([]uint32, error) {
	reply, err := f.property(win, name)
	if err != nil {
		return nil, err
	}
	if reply.Format != 32 {
		return nil, fmt.Errorf("%s has format %d, want 32", name, reply.Format)
	}
	return cardinals(reply.Value), nil
}
