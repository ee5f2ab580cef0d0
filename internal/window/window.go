// Package window resolves a clicked point on an X11 desktop to the managed
// window under it.
package window

import (
	"strings"

	"github.com/BurntSushi/xgb"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// Info describes one top-level client window.
type Info struct {
	ID uint32 `json:"id"`

	// Title and Class are only filled for the window FrameAt returns.
	Title string `json:"title"`
	Class string `json:"class"`

	// Frame is the root-relative rectangle including decorations.
	Frame geometry.Rect `json:"frame"`

	Types    []string `json:"types,omitempty"`
	Viewable bool     `json:"viewable"`
}

// Pickable reports whether a click may select this window. Docks, panels and
// the desktop itself are never picked.
func (i Info) Pickable() bool {
	if !i.Viewable || i.Frame.Empty() {
		return false
	}
	for _, t := range i.Types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_DOCK", "_NET_WM_WINDOW_TYPE_DESKTOP":
			return false
		}
	}
	return true
}

// Pick returns the top-most pickable window containing p. stack is ordered
// bottom to top, as X11 reports stacking order.
func Pick(stack []Info, p geometry.Point) (Info, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		if w.Pickable() && w.Frame.Contains(p) {
			return w, true
		}
	}
	return Info{}, false
}

// withExtents grows a client rectangle by _NET_FRAME_EXTENTS (left, right,
// top, bottom).
func withExtents(client geometry.Rect, extents []uint32) geometry.Rect {
	if len(extents) < 4 {
		return client
	}
	left, right, top, bottom := int(extents[0]), int(extents[1]), int(extents[2]), int(extents[3])
	return geometry.Rect{
		X:      client.X - left,
		Y:      client.Y - top,
		Width:  client.Width + left + right,
		Height: client.Height + top + bottom,
	}
}

// cardinals decodes a 32-bit property value.
func cardinals(value []byte) []uint32 {
	out := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, xgb.Get32(value[i:]))
	}
	return out
}

// preferTitle picks the UTF-8 EWMH name over the legacy WM_NAME.
func preferTitle(netWMName, wmName string) string {
	if netWMName != "" {
		return netWMName
	}
	return wmName
}

// parseClass returns the class half of WM_CLASS ("instance\0class\0"),
// falling back to the instance.
func parseClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return ""
}
