package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/bridge"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// RenderMode chooses how area overlay surfaces are laid out.
type RenderMode string

const (
	RenderAuto       RenderMode = "auto"
	RenderPerMonitor RenderMode = "per-monitor"
	RenderSpanning   RenderMode = "spanning"
)

// ParseRenderMode parses a render mode name. Empty means auto.
func ParseRenderMode(s string) (RenderMode, error) {
	switch m := RenderMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return RenderAuto, nil
	case RenderAuto, RenderPerMonitor, RenderSpanning:
		return m, nil
	}
	return "", fmt.Errorf("unknown render mode %q", s)
}

// Spanning reports whether the area overlay should use one surface over the
// whole desktop. Auto spans only inside a bridged helper.
func (m RenderMode) Spanning() bool {
	switch m {
	case RenderSpanning:
		return true
	case RenderPerMonitor:
		return false
	}
	return bridge.ForcedX11()
}

// IsWayland reports whether the session is a Wayland session.
func IsWayland() bool {
	switch strings.ToLower(os.Getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return true
	case "x11":
		return false
	}
	return os.Getenv("WAYLAND_DISPLAY") != ""
}

// AreaBridge runs an area selection out of process.
type AreaBridge interface {
	SelectArea(ctx context.Context, background *image.RGBA) (*geometry.Rect, error)
}

// Router picks between the bridged and the in-process area selection and
// owns the window picker. It satisfies both selector interfaces of the
// capture orchestrator.
type Router struct {
	Direct *AreaOverlay
	Picker *WindowPicker

	// Bridge is used when set and UseBridge is true.
	Bridge    AreaBridge
	UseBridge bool

	log *zerolog.Logger
}

// NewRouter creates a router. The bridge is used on Wayland unless disabled
// by disable or the environment, and never inside a bridged helper.
func NewRouter(direct *AreaOverlay, picker *WindowPicker, b AreaBridge, disable bool) *Router {
	use := b != nil && IsWayland() && !disable && !bridge.Disabled() && !bridge.ForcedX11()
	return &Router{
		Direct:    direct,
		Picker:    picker,
		Bridge:    b,
		UseBridge: use,
		log:       logger.WithComponent("overlay"),
	}
}

// SelectArea resolves a rectangle over background. A bridge that cannot run
// falls back to the in-process overlay. The bridged helper anchors the
// background at its own desktop origin, so origin only applies in process.
func (r *Router) SelectArea(ctx context.Context, background *image.RGBA, origin geometry.Point) (*geometry.Rect, error) {
	if r.UseBridge && r.Bridge != nil {
		rect, err := r.Bridge.SelectArea(ctx, background)
		if err == nil {
			return rect, nil
		}
		if !errors.Is(err, bridge.ErrSubprocessFailed) {
			return nil, err
		}
		r.log.Warn().Err(err).Msg("Selection helper failed, selecting in process")
	}
	if r.Direct == nil {
		return nil, errors.New("no area overlay configured")
	}
	return r.Direct.SelectArea(ctx, background, origin)
}

// SelectPoint runs the window picker.
func (r *Router) SelectPoint(ctx context.Context) (*geometry.Point, error) {
	if r.Picker == nil {
		return nil, errors.New("no window picker configured")
	}
	return r.Picker.SelectPoint(ctx)
}
