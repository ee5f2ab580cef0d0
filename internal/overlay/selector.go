package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// DefaultGraceWait lets the compositor remove the overlay before pixels are
// grabbed.
const DefaultGraceWait = 200 * time.Millisecond

// errSessionEnded is returned when a host closes its event stream without a
// terminal event.
var errSessionEnded = errors.New("overlay session ended unexpectedly")

// AreaOverlay resolves a rectangle with one surface per monitor, or a single
// surface spanning the virtual desktop when Spanning is set.
type AreaOverlay struct {
	Host      Host
	Spanning  bool
	GraceWait time.Duration

	log *zerolog.Logger
}

// NewAreaOverlay creates an area overlay on host.
func NewAreaOverlay(host Host, spanning bool, grace time.Duration) *AreaOverlay {
	return &AreaOverlay{
		Host:      host,
		Spanning:  spanning,
		GraceWait: grace,
		log:       logger.WithComponent("overlay"),
	}
}

func (a *AreaOverlay) monitors() ([]geometry.Monitor, error) {
	monitors, err := a.Host.Monitors()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate monitors: %w", err)
	}
	if len(monitors) == 0 {
		return nil, errors.New("no monitors connected")
	}
	if a.Spanning {
		return []geometry.Monitor{geometry.Desktop(monitors)}, nil
	}
	return monitors, nil
}

// SelectArea runs one rubber-band session over background. It returns nil
// when the user cancels or the drag is below the minimum size.
func (a *AreaOverlay) SelectArea(ctx context.Context, background *image.RGBA, origin geometry.Point) (*geometry.Rect, error) {
	monitors, err := a.monitors()
	if err != nil {
		return nil, err
	}

	sess, err := a.Host.Open(ctx, SessionOptions{Monitors: monitors, Title: "SnapFrame area selection"})
	if err != nil {
		return nil, fmt.Errorf("failed to open overlay: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			sess.Close()
		}
	}()

	surfaces := sess.Surfaces()
	scene := AreaScene(background, origin, backgroundScale(background, monitors))
	state := NewAreaSession()

	frames := make([]*image.RGBA, len(surfaces))
	for i, s := range surfaces {
		frames[i] = scene.Frame(s.Monitor(), state.View())
		if err := s.Present(frames[i], frames[i].Bounds()); err != nil {
			return nil, fmt.Errorf("failed to present overlay: %w", err)
		}
	}

	a.log.Debug().Int("surfaces", len(surfaces)).Bool("spanning", a.Spanning).Msg("Area selection started")

	if err := run(ctx, sess, func(ev Event) bool {
		if ev.Surface < 0 || ev.Surface >= len(surfaces) {
			return false
		}
		global := surfaces[ev.Surface].Monitor().ToGlobal(geometry.Point{X: ev.X, Y: ev.Y})
		damage := state.Handle(ev.Kind, global)
		if !damage.Empty() && !state.Done() {
			a.repaint(scene, surfaces, frames, state.View(), damage)
		}
		return state.Done()
	}); err != nil {
		return nil, err
	}

	closed = true
	if err := sess.Close(); err != nil {
		a.log.Debug().Err(err).Msg("Failed to close overlay")
	}

	res := state.Result()
	a.log.Debug().Str("phase", state.Phase().String()).Msg("Area selection finished")
	if res == nil {
		return nil, nil
	}
	if err := graceWait(ctx, a.GraceWait); err != nil {
		return nil, err
	}
	return res, nil
}

// repaint redraws the damaged global region on every surface it touches.
func (a *AreaOverlay) repaint(scene *Scene, surfaces []Surface, frames []*image.RGBA, view View, damage geometry.Rect) {
	for i, s := range surfaces {
		m := s.Monitor()
		local := m.ToLocal(damage).Image().Intersect(frames[i].Bounds())
		if local.Empty() {
			continue
		}
		scene.Render(frames[i], m, view, local)
		if err := s.Present(frames[i], local); err != nil {
			a.log.Warn().Err(err).Int("surface", i).Msg("Failed to present overlay damage")
		}
	}
}

// WindowPicker resolves the point of one click, showing a border around every
// monitor as affordance.
type WindowPicker struct {
	Host        Host
	GraceWait   time.Duration
	BorderWidth int

	log *zerolog.Logger
}

// NewWindowPicker creates a picker on host.
func NewWindowPicker(host Host, grace time.Duration) *WindowPicker {
	return &WindowPicker{
		Host:        host,
		GraceWait:   grace,
		BorderWidth: 4,
		log:         logger.WithComponent("overlay"),
	}
}

// SelectPoint waits for a click anywhere and returns it in global
// coordinates, or nil when cancelled.
func (w *WindowPicker) SelectPoint(ctx context.Context) (*geometry.Point, error) {
	monitors, err := w.Host.Monitors()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate monitors: %w", err)
	}
	if len(monitors) == 0 {
		return nil, errors.New("no monitors connected")
	}

	sess, err := w.Host.Open(ctx, SessionOptions{
		Monitors: monitors,
		Title:    "SnapFrame window picker",
		Border:   w.BorderWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open window picker: %w", err)
	}

	surfaces := sess.Surfaces()
	scene := PickerScene(w.BorderWidth)
	for _, s := range surfaces {
		frame := scene.Frame(s.Monitor(), View{})
		if err := s.Present(frame, frame.Bounds()); err != nil {
			sess.Close()
			return nil, fmt.Errorf("failed to present window picker: %w", err)
		}
	}

	var state WindowSession
	err = run(ctx, sess, func(ev Event) bool {
		if ev.Surface < 0 || ev.Surface >= len(surfaces) {
			return false
		}
		state.Handle(ev.Kind, surfaces[ev.Surface].Monitor().ToGlobal(geometry.Point{X: ev.X, Y: ev.Y}))
		return state.Done()
	})
	if cerr := sess.Close(); cerr != nil {
		w.log.Debug().Err(cerr).Msg("Failed to close window picker")
	}
	if err != nil {
		return nil, err
	}

	p := state.Result()
	if p == nil {
		w.log.Debug().Msg("Window pick cancelled")
		return nil, nil
	}
	w.log.Debug().Int("x", p.X).Int("y", p.Y).Msg("Window picked")

	// The picker must be gone before the backend grabs pixels.
	if err := graceWait(ctx, w.GraceWait); err != nil {
		return nil, err
	}
	return p, nil
}

// run feeds session events to handle until it reports completion. A
// cancelled context is treated like the cancel key.
func run(ctx context.Context, sess Session, handle func(Event) bool) error {
	events := sess.Events()
	for {
		select {
		case <-ctx.Done():
			handle(Event{Kind: Cancel})
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errSessionEnded
			}
			if handle(ev) {
				return nil
			}
		}
	}
}

func graceWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backgroundScale returns frame pixels per global pixel, comparing the
// frame width with the virtual desktop.
func backgroundScale(background *image.RGBA, monitors []geometry.Monitor) float64 {
	if background == nil {
		return 1
	}
	return geometry.FrameScale(background.Bounds().Dx(), monitors)
}
