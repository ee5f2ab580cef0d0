package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// Orchestrator runs a capture request against the registry, falling back
// through the other available backends when the requested one fails.
type Orchestrator struct {
	registry *Registry
	areas    AreaSelector
	points   PointSelector
	flasher  Flasher
	monitors func() ([]geometry.Monitor, error)
	log      *zerolog.Logger
}

// Options carries the interactive collaborators. Any of them may be nil: a
// nil Flasher disables the flash, a nil selector makes the modes that need it
// fail.
type Options struct {
	Areas   AreaSelector
	Points  PointSelector
	Flasher Flasher

	// Monitors reports the logical monitor layout. Full-screen frames wider
	// than the layout are treated as HiDPI and selections are scaled into
	// them. Nil means frames are always 1:1.
	Monitors func() ([]geometry.Monitor, error)
}

// NewOrchestrator creates an orchestrator over a fixed registry.
func NewOrchestrator(registry *Registry, opts Options) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		areas:    opts.Areas,
		points:   opts.Points,
		flasher:  opts.Flasher,
		monitors: opts.Monitors,
		log:      logger.WithComponent("capture-orchestrator"),
	}
}

// Capture performs one request. A nil result with a nil error means the user
// cancelled somewhere along the way.
func (o *Orchestrator) Capture(ctx context.Context, req Request) (*Result, error) {
	switch req.Mode {
	case ModeScreen, ModeWindow:
		return o.captureDirect(ctx, req)
	case ModeArea:
		return o.captureArea(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}
}

func (o *Orchestrator) captureDirect(ctx context.Context, req Request) (*Result, error) {
	res, desc, err := o.captureWithFallback(ctx, req)
	if err != nil || res == nil {
		return nil, err
	}
	if req.Mode == ModeScreen && res.Scale == 0 {
		res.Scale = o.frameScale(res)
	}
	if !desc.ServerFlash {
		o.flash(res.Bounds())
	}
	return res, nil
}

func (o *Orchestrator) captureArea(ctx context.Context, req Request) (*Result, error) {
	frozen, _, err := o.captureWithFallback(ctx, req)
	if err != nil || frozen == nil {
		return nil, err
	}

	var rect *geometry.Rect
	if req.Rect != nil {
		if !req.Rect.Usable() {
			return nil, fmt.Errorf("area %s is smaller than %dx%d", req.Rect, geometry.MinSelection, geometry.MinSelection)
		}
		r := *req.Rect
		rect = &r
	} else {
		if o.areas == nil {
			return nil, errors.New("no area selector configured")
		}
		rect, err = o.areas.SelectArea(ctx, frozen.Image, geometry.Point{X: frozen.OriginX, Y: frozen.OriginY})
		if err != nil {
			return nil, fmt.Errorf("area selection: %w", err)
		}
		if rect == nil {
			o.log.Info().Msg("Area selection cancelled")
			return nil, nil
		}
	}

	scale := frozen.Scale
	if scale == 0 {
		scale = o.frameScale(frozen)
	}
	cropped, got := CropScaled(frozen.Image, frozen.OriginX, frozen.OriginY, *rect, scale)
	if cropped == nil {
		return nil, fmt.Errorf("%w: area %s lies outside the captured frame %s", ErrCaptureFailed, rect, frozen.Bounds())
	}

	o.log.Debug().
		Str("area", got.String()).
		Str("backend", string(frozen.Backend)).
		Float64("scale", scale).
		Msg("Cropped area from freeze-frame")

	o.flash(got)
	return &Result{Image: cropped, OriginX: got.X, OriginY: got.Y, Backend: frozen.Backend, Scale: scale}, nil
}

// frameScale compares a full-desktop frame with the monitor layout.
func (o *Orchestrator) frameScale(frame *Result) float64 {
	if o.monitors == nil {
		return 1
	}
	monitors, err := o.monitors()
	if err != nil {
		o.log.Debug().Err(err).Msg("Monitor layout unavailable, assuming 1:1 frame")
		return 1
	}
	return geometry.FrameScale(frame.Image.Bounds().Dx(), monitors)
}

func (o *Orchestrator) flash(r geometry.Rect) {
	if o.flasher == nil {
		return
	}
	o.flasher.Flash(r)
}

// errPickCancelled stops the fallback loop when the user dismisses the window
// picker.
var errPickCancelled = errors.New("window pick cancelled")

// attempt holds per-request state shared by every backend attempt.
type attempt struct {
	o      *Orchestrator
	req    Request
	picked *geometry.Point
}

// target builds the backend target. The window click is asked for at most
// once per request, and only by backends that need it.
func (a *attempt) target(ctx context.Context, desc Descriptor) (Target, error) {
	t := Target{Mode: a.req.Mode, IncludePointer: a.req.IncludePointer}
	if a.req.Mode != ModeWindow || !desc.PicksWindow {
		return t, nil
	}
	if a.picked == nil {
		if a.o.points == nil {
			return t, errors.New("no window picker configured")
		}
		p, err := a.o.points.SelectPoint(ctx)
		if err != nil {
			return t, fmt.Errorf("window pick: %w", err)
		}
		if p == nil {
			return t, errPickCancelled
		}
		a.picked = p
	}
	t.Click = *a.picked
	return t, nil
}

func (a *attempt) run(ctx context.Context, desc Descriptor) (*Result, error) {
	t, err := a.target(ctx, desc)
	if err != nil {
		return nil, err
	}
	res, err := desc.Capture(ctx, t)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Image == nil {
		return nil, errors.New("backend returned no image")
	}
	res.Backend = desc.ID
	return res, nil
}

// cancelled reports whether err ends the request as a user cancellation.
func cancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, errPickCancelled)
}

// captureWithFallback tries the requested backend, then every other available
// backend in registration order. Attempts are strictly sequential.
func (o *Orchestrator) captureWithFallback(ctx context.Context, req Request) (*Result, Descriptor, error) {
	a := &attempt{o: o, req: req}
	requested := req.Backend

	if requested == "" {
		available := o.registry.AvailableIDs()
		if len(available) == 0 {
			return nil, Descriptor{}, fmt.Errorf("%w: %w", ErrAllBackendsFailed, ErrBackendUnavailable)
		}
		requested = available[0]
	}

	var failures []error
	desc, err := o.registry.Lookup(requested)
	if err == nil {
		o.log.Debug().
			Str("backend", string(requested)).
			Str("mode", string(req.Mode)).
			Msg("Capturing")
		var res *Result
		res, err = a.run(ctx, desc)
		if err == nil {
			return res, desc, nil
		}
		if cancelled(err) {
			o.log.Info().Str("backend", string(requested)).Msg("Capture cancelled by user")
			return nil, desc, nil
		}
	}

	failure := &BackendError{Backend: requested, Err: err}
	if req.DisableFallback {
		return nil, Descriptor{}, failure
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, Descriptor{}, errors.Join(failure, ctxErr)
	}
	failures = append(failures, failure)

	o.log.Warn().
		Err(err).
		Str("backend", string(requested)).
		Msg("Capture backend failed, trying fallbacks")

	for _, id := range o.registry.AvailableIDs() {
		if id == requested {
			continue
		}
		desc, _ := o.registry.Lookup(id)
		res, err := a.run(ctx, desc)
		if err == nil {
			o.log.Info().
				Str("requested", string(requested)).
				Str("backend", string(id)).
				Msg("Fallback backend succeeded")
			return res, desc, nil
		}
		if cancelled(err) {
			o.log.Info().Str("backend", string(id)).Msg("Capture cancelled by user")
			return nil, desc, nil
		}

		o.log.Warn().Err(err).Str("backend", string(id)).Msg("Fallback backend failed")
		failures = append(failures, &BackendError{Backend: id, Err: err})
		if ctxErr := ctx.Err(); ctxErr != nil {
			failures = append(failures, ctxErr)
			break
		}
	}

	return nil, Descriptor{}, errors.Join(append([]error{ErrAllBackendsFailed}, failures...)...)
}
