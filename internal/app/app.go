// Package app wires the capture registry, the selection overlays and the
// countdown into one object the CLI and the control API drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/bridge"
	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/capture/grim"
	"github.com/bryanchriswhite/SnapFrame/internal/capture/portal"
	"github.com/bryanchriswhite/SnapFrame/internal/capture/shell"
	"github.com/bryanchriswhite/SnapFrame/internal/capture/x11"
	"github.com/bryanchriswhite/SnapFrame/internal/config"
	"github.com/bryanchriswhite/SnapFrame/internal/delay"
	"github.com/bryanchriswhite/SnapFrame/internal/display"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
	"github.com/bryanchriswhite/SnapFrame/internal/overlay"
)

// HelperCommand is the hidden subcommand the selection bridge runs.
const HelperCommand = "select-helper"

// ErrBusy is returned while another capture is in flight.
var ErrBusy = errors.New("a capture is already in progress")

// Host is a display that can run overlays and flashes.
type Host interface {
	overlay.Host
	overlay.FlashHost
}

// Options overrides the platform pieces, mainly for tests.
type Options struct {
	// Backends replaces the built-in X11, SHELL, GRIM, PORTAL registration.
	Backends []capture.Descriptor

	// Host defaults to the X11 display manager.
	Host Host

	// Bridge defaults to re-running this executable as the selection helper.
	Bridge overlay.AreaBridge

	// HelperArgs are passed to the default bridge's helper after
	// HelperCommand so the child resolves the same config and logging.
	HelperArgs []string

	Scheduler *delay.Scheduler
}

// App runs captures for one resolved configuration.
type App struct {
	cfg          config.Config
	registry     *capture.Registry
	orchestrator *capture.Orchestrator
	areas        *overlay.AreaOverlay
	router       *overlay.Router
	flash        *overlay.Flash
	scheduler    *delay.Scheduler
	host         Host
	closers      []func() error

	busy sync.Mutex
	log  *zerolog.Logger
}

// New builds an app from cfg.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:       cfg,
		scheduler: opts.Scheduler,
		host:      opts.Host,
		log:       logger.WithComponent("app"),
	}
	if a.scheduler == nil {
		a.scheduler = delay.New()
	}
	if a.host == nil {
		a.host = display.NewManager()
	}

	descs := opts.Backends
	if descs == nil {
		xb := x11.New()
		a.closers = append(a.closers, xb.Close)
		descs = []capture.Descriptor{
			xb.Descriptor(),
			shell.New().Descriptor(),
			grim.New().Descriptor(),
			portal.New().Descriptor(),
		}
	}
	registry, err := capture.NewRegistry(descs...)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	mode, err := overlay.ParseRenderMode(cfg.Selection.RenderMode)
	if err != nil {
		return nil, err
	}
	grace := time.Duration(cfg.Selection.GraceWaitMs) * time.Millisecond
	a.areas = overlay.NewAreaOverlay(a.host, mode.Spanning(), grace)

	b := opts.Bridge
	if b == nil {
		if exe, err := os.Executable(); err == nil {
			b = bridge.New(exe, append([]string{HelperCommand}, opts.HelperArgs...)...)
		} else {
			a.log.Warn().Err(err).Msg("Selection helper unavailable")
		}
	}
	a.router = overlay.NewRouter(a.areas, overlay.NewWindowPicker(a.host, grace), b, cfg.Selection.DisableBridge)

	var flasher capture.Flasher
	if cfg.Capture.Flash {
		a.flash = overlay.NewFlash(a.host)
		flasher = a.flash
	}

	a.orchestrator = capture.NewOrchestrator(registry, capture.Options{
		Areas:    a.router,
		Points:   a.router,
		Flasher:  flasher,
		Monitors: a.host.Monitors,
	})
	return a, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Backends lists every backend with its availability.
func (a *App) Backends() []capture.BackendStatus {
	return a.registry.Status()
}

// DefaultRequest builds a request from the configured capture defaults.
func (a *App) DefaultRequest() (capture.Request, error) {
	mode, err := capture.ParseMode(a.cfg.Capture.Mode)
	if err != nil {
		return capture.Request{}, err
	}
	backend, err := capture.ParseBackendID(a.cfg.Capture.Backend)
	if err != nil {
		return capture.Request{}, err
	}
	return capture.Request{
		Mode:            mode,
		IncludePointer:  a.cfg.Capture.IncludePointer,
		Backend:         backend,
		DisableFallback: a.cfg.Capture.DisableFallback,
	}, nil
}

// Capture counts down for delay and runs req. A nil result with a nil error
// means the user cancelled. Only one capture runs at a time; concurrent calls
// fail with ErrBusy.
func (a *App) Capture(ctx context.Context, req capture.Request, wait time.Duration, status StatusFunc) (*capture.Result, error) {
	if !a.busy.TryLock() {
		return nil, ErrBusy
	}
	defer a.busy.Unlock()

	if status == nil {
		status = func(Status) {}
	}

	err := a.scheduler.Countdown(ctx, wait, func(secs int) {
		status(Status{Kind: StatusCountdown, Remaining: secs, Message: fmt.Sprintf("Capturing in %ds...", secs)})
	})
	if err != nil {
		return nil, err
	}

	status(Status{Kind: StatusCapturing, Message: fmt.Sprintf("Capturing %s", req.Mode)})
	res, err := a.orchestrator.Capture(ctx, req)
	switch {
	case err != nil:
		status(Status{Kind: StatusFailed, Message: err.Error()})
		return nil, err
	case res == nil:
		status(Status{Kind: StatusCancelled, Message: "Capture cancelled"})
		return nil, nil
	}

	b := res.Bounds()
	st := Status{
		Kind:    StatusCaptured,
		Message: fmt.Sprintf("Captured %dx%d with %s", b.Width, b.Height, res.Backend),
		Backend: res.Backend,
	}
	if !res.OriginUnknown {
		st.Rect = &b
	}
	status(st)
	return res, nil
}

// ServeSelectHelper runs the child side of the selection bridge: one area
// selection over the background at bgPath, answered in resultPath.
func (a *App) ServeSelectHelper(ctx context.Context, bgPath, resultPath string) error {
	return bridge.ServeHelper(ctx, bgPath, resultPath, func(ctx context.Context, bg *image.RGBA) (*geometry.Rect, error) {
		monitors, err := a.host.Monitors()
		if err != nil {
			return nil, err
		}
		return a.areas.SelectArea(ctx, bg, geometry.Desktop(monitors).Origin())
	})
}

// Close lets a running flash finish, then releases backend connections.
func (a *App) Close() error {
	if a.flash != nil {
		a.flash.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
