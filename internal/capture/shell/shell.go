// Package shell captures through the GNOME Shell screenshot interface.
package shell

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// Shell screenshot D-Bus constants
const (
	shellService = "org.gnome.Shell.Screenshot"
	shellPath    = "/org/gnome/Shell/Screenshot"
	shellIface   = "org.gnome.Shell.Screenshot"
)

// Backend asks the compositor to write a screenshot to a temp file and reads
// it back.
type Backend struct {
	// Dir holds the temp files. Defaults to <user cache dir>/snapframe.
	Dir string

	log *zerolog.Logger
}

// New creates a shell backend.
func New() *Backend {
	return &Backend{log: logger.WithComponent("shell-backend")}
}

// Descriptor registers the backend. The shell picks the window itself and
// shows its own flash.
func (b *Backend) Descriptor() capture.Descriptor {
	return capture.Descriptor{
		ID:          capture.BackendShell,
		Label:       "GNOME Shell Screenshot",
		Probe:       b.Probe,
		Capture:     b.Capture,
		ServerFlash: true,
	}
}

// Probe introspects the screenshot object and looks for a Screenshot
// method. Any failure means unavailable.
func (b *Backend) Probe() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		b.log.Debug().Err(err).Msg("Session bus unavailable")
		return false
	}
	defer conn.Close()

	node, err := introspect.Call(conn.Object(shellService, shellPath))
	if err != nil {
		b.log.Debug().Err(err).Msg("Shell screenshot interface not available")
		return false
	}
	return hasMethod(node, shellIface, "Screenshot")
}

func hasMethod(node *introspect.Node, iface, method string) bool {
	if node == nil {
		return false
	}
	for _, i := range node.Interfaces {
		if i.Name != iface {
			continue
		}
		for _, m := range i.Methods {
			if m.Name == method {
				return true
			}
		}
	}
	return false
}

// request returns the method and arguments for a target.
func request(target capture.Target, filename string) (string, []interface{}) {
	switch target.Mode {
	case capture.ModeWindow:
		// include_frame, include_cursor, flash, filename
		return shellIface + ".ScreenshotWindow", []interface{}{true, target.IncludePointer, true, filename}
	case capture.ModeArea:
		// Freeze-frame: no flash until the area is chosen.
		return shellIface + ".Screenshot", []interface{}{target.IncludePointer, false, filename}
	default:
		return shellIface + ".Screenshot", []interface{}{target.IncludePointer, true, filename}
	}
}

func (b *Backend) tempPath() (string, error) {
	dir := b.Dir
	if dir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			cache = os.TempDir()
		}
		dir = filepath.Join(cache, "snapframe")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, fmt.Sprintf("scr-%d.png", time.Now().UnixNano())), nil
}

// Capture calls the shell and decodes the file it wrote. The file is removed
// whatever the outcome.
func (b *Backend) Capture(ctx context.Context, target capture.Target) (*capture.Result, error) {
	filename, err := b.tempPath()
	if err != nil {
		return nil, err
	}
	defer os.Remove(filename)

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	method, args := request(target, filename)
	b.log.Debug().Str("method", method).Str("file", filename).Msg("Calling shell screenshot")

	var (
		success bool
		used    string
	)
	err = conn.Object(shellService, shellPath).CallWithContext(ctx, method, 0, args...).Store(&success, &used)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if used != "" && used != filename {
		defer os.Remove(used)
	} else {
		used = filename
	}
	if !success {
		return nil, fmt.Errorf("%s reported failure", method)
	}

	img, err := decodeFile(used)
	if err != nil {
		return nil, err
	}
	return newResult(img, target.Mode), nil
}

// newResult places a decoded file. Screen and freeze-frame files start at
// the desktop origin; the window the shell picked has no known position.
func newResult(img *image.RGBA, mode capture.Mode) *capture.Result {
	return &capture.Result{Image: img, OriginUnknown: mode == capture.ModeWindow}
}

func decodeFile(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return capture.ToRGBA(img), nil
}
