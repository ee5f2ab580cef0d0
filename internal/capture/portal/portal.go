// Package portal captures the screen through xdg-desktop-portal.
package portal

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// Portal D-Bus constants
const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenshotIface = "org.freedesktop.portal.Screenshot"
	requestIface    = "org.freedesktop.portal.Request"
)

// Response codes of org.freedesktop.portal.Request.Response.
const (
	responseSuccess   uint32 = 0
	responseCancelled uint32 = 1
)

// DefaultTimeout bounds how long the user may take to answer the portal
// dialog.
const DefaultTimeout = 2 * time.Minute

// Backend requests screenshots from the desktop portal.
type Backend struct {
	Timeout time.Duration
	log     *zerolog.Logger
}

// New creates a portal backend.
func New() *Backend {
	return &Backend{Timeout: DefaultTimeout, log: logger.WithComponent("portal-backend")}
}

// Descriptor registers the backend.
func (b *Backend) Descriptor() capture.Descriptor {
	return capture.Descriptor{
		ID:      capture.BackendPortal,
		Label:   "xdg-desktop-portal Screenshot",
		Probe:   b.Probe,
		Capture: b.Capture,
	}
}

// Probe reads the version property of the Screenshot interface. Any failure
// means the portal is unusable.
func (b *Backend) Probe() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		b.log.Debug().Err(err).Msg("Session bus unavailable")
		return false
	}
	defer conn.Close()

	v, err := conn.Object(portalService, portalPath).GetProperty(screenshotIface + ".version")
	if err != nil {
		b.log.Debug().Err(err).Msg("Screenshot portal not available")
		return false
	}
	b.log.Debug().Interface("version", v.Value()).Msg("Screenshot portal available")
	return true
}

// Capture asks the portal for a full-screen screenshot. WINDOW mode is not
// offered by the portal; pointer inclusion is left to the portal.
func (b *Backend) Capture(ctx context.Context, target capture.Target) (*capture.Result, error) {
	if target.Mode == capture.ModeWindow {
		return nil, fmt.Errorf("%w: portal cannot capture a single window", capture.ErrUnsupportedMode)
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	token := handleToken()
	predicted := requestPath(conn.Names()[0], token)

	// Set up the response match BEFORE making the call so a fast portal
	// cannot answer before we listen.
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(predicted),
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, fmt.Errorf("failed to add match rule: %w", err)
	}
	responseChan := make(chan *dbus.Signal, 10)
	conn.Signal(responseChan)
	defer conn.RemoveSignal(responseChan)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
		"modal":        dbus.MakeVariant(true),
		"interactive":  dbus.MakeVariant(false),
	}

	var handle dbus.ObjectPath
	err = conn.Object(portalService, portalPath).
		CallWithContext(ctx, screenshotIface+".Screenshot", 0, "", options).
		Store(&handle)
	if err != nil {
		return nil, fmt.Errorf("Screenshot call failed: %w", err)
	}
	if handle != predicted {
		// Pre-0.9 portals pick their own path.
		if err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(handle),
			dbus.WithMatchInterface(requestIface),
			dbus.WithMatchMember("Response"),
		); err != nil {
			b.log.Warn().Err(err).Msg("Failed to add match rule for returned handle")
		}
	}

	b.log.Debug().Str("request_path", string(handle)).Msg("Waiting for Screenshot response")

	timeout := time.After(b.Timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for Screenshot response")
		case sig, ok := <-responseChan:
			if !ok {
				return nil, fmt.Errorf("session bus closed while waiting for response")
			}
			if sig.Name != requestIface+".Response" || (sig.Path != handle && sig.Path != predicted) {
				continue
			}
			uri, err := parseResponse(sig.Body)
			if err != nil {
				return nil, err
			}
			img, err := loadURI(uri)
			if err != nil {
				return nil, err
			}
			return &capture.Result{Image: img}, nil
		}
	}
}

// handleToken returns a request token unique to this call. Tokens must be
// valid object path elements, so dashes are dropped.
func handleToken() string {
	return "snapframe" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// requestPath predicts the Request object the portal will create for a
// caller's unique bus name and token.
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(fmt.Sprintf("%s/request/%s/%s", portalPath, sender, token))
}

// parseResponse returns the screenshot URI from a Response signal body.
func parseResponse(body []interface{}) (string, error) {
	if len(body) < 2 {
		return "", fmt.Errorf("invalid response")
	}
	code, ok := body[0].(uint32)
	if !ok {
		return "", fmt.Errorf("invalid response code type %T", body[0])
	}
	switch code {
	case responseSuccess:
	case responseCancelled:
		return "", capture.ErrCancelled
	default:
		return "", fmt.Errorf("portal request failed (code %d)", code)
	}

	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return "", fmt.Errorf("invalid response results type %T", body[1])
	}
	v, ok := results["uri"]
	if !ok {
		return "", errors.New("no uri in response")
	}
	uri, ok := v.Value().(string)
	if !ok || uri == "" {
		return "", errors.New("empty uri in response")
	}
	return uri, nil
}

// loadURI decodes the file the portal wrote and deletes it.
func loadURI(uri string) (*image.RGBA, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid screenshot uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("unsupported screenshot uri scheme %q", u.Scheme)
	}

	f, err := os.Open(u.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer os.Remove(u.Path)
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return capture.ToRGBA(img), nil
}
