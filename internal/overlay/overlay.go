// Package overlay implements the interactive selection overlays shown before
// a capture: rubber-band area selection, the window picker, and the
// post-capture flash. Drawing happens into plain RGBA frames; a Host puts
// them on screen and feeds input back as events.
package overlay

import (
	"context"
	"image"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// EventKind classifies input delivered by a session.
type EventKind int

const (
	Press EventKind = iota
	Release
	Motion
	// Cancel is the dedicated cancel key (Escape).
	Cancel
)

func (k EventKind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	case Motion:
		return "motion"
	case Cancel:
		return "cancel"
	}
	return "unknown"
}

// Event is one input event. X and Y are local to the surface at index
// Surface.
type Event struct {
	Kind    EventKind
	Surface int
	X, Y    int
}

// Surface is one overlay window anchored to a monitor.
type Surface interface {
	Monitor() geometry.Monitor
	// Present shows frame, updating at least the damaged region. frame is
	// in surface-local coordinates.
	Present(frame *image.RGBA, damage image.Rectangle) error
}

// Session is an open set of overlay surfaces holding an exclusive input grab.
// Closing it destroys the surfaces and releases the grab.
type Session interface {
	Surfaces() []Surface
	Events() <-chan Event
	Close() error
}

// SessionOptions describes the surfaces to open.
type SessionOptions struct {
	Monitors []geometry.Monitor
	Title    string

	// Border, when positive, shapes every surface to a ring of that many
	// pixels along its edges.
	Border int
}

// Host opens overlay sessions on a display server.
type Host interface {
	Monitors() ([]geometry.Monitor, error)
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

// FlashWindow is a borderless window whose opacity can be changed.
type FlashWindow interface {
	SetOpacity(opacity float64) error
	Close() error
}

// FlashHost opens flash windows.
type FlashHost interface {
	OpenFlash(r geometry.Rect) (FlashWindow, error)
}
