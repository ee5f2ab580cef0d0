package capture

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// BackendID names one of the fixed capture strategies.
type BackendID string

const (
	BackendX11    BackendID = "X11"
	BackendShell  BackendID = "SHELL"
	BackendGrim   BackendID = "GRIM"
	BackendPortal BackendID = "PORTAL"
)

// KnownBackends lists every backend id in registration order.
var KnownBackends = []BackendID{BackendX11, BackendShell, BackendGrim, BackendPortal}

// ParseBackendID validates a backend name. The empty string is allowed and
// means "first available".
func ParseBackendID(s string) (BackendID, error) {
	id := BackendID(strings.ToUpper(strings.TrimSpace(s)))
	if id == "" {
		return "", nil
	}
	for _, known := range KnownBackends {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Descriptor ties a backend id to its probe and capture routine.
type Descriptor struct {
	ID    BackendID
	Label string

	// Probe reports whether the backend can run in this session. The
	// registry calls it at most once.
	Probe func() bool

	Capture CaptureFunc

	// PicksWindow is set for backends that need a client-side click to know
	// which window to grab.
	PicksWindow bool

	// ServerFlash is set for backends whose server already shows a flash.
	ServerFlash bool
}

type entry struct {
	desc      Descriptor
	once      sync.Once
	available bool
}

// Registry is the fixed, ordered set of backends for this process. Entries
// are never added or removed after construction.
type Registry struct {
	entries []*entry
	byID    map[BackendID]*entry
}

// NewRegistry builds a registry in the given order. Ids must be members of
// KnownBackends and unique.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[BackendID]*entry, len(descs))}
	for _, d := range descs {
		if _, err := ParseBackendID(string(d.ID)); err != nil || d.ID == "" {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, d.ID)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("backend %s registered twice", d.ID)
		}
		if d.Capture == nil {
			return nil, fmt.Errorf("backend %s has no capture function", d.ID)
		}
		e := &entry{desc: d}
		r.entries = append(r.entries, e)
		r.byID[d.ID] = e
	}
	return r, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id BackendID) (Descriptor, error) {
	e, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	return e.desc, nil
}

// IsAvailable runs the backend's probe the first time and returns the cached
// answer afterwards.
func (r *Registry) IsAvailable(id BackendID) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	return e.probe()
}

func (e *entry) probe() bool {
	e.once.Do(func() {
		if e.desc.Probe != nil {
			e.available = e.desc.Probe()
		}
		logger.WithComponent("capture-registry").Debug().
			Str("backend", string(e.desc.ID)).
			Bool("available", e.available).
			Msg("Probed capture backend")
	})
	return e.available
}

// IDs returns every registered id in registration order.
func (r *Registry) IDs() []BackendID {
	ids := make([]BackendID, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.desc.ID)
	}
	return ids
}

// AvailableIDs returns the ids whose probe succeeded, in registration order.
func (r *Registry) AvailableIDs() []BackendID {
	ids := make([]BackendID, 0, len(r.entries))
	for _, e := range r.entries {
		if e.probe() {
			ids = append(ids, e.desc.ID)
		}
	}
	return ids
}

// BackendStatus is a listing row for CLIs and the API.
type BackendStatus struct {
	ID        BackendID `json:"id"`
	Label     string    `json:"label"`
	Available bool      `json:"available"`
}

// Status lists every backend with its cached availability.
func (r *Registry) Status() []BackendStatus {
	out := make([]BackendStatus, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, BackendStatus{ID: e.desc.ID, Label: e.desc.Label, Available: e.probe()})
	}
	return out
}
