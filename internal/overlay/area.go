package overlay

import "github.com/bryanchriswhite/SnapFrame/internal/geometry"

// Phase is the state of a selection session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseResolved
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseResolved:
		return "resolved"
	case PhaseAborted:
		return "aborted"
	}
	return "unknown"
}

// DamagePad is added around every invalidated rectangle so the border and
// label are repainted with it.
const DamagePad = 10

// AreaSession is the rubber-band state machine. It is fed global points and
// knows nothing about surfaces.
type AreaSession struct {
	phase  Phase
	anchor geometry.Point
	rect   geometry.Rect
}

// NewAreaSession returns a session in the idle phase.
func NewAreaSession() *AreaSession {
	return &AreaSession{}
}

// Phase returns the current phase.
func (s *AreaSession) Phase() Phase { return s.phase }

// Rect returns the current selection. It may be smaller than the minimum
// while dragging.
func (s *AreaSession) Rect() geometry.Rect { return s.rect }

// Done reports whether the session reached a terminal phase.
func (s *AreaSession) Done() bool {
	return s.phase == PhaseResolved || s.phase == PhaseAborted
}

// Result returns the resolved selection, or nil when aborted or unfinished.
func (s *AreaSession) Result() *geometry.Rect {
	if s.phase != PhaseResolved {
		return nil
	}
	r := s.rect
	return &r
}

// View returns what surfaces should draw.
func (s *AreaSession) View() View {
	return View{Selection: s.rect, Dragging: s.phase == PhaseDragging}
}

// Handle applies one event at global point p and returns the global region
// that must be redrawn. Events after a terminal phase are ignored.
func (s *AreaSession) Handle(kind EventKind, p geometry.Point) geometry.Rect {
	if s.Done() {
		return geometry.Rect{}
	}
	prev := s.rect

	switch kind {
	case Press:
		if s.phase != PhaseIdle {
			return geometry.Rect{}
		}
		s.phase = PhaseDragging
		s.anchor = p
		s.rect = geometry.Rect{X: p.X, Y: p.Y}
		return s.rect.Inset(DamagePad)

	case Motion:
		if s.phase != PhaseDragging {
			return geometry.Rect{}
		}
		s.rect = geometry.Span(s.anchor, p)

	case Release:
		if s.phase != PhaseDragging {
			return geometry.Rect{}
		}
		s.rect = geometry.Span(s.anchor, p)
		if s.rect.Usable() {
			s.phase = PhaseResolved
		} else {
			s.phase = PhaseAborted
		}

	case Cancel:
		dragging := s.phase == PhaseDragging
		s.phase = PhaseAborted
		if !dragging {
			return geometry.Rect{}
		}
	}

	return prev.Inset(DamagePad).Union(s.rect.Inset(DamagePad))
}

// WindowSession is the one-shot window picker state machine.
type WindowSession struct {
	phase Phase
	point geometry.Point
}

// Handle resolves on the first press and aborts on cancel.
func (s *WindowSession) Handle(kind EventKind, p geometry.Point) {
	if s.phase != PhaseIdle {
		return
	}
	switch kind {
	case Press:
		s.phase = PhaseResolved
		s.point = p
	case Cancel:
		s.phase = PhaseAborted
	}
}

// Done reports whether the session reached a terminal phase.
func (s *WindowSession) Done() bool { return s.phase != PhaseIdle }

// Result returns the clicked point, or nil when aborted or unfinished.
func (s *WindowSession) Result() *geometry.Point {
	if s.phase != PhaseResolved {
		return nil
	}
	p := s.point
	return &p
}
