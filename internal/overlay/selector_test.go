package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SnapFrame/internal/bridge"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

var dualHead = []geometry.Monitor{
	{X: 0, Y: 0, Width: 1920, Height: 1080, ScaleFactor: 1},
	{X: 1920, Y: 0, Width: 1920, Height: 1080, ScaleFactor: 1},
}

type fakeSurface struct {
	monitor  geometry.Monitor
	mu       sync.Mutex
	presents []image.Rectangle
}

func (s *fakeSurface) Monitor() geometry.Monitor { return s.monitor }

func (s *fakeSurface) Present(frame *image.RGBA, damage image.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presents = append(s.presents, damage)
	return nil
}

type fakeSession struct {
	surfaces []Surface
	events   chan Event
	closed   int
}

func (s *fakeSession) Surfaces() []Surface   { return s.surfaces }
func (s *fakeSession) Events() <-chan Event { return s.events }
func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeHost struct {
	monitors []geometry.Monitor
	events   []Event
	closeCh  bool

	opened  []SessionOptions
	session *fakeSession
}

func (h *fakeHost) Monitors() ([]geometry.Monitor, error) {
	return h.monitors, nil
}

func (h *fakeHost) Open(_ context.Context, opts SessionOptions) (Session, error) {
	h.opened = append(h.opened, opts)
	sess := &fakeSession{events: make(chan Event, len(h.events))}
	for _, m := range opts.Monitors {
		sess.surfaces = append(sess.surfaces, &fakeSurface{monitor: m})
	}
	for _, ev := range h.events {
		sess.events <- ev
	}
	if h.closeCh {
		close(sess.events)
	}
	h.session = sess
	return sess, nil
}

func (h *fakeHost) surface(i int) *fakeSurface {
	return h.session.surfaces[i].(*fakeSurface)
}

func TestAreaOverlaySpansMonitors(t *testing.T) {
	host := &fakeHost{
		monitors: dualHead,
		events: []Event{
			{Kind: Press, Surface: 0, X: 10, Y: 10},
			{Kind: Motion, Surface: 1, X: 30, Y: 30},
			{Kind: Release, Surface: 1, X: 50, Y: 50},
		},
	}
	a := NewAreaOverlay(host, false, 0)

	rect, err := a.SelectArea(context.Background(), whiteImage(3840, 1080), geometry.Point{})
	require.NoError(t, err)
	require.NotNil(t, rect)
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 1960, Height: 40}, *rect)

	require.Len(t, host.opened, 1)
	assert.Len(t, host.opened[0].Monitors, 2)
	assert.Equal(t, 1, host.session.closed)

	// Both surfaces get a full first frame, then the motion damages both.
	left, right := host.surface(0), host.surface(1)
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), left.presents[0])
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), right.presents[0])
	assert.Greater(t, len(left.presents), 1)
	require.Greater(t, len(right.presents), 1)
	assert.Equal(t, image.Rect(0, 0, 40, 40), right.presents[1])
}

func TestAreaOverlaySpanningUsesOneSurface(t *testing.T) {
	host := &fakeHost{
		monitors: dualHead,
		events: []Event{
			{Kind: Press, Surface: 0, X: 100, Y: 100},
			{Kind: Release, Surface: 0, X: 2000, Y: 500},
		},
	}
	a := NewAreaOverlay(host, true, 0)

	rect, err := a.SelectArea(context.Background(), whiteImage(3840, 1080), geometry.Point{})
	require.NoError(t, err)
	require.NotNil(t, rect)
	assert.Equal(t, geometry.Rect{X: 100, Y: 100, Width: 1900, Height: 400}, *rect)
	require.Len(t, host.opened[0].Monitors, 1)
	assert.Equal(t, 3840, host.opened[0].Monitors[0].Width)
}

func TestAreaOverlayCancelled(t *testing.T) {
	host := &fakeHost{
		monitors: dualHead[:1],
		events: []Event{
			{Kind: Press, Surface: 0, X: 10, Y: 10},
			{Kind: Motion, Surface: 0, X: 100, Y: 100},
			{Kind: Cancel},
		},
	}
	rect, err := NewAreaOverlay(host, false, 0).SelectArea(context.Background(), whiteImage(1920, 1080), geometry.Point{})
	require.NoError(t, err)
	assert.Nil(t, rect)
	assert.Equal(t, 1, host.session.closed)
}

func TestAreaOverlayTinyDragIsCancel(t *testing.T) {
	host := &fakeHost{
		monitors: dualHead[:1],
		events: []Event{
			{Kind: Press, Surface: 0, X: 10, Y: 10},
			{Kind: Release, Surface: 0, X: 12, Y: 300},
		},
	}
	rect, err := NewAreaOverlay(host, false, 0).SelectArea(context.Background(), whiteImage(1920, 1080), geometry.Point{})
	require.NoError(t, err)
	assert.Nil(t, rect)
}

func TestAreaOverlaySessionEnded(t *testing.T) {
	host := &fakeHost{monitors: dualHead[:1], closeCh: true}
	_, err := NewAreaOverlay(host, false, 0).SelectArea(context.Background(), whiteImage(1920, 1080), geometry.Point{})
	assert.ErrorIs(t, err, errSessionEnded)
	assert.Equal(t, 1, host.session.closed)
}

func TestAreaOverlayContextCancelled(t *testing.T) {
	host := &fakeHost{monitors: dualHead[:1]}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAreaOverlay(host, false, 0).SelectArea(ctx, whiteImage(1920, 1080), geometry.Point{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, host.session.closed)
}

func TestAreaOverlayNoMonitors(t *testing.T) {
	_, err := NewAreaOverlay(&fakeHost{}, false, 0).SelectArea(context.Background(), nil, geometry.Point{})
	assert.Error(t, err)
}

func TestWindowPickerReturnsGlobalPoint(t *testing.T) {
	host := &fakeHost{
		monitors: dualHead,
		events: []Event{
			{Kind: Motion, Surface: 1, X: 1, Y: 1},
			{Kind: Press, Surface: 1, X: 5, Y: 7},
		},
	}
	p, err := NewWindowPicker(host, 0).SelectPoint(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, geometry.Point{X: 1925, Y: 7}, *p)
	assert.Equal(t, 4, host.opened[0].Border)
	assert.Equal(t, 1, host.session.closed)
}

func TestWindowPickerCancelled(t *testing.T) {
	host := &fakeHost{monitors: dualHead, events: []Event{{Kind: Cancel}}}
	p, err := NewWindowPicker(host, 0).SelectPoint(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBackgroundScale(t *testing.T) {
	assert.Equal(t, 1.0, backgroundScale(whiteImage(3840, 10), dualHead))
	assert.Equal(t, 2.0, backgroundScale(whiteImage(7680, 10), dualHead))
	assert.Equal(t, 1.0, backgroundScale(nil, dualHead))
}

type fakeBridge struct {
	rect  *geometry.Rect
	err   error
	calls int
}

func (b *fakeBridge) SelectArea(context.Context, *image.RGBA) (*geometry.Rect, error) {
	b.calls++
	return b.rect, b.err
}

func TestRouterPrefersBridge(t *testing.T) {
	host := &fakeHost{monitors: dualHead}
	want := &geometry.Rect{X: 1, Y: 2, Width: 30, Height: 40}
	b := &fakeBridge{rect: want}
	r := &Router{Direct: NewAreaOverlay(host, false, 0), Bridge: b, UseBridge: true}

	rect, err := r.SelectArea(context.Background(), whiteImage(10, 10), geometry.Point{})
	require.NoError(t, err)
	assert.Equal(t, want, rect)
	assert.Empty(t, host.opened)
}

func TestRouterFallsBackWhenHelperFails(t *testing.T) {
	host := &fakeHost{
		monitors: dualHead[:1],
		events: []Event{
			{Kind: Press, Surface: 0, X: 10, Y: 10},
			{Kind: Release, Surface: 0, X: 60, Y: 60},
		},
	}
	b := &fakeBridge{err: fmt.Errorf("%w: exit status 2", bridge.ErrSubprocessFailed)}
	r := NewRouter(NewAreaOverlay(host, false, 0), nil, b, false)
	r.UseBridge = true

	rect, err := r.SelectArea(context.Background(), whiteImage(1920, 1080), geometry.Point{})
	require.NoError(t, err)
	assert.Equal(t, &geometry.Rect{X: 10, Y: 10, Width: 50, Height: 50}, rect)
	assert.Equal(t, 1, b.calls)
	assert.Len(t, host.opened, 1)
}

func TestRouterPropagatesOtherBridgeErrors(t *testing.T) {
	host := &fakeHost{monitors: dualHead}
	b := &fakeBridge{err: context.Canceled}
	r := &Router{Direct: NewAreaOverlay(host, false, 0), Bridge: b, UseBridge: true}

	_, err := r.SelectArea(context.Background(), whiteImage(10, 10), geometry.Point{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, host.opened)
}

func TestNewRouterBridgePolicy(t *testing.T) {
	b := &fakeBridge{}

	t.Setenv("XDG_SESSION_TYPE", "wayland")
	t.Setenv(bridge.DisableEnv, "")
	t.Setenv(bridge.RenderBackendEnv, "")
	assert.True(t, NewRouter(nil, nil, b, false).UseBridge)
	assert.False(t, NewRouter(nil, nil, b, true).UseBridge)
	assert.False(t, NewRouter(nil, nil, nil, false).UseBridge)

	t.Setenv(bridge.DisableEnv, "1")
	assert.False(t, NewRouter(nil, nil, b, false).UseBridge)

	t.Setenv(bridge.DisableEnv, "")
	t.Setenv(bridge.RenderBackendEnv, "x11")
	assert.False(t, NewRouter(nil, nil, b, false).UseBridge)

	t.Setenv(bridge.RenderBackendEnv, "")
	t.Setenv("XDG_SESSION_TYPE", "x11")
	assert.False(t, NewRouter(nil, nil, b, false).UseBridge)
}

func TestRenderMode(t *testing.T) {
	m, err := ParseRenderMode("")
	require.NoError(t, err)
	assert.Equal(t, RenderAuto, m)

	m, err = ParseRenderMode("Spanning")
	require.NoError(t, err)
	assert.Equal(t, RenderSpanning, m)

	_, err = ParseRenderMode("tiled")
	assert.Error(t, err)

	t.Setenv(bridge.RenderBackendEnv, "")
	assert.False(t, RenderAuto.Spanning())
	assert.True(t, RenderSpanning.Spanning())
	t.Setenv(bridge.RenderBackendEnv, "x11")
	assert.True(t, RenderAuto.Spanning())
	assert.False(t, RenderPerMonitor.Spanning())
}
