package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

type fakeBackend struct {
	id        BackendID
	available bool
	err       error
	width     int
	height    int
	calls     []Target
}

func (f *fakeBackend) descriptor(order *[]BackendID) Descriptor {
	return Descriptor{
		ID:    f.id,
		Label: string(f.id),
		Probe: func() bool { return f.available },
		Capture: func(_ context.Context, t Target) (*Result, error) {
			f.calls = append(f.calls, t)
			if order != nil {
				*order = append(*order, f.id)
			}
			if f.err != nil {
				return nil, f.err
			}
			return &Result{Image: gradient(f.width, f.height)}, nil
		},
	}
}

// gradient encodes each pixel's coordinates in its red and green channels so
// crops can be checked for position.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

type fakeAreas struct {
	rect  *geometry.Rect
	err   error
	calls int
}

func (f *fakeAreas) SelectArea(_ context.Context, _ *image.RGBA, _ geometry.Point) (*geometry.Rect, error) {
	f.calls++
	return f.rect, f.err
}

type fakePoints struct {
	point *geometry.Point
	calls int
}

func (f *fakePoints) SelectPoint(context.Context) (*geometry.Point, error) {
	f.calls++
	return f.point, nil
}

type fakeFlasher struct {
	rects []geometry.Rect
}

func (f *fakeFlasher) Flash(r geometry.Rect) {
	f.rects = append(f.rects, r)
}

var errBoom = errors.New("boom")

func newTestRegistry(t *testing.T, order *[]BackendID, backends ...*fakeBackend) *Registry {
	t.Helper()
	descs := make([]Descriptor, 0, len(backends))
	for _, b := range backends {
		descs = append(descs, b.descriptor(order))
	}
	reg, err := NewRegistry(descs...)
	require.NoError(t, err)
	return reg
}

func TestFallbackTriesAvailableBackendsInOrder(t *testing.T) {
	var order []BackendID
	x11 := &fakeBackend{id: BackendX11, available: true, err: errBoom}
	shell := &fakeBackend{id: BackendShell, available: false, width: 10, height: 10}
	grim := &fakeBackend{id: BackendGrim, available: true, err: errBoom}
	portal := &fakeBackend{id: BackendPortal, available: true, width: 10, height: 10}

	o := NewOrchestrator(newTestRegistry(t, &order, x11, shell, grim, portal), Options{})
	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendGrim})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, BackendPortal, res.Backend)
	assert.Equal(t, []BackendID{BackendGrim, BackendX11, BackendPortal}, order)
	assert.Empty(t, shell.calls)
}

func TestAllBackendsFailed(t *testing.T) {
	var order []BackendID
	o := NewOrchestrator(newTestRegistry(t, &order,
		&fakeBackend{id: BackendX11, available: true, err: errBoom},
		&fakeBackend{id: BackendShell, available: true, err: errBoom},
		&fakeBackend{id: BackendGrim, available: true, err: errBoom},
	), Options{})

	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendShell})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllBackendsFailed)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []BackendID{BackendShell, BackendX11, BackendGrim}, order)
}

func TestDisableFallbackNeverTriesOthers(t *testing.T) {
	var order []BackendID
	o := NewOrchestrator(newTestRegistry(t, &order,
		&fakeBackend{id: BackendX11, available: true, width: 4, height: 4},
		&fakeBackend{id: BackendGrim, available: true, err: errBoom},
		&fakeBackend{id: BackendPortal, available: true, width: 4, height: 4},
	), Options{})

	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendGrim, DisableFallback: true})
	assert.Nil(t, res)
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, BackendGrim, be.Backend)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrAllBackendsFailed)
	assert.Equal(t, []BackendID{BackendGrim}, order)
}

func TestUnknownRequestedBackendFallsBack(t *testing.T) {
	reg := newTestRegistry(t, nil, &fakeBackend{id: BackendGrim, available: true, width: 3, height: 3})
	o := NewOrchestrator(reg, Options{})

	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendX11})
	require.NoError(t, err)
	assert.Equal(t, BackendGrim, res.Backend)

	_, err = o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendX11, DisableFallback: true})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestEmptyBackendUsesFirstAvailable(t *testing.T) {
	var order []BackendID
	o := NewOrchestrator(newTestRegistry(t, &order,
		&fakeBackend{id: BackendX11, available: false},
		&fakeBackend{id: BackendShell, available: true, width: 2, height: 2},
	), Options{})

	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen})
	require.NoError(t, err)
	assert.Equal(t, BackendShell, res.Backend)
	assert.Equal(t, []BackendID{BackendShell}, order)
}

func TestNoAvailableBackends(t *testing.T) {
	o := NewOrchestrator(newTestRegistry(t, nil, &fakeBackend{id: BackendX11}), Options{})
	_, err := o.Capture(context.Background(), Request{Mode: ModeScreen})
	assert.ErrorIs(t, err, ErrAllBackendsFailed)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestAreaCaptureAfterFallback(t *testing.T) {
	x11 := &fakeBackend{id: BackendX11, available: true, err: errBoom}
	grim := &fakeBackend{id: BackendGrim, available: true, width: 1920, height: 1080}
	sel := geometry.Span(geometry.Point{X: 100, Y: 100}, geometry.Point{X: 300, Y: 400})
	areas := &fakeAreas{rect: &sel}
	flasher := &fakeFlasher{}

	o := NewOrchestrator(newTestRegistry(t, nil, x11, grim), Options{Areas: areas, Flasher: flasher})
	res, err := o.Capture(context.Background(), Request{Mode: ModeArea, Backend: BackendX11})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 200, res.Image.Bounds().Dx())
	assert.Equal(t, 300, res.Image.Bounds().Dy())
	assert.Equal(t, 100, res.OriginX)
	assert.Equal(t, 100, res.OriginY)
	assert.Equal(t, BackendGrim, res.Backend)
	assert.Equal(t, color.RGBA{R: 100, G: 100, A: 255}, res.Image.RGBAAt(0, 0))

	require.Len(t, grim.calls, 1)
	assert.True(t, grim.calls[0].Freeze())
	assert.Equal(t, []geometry.Rect{{X: 100, Y: 100, Width: 200, Height: 300}}, flasher.rects)
}

func TestAreaSelectionCancelled(t *testing.T) {
	flasher := &fakeFlasher{}
	o := NewOrchestrator(newTestRegistry(t, nil,
		&fakeBackend{id: BackendX11, available: true, width: 50, height: 50},
	), Options{Areas: &fakeAreas{}, Flasher: flasher})

	res, err := o.Capture(context.Background(), Request{Mode: ModeArea})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, flasher.rects)
}

func TestAreaPreKnownRectSkipsSelector(t *testing.T) {
	areas := &fakeAreas{}
	o := NewOrchestrator(newTestRegistry(t, nil,
		&fakeBackend{id: BackendX11, available: true, width: 50, height: 50},
	), Options{Areas: areas})

	res, err := o.Capture(context.Background(), Request{
		Mode: ModeArea,
		Rect: &geometry.Rect{X: 40, Y: 40, Width: 30, Height: 30},
	})
	require.NoError(t, err)
	assert.Zero(t, areas.calls)
	assert.Equal(t, geometry.Rect{X: 40, Y: 40, Width: 10, Height: 10}, res.Bounds())

	_, err = o.Capture(context.Background(), Request{Mode: ModeArea, Rect: &geometry.Rect{Width: 2, Height: 40}})
	assert.Error(t, err)
}

func TestBackendCancellationStopsFallback(t *testing.T) {
	var order []BackendID
	o := NewOrchestrator(newTestRegistry(t, &order,
		&fakeBackend{id: BackendX11, available: true, width: 2, height: 2},
		&fakeBackend{id: BackendPortal, available: true, err: ErrCancelled},
	), Options{})

	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendPortal})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []BackendID{BackendPortal}, order)
}

func TestWindowPickIsLazyAndShared(t *testing.T) {
	x11 := &fakeBackend{id: BackendX11, available: true, err: errBoom}
	shell := &fakeBackend{id: BackendShell, available: true, err: errBoom}
	grim := &fakeBackend{id: BackendGrim, available: true, width: 5, height: 5}

	descX11 := x11.descriptor(nil)
	descX11.PicksWindow = true
	descGrim := grim.descriptor(nil)
	descGrim.PicksWindow = true
	reg, err := NewRegistry(descX11, shell.descriptor(nil), descGrim)
	require.NoError(t, err)

	points := &fakePoints{point: &geometry.Point{X: 640, Y: 360}}
	o := NewOrchestrator(reg, Options{Points: points})

	res, err := o.Capture(context.Background(), Request{Mode: ModeWindow, Backend: BackendShell})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 1, points.calls)
	assert.Equal(t, geometry.Point{}, shell.calls[0].Click)
	assert.Equal(t, geometry.Point{X: 640, Y: 360}, x11.calls[0].Click)
	assert.Equal(t, geometry.Point{X: 640, Y: 360}, grim.calls[0].Click)
}

func TestWindowPickCancelled(t *testing.T) {
	x11 := &fakeBackend{id: BackendX11, available: true, width: 5, height: 5}
	desc := x11.descriptor(nil)
	desc.PicksWindow = true
	reg, err := NewRegistry(desc)
	require.NoError(t, err)

	o := NewOrchestrator(reg, Options{Points: &fakePoints{}})
	res, err := o.Capture(context.Background(), Request{Mode: ModeWindow})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, x11.calls)
}

func TestServerFlashSuppressesClientFlash(t *testing.T) {
	shell := &fakeBackend{id: BackendShell, available: true, width: 8, height: 6}
	desc := shell.descriptor(nil)
	desc.ServerFlash = true
	grim := &fakeBackend{id: BackendGrim, available: true, width: 8, height: 6}
	reg, err := NewRegistry(desc, grim.descriptor(nil))
	require.NoError(t, err)

	flasher := &fakeFlasher{}
	o := NewOrchestrator(reg, Options{Flasher: flasher})

	_, err = o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendShell})
	require.NoError(t, err)
	assert.Empty(t, flasher.rects)

	_, err = o.Capture(context.Background(), Request{Mode: ModeScreen, Backend: BackendGrim})
	require.NoError(t, err)
	assert.Equal(t, []geometry.Rect{{Width: 8, Height: 6}}, flasher.rects)
}

func TestUnsupportedMode(t *testing.T) {
	o := NewOrchestrator(newTestRegistry(t, nil), Options{})
	_, err := o.Capture(context.Background(), Request{Mode: "VIDEO"})
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func logicalMonitors(w, h int) func() ([]geometry.Monitor, error) {
	return func() ([]geometry.Monitor, error) {
		return []geometry.Monitor{{Width: w, Height: h, ScaleFactor: 2}}, nil
	}
}

func TestAreaCaptureOnHiDPIFrame(t *testing.T) {
	portal := &fakeBackend{id: BackendPortal, available: true, width: 200, height: 160}
	sel := geometry.Rect{X: 10, Y: 10, Width: 20, Height: 30}
	flasher := &fakeFlasher{}

	o := NewOrchestrator(newTestRegistry(t, nil, portal), Options{
		Areas:    &fakeAreas{rect: &sel},
		Flasher:  flasher,
		Monitors: logicalMonitors(100, 80),
	})
	res, err := o.Capture(context.Background(), Request{Mode: ModeArea})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, image.Rect(0, 0, 40, 60), res.Image.Bounds())
	assert.Equal(t, color.RGBA{R: 20, G: 20, A: 255}, res.Image.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 59, G: 79, A: 255}, res.Image.RGBAAt(39, 59))
	assert.Equal(t, 2.0, res.Scale)
	assert.Equal(t, sel, res.Bounds())
	assert.Equal(t, []geometry.Rect{sel}, flasher.rects)
}

func TestAreaRectRequestOnHiDPIFrame(t *testing.T) {
	grim := &fakeBackend{id: BackendGrim, available: true, width: 200, height: 160}
	o := NewOrchestrator(newTestRegistry(t, nil, grim), Options{Monitors: logicalMonitors(100, 80)})

	rect := geometry.Rect{X: 50, Y: 40, Width: 50, Height: 40}
	res, err := o.Capture(context.Background(), Request{Mode: ModeArea, Rect: &rect})

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, image.Rect(0, 0, 100, 80), res.Image.Bounds())
	assert.Equal(t, color.RGBA{R: 100, G: 80, A: 255}, res.Image.RGBAAt(0, 0))
	assert.Equal(t, rect, res.Bounds())
}

func TestScreenCaptureFlashesLogicalDesktop(t *testing.T) {
	portal := &fakeBackend{id: BackendPortal, available: true, width: 200, height: 160}
	flasher := &fakeFlasher{}
	o := NewOrchestrator(newTestRegistry(t, nil, portal), Options{Flasher: flasher, Monitors: logicalMonitors(100, 80)})

	res, err := o.Capture(context.Background(), Request{Mode: ModeScreen})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 200, res.Image.Bounds().Dx())
	assert.Equal(t, []geometry.Rect{{Width: 100, Height: 80}}, flasher.rects)
}

func TestUnknownMonitorLayoutCropsOneToOne(t *testing.T) {
	grim := &fakeBackend{id: BackendGrim, available: true, width: 200, height: 160}
	sel := geometry.Rect{X: 10, Y: 10, Width: 20, Height: 30}
	o := NewOrchestrator(newTestRegistry(t, nil, grim), Options{
		Areas:    &fakeAreas{rect: &sel},
		Monitors: func() ([]geometry.Monitor, error) { return nil, errBoom },
	})

	res, err := o.Capture(context.Background(), Request{Mode: ModeArea})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, image.Rect(0, 0, 20, 30), res.Image.Bounds())
	assert.Equal(t, sel, res.Bounds())
}
