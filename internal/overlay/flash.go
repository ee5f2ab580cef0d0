package overlay

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

const (
	FlashDuration = 500 * time.Millisecond
	FlashFPS      = 60
)

// FlashOpacity is the cubic ease-out fade for progress t in [0,1].
func FlashOpacity(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return math.Pow(1-t, 3)
}

// Flash shows a white window over a captured rectangle and fades it out.
// Failures are logged and swallowed.
type Flash struct {
	Host     FlashHost
	Duration time.Duration
	FPS      int
	Sleep    func(time.Duration)

	running sync.WaitGroup
	log     *zerolog.Logger
}

// NewFlash creates a flash with the default timing.
func NewFlash(host FlashHost) *Flash {
	return &Flash{
		Host:     host,
		Duration: FlashDuration,
		FPS:      FlashFPS,
		Sleep:    time.Sleep,
		log:      logger.WithComponent("flash"),
	}
}

// Flash starts the animation in the background and returns immediately.
func (f *Flash) Flash(r geometry.Rect) {
	f.running.Add(1)
	go func() {
		defer f.running.Done()
		f.Run(r)
	}()
}

// Wait blocks until every animation started by Flash has finished.
func (f *Flash) Wait() {
	f.running.Wait()
}

// Run plays the animation and returns once the window is destroyed.
func (f *Flash) Run(r geometry.Rect) {
	if r.Empty() {
		return
	}
	win, err := f.Host.OpenFlash(r)
	if err != nil {
		f.log.Debug().Err(err).Msg("Flash unavailable")
		return
	}
	defer func() {
		if err := win.Close(); err != nil {
			f.log.Debug().Err(err).Msg("Failed to close flash window")
		}
	}()

	fps := f.FPS
	if fps <= 0 {
		fps = FlashFPS
	}
	for _, opacity := range FlashFrames(f.Duration, fps) {
		if err := win.SetOpacity(opacity); err != nil {
			f.log.Debug().Err(err).Msg("Failed to set flash opacity")
			return
		}
		f.Sleep(time.Second / time.Duration(fps))
	}
}

// FlashFrames returns the opacity of every frame of a fade, ending at 0.
func FlashFrames(duration time.Duration, fps int) []float64 {
	if fps <= 0 {
		fps = FlashFPS
	}
	n := int(math.Ceil(duration.Seconds() * float64(fps)))
	if n < 1 {
		n = 1
	}
	frames := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		frames[i] = FlashOpacity(float64(i) / float64(n))
	}
	return frames
}
