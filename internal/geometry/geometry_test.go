package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanNormalizes(t *testing.T) {
	cases := []struct {
		a, b Point
		want Rect
	}{
		{Point{100, 100}, Point{300, 400}, Rect{100, 100, 200, 300}},
		{Point{300, 400}, Point{100, 100}, Rect{100, 100, 200, 300}},
		{Point{300, 100}, Point{100, 400}, Rect{100, 100, 200, 300}},
		{Point{-20, 5}, Point{10, -5}, Rect{-20, -5, 30, 10}},
		{Point{7, 7}, Point{7, 7}, Rect{7, 7, 0, 0}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Span(tc.a, tc.b), "span %v -> %v", tc.a, tc.b)
	}
}

func TestUsableThreshold(t *testing.T) {
	assert.True(t, Rect{Width: 5, Height: 5}.Usable())
	assert.False(t, Rect{Width: 4, Height: 100}.Usable())
	assert.False(t, Rect{Width: 100, Height: 4}.Usable())
}

func TestMonitorTranslation(t *testing.T) {
	right := Monitor{X: 1920, Width: 1280, Height: 1024}
	assert.Equal(t, Point{1970, 50}, right.ToGlobal(Point{50, 50}))
	assert.Equal(t, Rect{-1910, 10, 1960, 40}, right.ToLocal(Rect{10, 10, 1960, 40}))
	assert.Equal(t, 1.0, right.Scale())
}

func TestDesktopBoundingBox(t *testing.T) {
	d := Desktop([]Monitor{
		{X: 0, Y: 0, Width: 1920, Height: 1080, ScaleFactor: 1},
		{X: 1920, Y: -200, Width: 2560, Height: 1440, ScaleFactor: 2},
	})
	assert.Equal(t, Monitor{X: 0, Y: -200, Width: 4480, Height: 1440, ScaleFactor: 2}, d)
}

func TestFrameScale(t *testing.T) {
	laptop := []Monitor{{Width: 1280, Height: 800, ScaleFactor: 2}}
	assert.Equal(t, 2.0, FrameScale(2560, laptop))
	assert.Equal(t, 1.0, FrameScale(1280, laptop))
	assert.Equal(t, 1.25, FrameScale(1600, laptop))
	assert.Equal(t, 1.0, FrameScale(0, laptop))
	assert.Equal(t, 1.0, FrameScale(2560, nil))
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect("10,20,300,400")
	require.NoError(t, err)
	assert.Equal(t, Rect{10, 20, 300, 400}, r)

	r, err = ParseRect("10,20 300x400")
	require.NoError(t, err)
	assert.Equal(t, Rect{10, 20, 300, 400}, r)

	_, err = ParseRect("10,20,300")
	assert.Error(t, err)
	_, err = ParseRect("a,b,c,d")
	assert.Error(t, err)
}
