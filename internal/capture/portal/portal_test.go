package portal

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
)

func TestRequestPath(t *testing.T) {
	assert.Equal(t,
		dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/snapframeabc"),
		requestPath(":1.42", "snapframeabc"))
}

func TestHandleTokenIsPathSafe(t *testing.T) {
	a, b := handleToken(), handleToken()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "snapframe"))
	assert.NotContains(t, a, "-")
	assert.True(t, requestPath(":1.1", a).IsValid())
}

func TestParseResponse(t *testing.T) {
	uri, err := parseResponse([]interface{}{uint32(0), map[string]dbus.Variant{
		"uri": dbus.MakeVariant("file:///tmp/Screenshot.png"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/Screenshot.png", uri)

	_, err = parseResponse([]interface{}{uint32(1), map[string]dbus.Variant{}})
	assert.ErrorIs(t, err, capture.ErrCancelled)

	_, err = parseResponse([]interface{}{uint32(2), map[string]dbus.Variant{}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, capture.ErrCancelled)

	_, err = parseResponse([]interface{}{uint32(0), map[string]dbus.Variant{}})
	assert.Error(t, err)

	_, err = parseResponse([]interface{}{uint32(0)})
	assert.Error(t, err)
}

func TestLoadURIDecodesAndDeletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Screenshot.png")
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(2, 1, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := loadURI("file://" + path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, color.RGBA{R: 9, G: 8, B: 7, A: 255}, img.RGBAAt(2, 1))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = loadURI("https://example.com/a.png")
	assert.Error(t, err)
}
