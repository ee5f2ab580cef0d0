package output

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
)

func testResult() *capture.Result {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.SetRGBA(3, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	return &capture.Result{Image: img, OriginX: 100, OriginY: 100}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":      FormatPNG,
		"PNG":   FormatPNG,
		"jpg":   FormatJPEG,
		".jpeg": FormatJPEG,
		"bmp":   FormatBMP,
		"tif":   FormatTIFF,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("webp")
	assert.Error(t, err)

	assert.Equal(t, ".jpg", FormatJPEG.Ext())
	assert.Equal(t, ".tiff", FormatTIFF.Ext())
	assert.Equal(t, "image/png", FormatPNG.ContentType())
}

func TestEncodeFormats(t *testing.T) {
	img := testResult().Image

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, FormatBMP))
	decoded, err := bmp.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	buf.Reset()
	require.NoError(t, Encode(&buf, img, FormatTIFF))
	decoded, err = tiff.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	buf.Reset()
	require.NoError(t, Encode(&buf, img, FormatJPEG))
	assert.Equal(t, []byte{0xff, 0xd8}, buf.Bytes()[:2])

	assert.Error(t, Encode(&buf, img, Format("webp")))
}

func fixedSink(dir string) *FileSink {
	s := NewFileSink(dir, "", FormatPNG)
	s.Now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }
	return s
}

func TestFileSinkWritesTemplatedName(t *testing.T) {
	dir := t.TempDir()
	s := fixedSink(filepath.Join(dir, "shots"))

	path, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shots", "Screenshot from 2026-03-14 15-09-26.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, g, b, _ := img.At(3, 4).RGBA()
	assert.Equal(t, []uint32{200, 100, 50}, []uint32{r >> 8, g >> 8, b >> 8})
}

func TestFileSinkDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	s := fixedSink(dir)

	first, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	second, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(dir, "Screenshot from 2026-03-14 15-09-26 (2).png"), second)
}

func TestFileSinkCustomTemplateAndFormat(t *testing.T) {
	dir := t.TempDir()
	s := fixedSink(dir)
	s.Template = "shot_20060102/150405"
	s.Format = FormatJPEG

	assert.Equal(t, filepath.Join(dir, "shot_20260314-150926.jpg"), s.Destination(s.Now()))
}

func TestFileSinkExplicitPath(t *testing.T) {
	dir := t.TempDir()
	s := fixedSink(dir)
	s.Path = filepath.Join(dir, "out.png")

	path, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, s.Path, path)
	assert.FileExists(t, path)
}

func TestFileSinkStdout(t *testing.T) {
	var buf bytes.Buffer
	s := fixedSink(t.TempDir())
	s.Path = StdoutPath
	s.Stdout = &buf

	where, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "stdout", where)

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
}

func TestClipboardSink(t *testing.T) {
	var got []byte
	s := &ClipboardSink{Put: func(data []byte) (<-chan struct{}, error) {
		got = data
		return make(chan struct{}), nil
	}}

	where, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "clipboard", where)
	img, err := png.Decode(bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())

	s.Put = func([]byte) (<-chan struct{}, error) { return nil, errors.New("no clipboard") }
	_, err = s.Write(context.Background(), testResult())
	assert.Error(t, err)
}

func TestClipboardHold(t *testing.T) {
	assert.NoError(t, (&ClipboardSink{}).Hold(context.Background()), "nothing written")

	changed := make(chan struct{})
	s := &ClipboardSink{Put: func([]byte) (<-chan struct{}, error) { return changed, nil }}
	_, err := s.Write(context.Background(), testResult())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Hold(ctx), context.DeadlineExceeded)

	close(changed)
	assert.NoError(t, s.Hold(context.Background()))
}
