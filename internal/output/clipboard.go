package output

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"golang.design/x/clipboard"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
)

var (
	clipboardOnce sync.Once
	clipboardErr  error
)

// writeClipboard takes clipboard ownership. The returned channel closes when
// another client replaces the contents; until then this process must stay
// alive to serve them.
func writeClipboard(data []byte) (<-chan struct{}, error) {
	clipboardOnce.Do(func() {
		clipboardErr = clipboard.Init()
	})
	if clipboardErr != nil {
		return nil, fmt.Errorf("clipboard unavailable: %w", clipboardErr)
	}
	return clipboard.Write(clipboard.FmtImage, data), nil
}

// ClipboardSink copies results to the system clipboard as PNG.
type ClipboardSink struct {
	// Put stores the encoded image and returns a channel closed once the
	// contents are replaced. Defaults to the system clipboard.
	Put func(data []byte) (<-chan struct{}, error)

	mu      sync.Mutex
	changed <-chan struct{}
}

// NewClipboardSink creates a sink on the system clipboard.
func NewClipboardSink() *ClipboardSink {
	return &ClipboardSink{Put: writeClipboard}
}

func (s *ClipboardSink) Name() string { return "clipboard" }

func (s *ClipboardSink) Write(ctx context.Context, res *capture.Result) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	changed, err := s.Put(buf.Bytes())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.changed = changed
	s.mu.Unlock()
	return "clipboard", nil
}

// Hold blocks while the last written image is still on the clipboard, until
// ctx ends. A short-lived process calls it before exiting so the contents
// outlive the capture. It returns nil at once when nothing was written.
func (s *ClipboardSink) Hold(ctx context.Context) error {
	s.mu.Lock()
	changed := s.changed
	s.mu.Unlock()
	if changed == nil {
		return nil
	}
	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
