package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
)

// DefaultTemplate names files after the capture time, as a Go time layout.
const DefaultTemplate = "Screenshot from 2006-01-02 15-04-05"

// StdoutPath makes a FileSink write to standard output.
const StdoutPath = "-"

// FileSink writes results to disk.
type FileSink struct {
	// Path is an explicit destination. Empty means Folder plus the
	// template; "-" means Stdout.
	Path     string
	Folder   string
	Template string
	Format   Format

	Now    func() time.Time
	Stdout io.Writer

	log *zerolog.Logger
}

// NewFileSink creates a sink writing templated names into folder.
func NewFileSink(folder, template string, format Format) *FileSink {
	return &FileSink{
		Folder:   folder,
		Template: template,
		Format:   format,
		Now:      time.Now,
		Stdout:   os.Stdout,
		log:      logger.WithComponent("output"),
	}
}

func (s *FileSink) Name() string { return "file" }

// Destination returns the path a result taken at t would be written to.
func (s *FileSink) Destination(t time.Time) string {
	if s.Path != "" {
		return expandHome(s.Path)
	}
	tmpl := s.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	name := strings.ReplaceAll(t.Format(tmpl), string(filepath.Separator), "-")
	return filepath.Join(expandHome(s.Folder), name+s.Format.Ext())
}

func (s *FileSink) Write(ctx context.Context, res *capture.Result) (string, error) {
	if s.Path == StdoutPath {
		if err := Encode(s.Stdout, res.Image, s.Format); err != nil {
			return "", fmt.Errorf("failed to write image to stdout: %w", err)
		}
		return "stdout", nil
	}

	path := unique(s.Destination(s.Now()))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Encode(f, res.Image, s.Format); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.log.Info().
		Str("path", path).
		Str("format", string(s.Format)).
		Int("width", res.Image.Bounds().Dx()).
		Int("height", res.Image.Bounds().Dy()).
		Msg("Screenshot saved")
	return path, nil
}

// unique appends " (n)" before the extension until path does not exist.
func unique(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
