package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/output"
	"github.com/bryanchriswhite/SnapFrame/internal/overlay"
)

// Config is the whole persisted configuration.
type Config struct {
	Capture   CaptureConfig   `json:"capture" yaml:"capture"`
	Selection SelectionConfig `json:"selection" yaml:"selection"`
	Output    OutputConfig    `json:"output" yaml:"output"`

	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty"`
}

// CaptureConfig holds the defaults of a capture request.
type CaptureConfig struct {
	// Backend is a backend id; empty picks the first available one.
	Backend         string `json:"backend" yaml:"backend"`
	Mode            string `json:"mode" yaml:"mode"`
	IncludePointer  bool   `json:"include_pointer" yaml:"include_pointer"`
	DisableFallback bool   `json:"disable_fallback" yaml:"disable_fallback"`
	DelaySeconds    int    `json:"delay_seconds" yaml:"delay_seconds"`
	Flash           bool   `json:"flash" yaml:"flash"`
}

// SelectionConfig tunes the selection overlays.
type SelectionConfig struct {
	DisableBridge bool   `json:"disable_bridge" yaml:"disable_bridge"`
	RenderMode    string `json:"render_mode" yaml:"render_mode"`
	GraceWaitMs   int    `json:"grace_wait_ms" yaml:"grace_wait_ms"`
}

// OutputConfig says where results go.
type OutputConfig struct {
	Folder           string `json:"folder" yaml:"folder"`
	FilenameTemplate string `json:"filename_template" yaml:"filename_template"`
	Format           string `json:"format" yaml:"format"`
	Clipboard        bool   `json:"clipboard" yaml:"clipboard"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Capture: CaptureConfig{
			Mode:  "screen",
			Flash: true,
		},
		Selection: SelectionConfig{
			RenderMode:  string(overlay.RenderAuto),
			GraceWaitMs: int(overlay.DefaultGraceWait.Milliseconds()),
		},
		Output: OutputConfig{
			Folder:           defaultFolder(),
			FilenameTemplate: output.DefaultTemplate,
			Format:           string(output.FormatPNG),
		},
		ServerPort: 8080,
		LogLevel:   "info",
	}
}

func defaultFolder() string {
	if dir := os.Getenv("XDG_PICTURES_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Pictures")
}

// Validate checks every enumerated value.
func (c *Config) Validate() error {
	if _, err := capture.ParseBackendID(c.Capture.Backend); err != nil {
		return fmt.Errorf("capture.backend: %w", err)
	}
	if _, err := capture.ParseMode(c.Capture.Mode); err != nil {
		return fmt.Errorf("capture.mode: %w", err)
	}
	if c.Capture.DelaySeconds < 0 {
		return fmt.Errorf("capture.delay_seconds: must not be negative")
	}
	if _, err := overlay.ParseRenderMode(c.Selection.RenderMode); err != nil {
		return fmt.Errorf("selection.render_mode: %w", err)
	}
	if c.Selection.GraceWaitMs < 0 {
		return fmt.Errorf("selection.grace_wait_ms: must not be negative")
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port: %d out of range", c.ServerPort)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: invalid level %q (use: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// field reads and writes one dotted key.
type field struct {
	get func(c *Config) any
	set func(c *Config, value string) error
}

func stringField(ptr func(c *Config) *string) field {
	return field{
		get: func(c *Config) any { return *ptr(c) },
		set: func(c *Config, v string) error {
			*ptr(c) = v
			return nil
		},
	}
}

func boolField(ptr func(c *Config) *bool) field {
	return field{
		get: func(c *Config) any { return *ptr(c) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean: %s (use: true or false)", v)
			}
			*ptr(c) = b
			return nil
		},
	}
}

func intField(ptr func(c *Config) *int) field {
	return field{
		get: func(c *Config) any { return *ptr(c) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*ptr(c) = n
			return nil
		},
	}
}

var fields = map[string]field{
	"capture.backend":          stringField(func(c *Config) *string { return &c.Capture.Backend }),
	"capture.mode":             stringField(func(c *Config) *string { return &c.Capture.Mode }),
	"capture.include_pointer":  boolField(func(c *Config) *bool { return &c.Capture.IncludePointer }),
	"capture.disable_fallback": boolField(func(c *Config) *bool { return &c.Capture.DisableFallback }),
	"capture.delay_seconds":    intField(func(c *Config) *int { return &c.Capture.DelaySeconds }),
	"capture.flash":            boolField(func(c *Config) *bool { return &c.Capture.Flash }),
	"selection.disable_bridge": boolField(func(c *Config) *bool { return &c.Selection.DisableBridge }),
	"selection.render_mode":    stringField(func(c *Config) *string { return &c.Selection.RenderMode }),
	"selection.grace_wait_ms":  intField(func(c *Config) *int { return &c.Selection.GraceWaitMs }),
	"output.folder":            stringField(func(c *Config) *string { return &c.Output.Folder }),
	"output.filename_template": stringField(func(c *Config) *string { return &c.Output.FilenameTemplate }),
	"output.format":            stringField(func(c *Config) *string { return &c.Output.Format }),
	"output.clipboard":         boolField(func(c *Config) *bool { return &c.Output.Clipboard }),
	"server_port":              intField(func(c *Config) *int { return &c.ServerPort }),
	"log_level":                stringField(func(c *Config) *string { return &c.LogLevel }),
	"log_pretty":               boolField(func(c *Config) *bool { return &c.LogPretty }),
}

// Keys lists every settable key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key.
func (c *Config) Get(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	return f.get(c), nil
}

// Set parses value into a dotted key and validates the result. c is left
// unchanged on error.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	next := *c
	if err := f.set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
