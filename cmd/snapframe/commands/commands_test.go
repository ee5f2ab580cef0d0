package commands

import (
	"bytes"
	"context"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/config"
	"github.com/bryanchriswhite/SnapFrame/internal/output"
)

func TestBuildSinks(t *testing.T) {
	cfg := config.Defaults()

	sinks, err := buildSinks(cfg, "")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	file := sinks[0].(*output.FileSink)
	assert.Equal(t, output.FormatPNG, file.Format)
	assert.Equal(t, cfg.Output.Folder, file.Folder)

	sinks, err = buildSinks(cfg, "/tmp/shot.jpg")
	require.NoError(t, err)
	assert.Equal(t, output.FormatJPEG, sinks[0].(*output.FileSink).Format)

	sinks, err = buildSinks(cfg, "/tmp/shot.unknown")
	require.NoError(t, err)
	assert.Equal(t, output.FormatPNG, sinks[0].(*output.FileSink).Format)

	cfg.Output.Clipboard = true
	sinks, err = buildSinks(cfg, output.StdoutPath)
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "clipboard", sinks[1].Name())
}

func TestHelperArgs(t *testing.T) {
	old := cfgFile
	t.Cleanup(func() { cfgFile = old })

	cfg := config.Defaults()
	cfg.LogLevel = "debug"
	cfg.LogPretty = true
	cfgFile = "/etc/snapframe.yaml"
	assert.Equal(t, []string{"--config", "/etc/snapframe.yaml", "--log-level", "debug", "--log-pretty"}, helperArgs(cfg))

	cfgFile = ""
	cfg.LogPretty = false
	assert.Equal(t, []string{"--log-level", "debug"}, helperArgs(cfg))
}

func TestHoldClipboard(t *testing.T) {
	res := &capture.Result{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	open := make(chan struct{})
	cb := &output.ClipboardSink{Put: func([]byte) (<-chan struct{}, error) { return open, nil }}
	_, err := cb.Write(context.Background(), res)
	require.NoError(t, err)

	start := time.Now()
	assert.NoError(t, holdClipboard(context.Background(), []output.Sink{cb}, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.NoError(t, holdClipboard(context.Background(), []output.Sink{cb}, 0))

	close(open)
	done := make(chan error, 1)
	go func() { done <- holdClipboard(context.Background(), []output.Sink{cb}, time.Hour) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("hold outlived the clipboard contents")
	}
}

func TestPrintBackendsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBackendsTable(&buf, []capture.BackendStatus{
		{ID: capture.BackendX11, Label: "X11", Available: true},
		{ID: capture.BackendGrim, Label: "grim", Available: false},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"X11", "X11", "Yes"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"GRIM", "grim", "No"}, strings.Fields(lines[3]))
}

func TestWriteConfig(t *testing.T) {
	cfg := config.Defaults()

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, cfg, "yaml"))
	assert.Contains(t, buf.String(), "render_mode: auto")

	buf.Reset()
	require.NoError(t, writeConfig(&buf, cfg, "json"))
	assert.Contains(t, buf.String(), `"grace_wait_ms": 200`)

	assert.Error(t, writeConfig(&buf, cfg, "toml"))
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"capture", "backends", "serve", "config", "select-helper"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	helper, _, _ := rootCmd.Find([]string{"select-helper"})
	assert.True(t, helper.Hidden)
}
