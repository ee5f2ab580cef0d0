package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SnapFrame/internal/app"
	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/config"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
	"github.com/bryanchriswhite/SnapFrame/internal/output"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Take a screenshot",
	Long: `Take a screenshot of the desktop, a window or an area.

The backend named by --backend is tried first; when it fails the other
available backends are tried in order unless --no-fallback is given.`,
	Example: `  # Whole desktop into the pictures folder
  snapframe capture

  # Drag an area after a three second countdown
  snapframe capture --mode area --delay 3

  # Click a window, include the pointer, copy to the clipboard
  snapframe capture --mode window --pointer --clipboard

  # Fixed area to stdout
  snapframe capture --rect 100,100,640,480 --output - > shot.png`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

var (
	captureRect   string
	captureOutput string
	captureHold   time.Duration
)

// defaultClipboardHold bounds how long a capture stays alive serving the
// clipboard after writing its files.
const defaultClipboardHold = 30 * time.Second

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.StringP("mode", "m", "", "capture mode (screen, window or area)")
	f.StringP("backend", "b", "", "preferred backend (x11, shell, grim or portal)")
	f.Bool("no-fallback", false, "fail instead of trying other backends")
	f.BoolP("pointer", "p", false, "include the mouse pointer")
	f.IntP("delay", "d", 0, "seconds to wait before capturing")
	f.Bool("clipboard", false, "also copy the image to the clipboard")
	f.String("format", "", "image format (png, jpeg, bmp or tiff)")
	f.StringVar(&captureRect, "rect", "", "capture this area instead of selecting one (x,y,w,h)")
	f.StringVarP(&captureOutput, "output", "o", "", "output file, - for stdout")
	f.DurationVar(&captureHold, "clipboard-hold", defaultClipboardHold, "how long to keep serving the clipboard before exiting (0 exits at once)")

	v.BindPFlag("capture.mode", f.Lookup("mode"))
	v.BindPFlag("capture.backend", f.Lookup("backend"))
	v.BindPFlag("capture.disable_fallback", f.Lookup("no-fallback"))
	v.BindPFlag("capture.include_pointer", f.Lookup("pointer"))
	v.BindPFlag("capture.delay_seconds", f.Lookup("delay"))
	v.BindPFlag("output.clipboard", f.Lookup("clipboard"))
	v.BindPFlag("output.format", f.Lookup("format"))
}

// buildRequest applies --rect to the configured defaults. A fixed rectangle
// implies area mode.
func buildRequest(a *app.App, rect string) (capture.Request, error) {
	req, err := a.DefaultRequest()
	if err != nil {
		return capture.Request{}, err
	}
	if rect != "" {
		r, err := geometry.ParseRect(rect)
		if err != nil {
			return capture.Request{}, err
		}
		req.Mode = capture.ModeArea
		req.Rect = &r
	}
	return req, nil
}

// buildSinks returns where a result goes. An explicit path with a known
// extension picks its own format.
func buildSinks(cfg config.Config, path string) ([]output.Sink, error) {
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	if path != "" && path != output.StdoutPath {
		if f, err := output.ParseFormat(filepath.Ext(path)); err == nil && filepath.Ext(path) != "" {
			format = f
		}
	}

	file := output.NewFileSink(cfg.Output.Folder, cfg.Output.FilenameTemplate, format)
	file.Path = path
	sinks := []output.Sink{file}
	if cfg.Output.Clipboard {
		sinks = append(sinks, output.NewClipboardSink())
	}
	return sinks, nil
}

// printStatus shows the countdown on stderr so stdout can carry the image.
func printStatus(s app.Status) {
	if s.Kind == app.StatusCountdown {
		fmt.Fprintln(os.Stderr, s.Message)
	}
}

func runCapture(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")

	a, err := app.New(cfg, app.Options{HelperArgs: helperArgs(cfg)})
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := buildRequest(a, captureRect)
	if err != nil {
		return err
	}
	sinks, err := buildSinks(cfg, captureOutput)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wait := time.Duration(cfg.Capture.DelaySeconds) * time.Second
	res, err := a.Capture(ctx, req, wait, printStatus)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	if res == nil {
		fmt.Fprintln(os.Stderr, "Capture cancelled")
		return nil
	}

	var failed error
	for _, sink := range sinks {
		where, err := sink.Write(ctx, res)
		if err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Msg("Failed to write screenshot")
			failed = err
			continue
		}
		if where != "stdout" {
			fmt.Fprintf(os.Stderr, "Saved to %s\n", where)
		}
	}
	if err := holdClipboard(ctx, sinks, captureHold); err != nil {
		log.Warn().Err(err).Msg("Clipboard hold ended early")
	}
	return failed
}

// holdClipboard keeps the process alive while it still owns the clipboard,
// until another client takes it over, ctx ends or hold elapses.
func holdClipboard(ctx context.Context, sinks []output.Sink, hold time.Duration) error {
	if hold <= 0 {
		return nil
	}
	for _, sink := range sinks {
		cb, ok := sink.(*output.ClipboardSink)
		if !ok {
			continue
		}
		fmt.Fprintf(os.Stderr, "Keeping the image on the clipboard for up to %s (Ctrl+C to exit)\n", hold)
		holdCtx, cancel := context.WithTimeout(ctx, hold)
		err := cb.Hold(holdCtx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
