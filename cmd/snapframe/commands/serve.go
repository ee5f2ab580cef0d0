package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SnapFrame/internal/api"
	"github.com/bryanchriswhite/SnapFrame/internal/app"
	"github.com/bryanchriswhite/SnapFrame/internal/logger"
	"github.com/bryanchriswhite/SnapFrame/internal/output"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SnapFrame control API",
	Long: `Start the local HTTP API.

POST /api/capture takes a screenshot and returns the image; /api/events
streams countdown and result events over a websocket.`,
	Example: `  # Start server on default port (8080)
  snapframe serve

  # Start server on custom port and keep a copy of every capture
  snapframe serve --port 9090 --save

  # Start with debug logging
  snapframe serve --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveSave bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "server port (default is 8080)")
	serveCmd.Flags().BoolVar(&serveSave, "save", false, "also write every capture to the output folder")

	v.BindPFlag("server_port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")
	log.Info().Str("path", configMgr.GetConfigPath()).Msg("Configuration loaded")

	a, err := app.New(cfg, app.Options{HelperArgs: helperArgs(cfg)})
	if err != nil {
		return err
	}
	defer a.Close()

	var sinks []output.Sink
	if serveSave {
		format, err := output.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}
		sinks = append(sinks, output.NewFileSink(cfg.Output.Folder, cfg.Output.FilenameTemplate, format))
	}
	if cfg.Output.Clipboard {
		sinks = append(sinks, output.NewClipboardSink())
	}

	for _, s := range a.Backends() {
		log.Info().Str("backend", string(s.ID)).Bool("available", s.Available).Msg("Capture backend")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(a, configMgr, sinks...)
	log.Info().Msgf("API: http://localhost:%d/api", cfg.ServerPort)
	if err := server.Start(ctx, cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("Shut down gracefully")
	return nil
}
