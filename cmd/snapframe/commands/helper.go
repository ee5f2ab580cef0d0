package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SnapFrame/internal/app"
)

// selectHelperCmd is the child side of the selection bridge.
var selectHelperCmd = &cobra.Command{
	Use:    app.HelperCommand + " BACKGROUND RESULT",
	Short:  "Run one area selection and write the result file",
	Hidden: true,
	Args:   cobra.ExactArgs(2),
	RunE:   runSelectHelper,
}

func init() {
	rootCmd.AddCommand(selectHelperCmd)
}

func runSelectHelper(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.ServeSelectHelper(ctx, args[0], args[1])
}
