package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/SnapFrame/internal/app"
	"github.com/bryanchriswhite/SnapFrame/internal/capture"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List capture backends",
	Long: `List every capture backend in fallback order and whether it can run in
this session.`,
	Example: `  # Table (default)
  snapframe backends

  # JSON
  snapframe backends --format json`,
	Args: cobra.NoArgs,
	RunE: runBackends,
}

var backendsFormat string

func init() {
	rootCmd.AddCommand(backendsCmd)

	backendsCmd.Flags().StringVarP(&backendsFormat, "format", "f", "table", "output format (table or json)")
}

func runBackends(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	status := a.Backends()
	switch backendsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	case "table":
		return printBackendsTable(os.Stdout, status)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", backendsFormat)
	}
}

func printBackendsTable(out io.Writer, status []capture.BackendStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tLABEL\tAVAILABLE")
	fmt.Fprintln(w, "--\t-----\t---------")

	for _, s := range status {
		available := "No"
		if s.Available {
			available = "Yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Label, available)
	}

	return w.Flush()
}
