package cmd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a stored report as YAML",
	Long: `Export a stored crash report as a YAML document, including the
decoded stack lines. Useful for attaching reports to tickets or feeding
them to other tooling.

Examples:
  crashtrace export 4f1c2a9e
  crashtrace export 4f1c2a9e -o crash.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var exportOutput string

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"write to file instead of stdout")
}

func runExport(_ *cobra.Command, args []string) error {
	reportStore, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = reportStore.Close() }()

	r, err := reportStore.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	doc, err := report.FromEncoded(r.ID, r.CreatedAt, r.Kind, r.Message,
		r.Source, r.Signal, r.MemoryBytes, r.Encoded)
	if err != nil {
		return fmt.Errorf("report %s: %w", r.ID, err)
	}

	var buf bytes.Buffer
	if err := doc.ExportYAML(&buf); err != nil {
		return err
	}
	return writeOutput(exportOutput, buf.Bytes())
}
