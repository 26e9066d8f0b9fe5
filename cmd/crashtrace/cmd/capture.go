package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/wire"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the current call stacks",
	Long: `Capture resolved call stacks of the running crashtrace process.

With --scope local only the calling goroutine is captured; --scope all
snapshots every goroutine and aggregates the stacks into a prefix tree
where shared frames appear once with a contributor count.

Examples:
  # Human-readable capture of all goroutines
  crashtrace capture --scope all

  # Binary wire payload, e.g. to feed into 'crashtrace decode'
  crashtrace capture --format wire --output stacks.bin`,
	RunE: runCapture,
}

var (
	captureScope  string
	captureFormat string
	captureOutput string
)

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVar(&captureScope, "scope", "",
		"capture scope: local or all (default from config)")
	captureCmd.Flags().StringVar(&captureFormat, "format", "text",
		"output format: text or wire")
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "",
		"output file (default stdout)")
}

func runCapture(_ *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	scope := cfg.Capture.Scope
	if captureScope != "" {
		scope = captureScope
	}

	capturer := newCapturer(cfg)

	var data []byte
	switch scope {
	case "local":
		seq := capturer.Capture()
		switch captureFormat {
		case "text":
			data = []byte(seq.String())
		case "wire":
			data = wire.PackFrames(seq)
		default:
			return fmt.Errorf("unknown format %q, want text or wire", captureFormat)
		}
	case "all", "distributed", "global":
		tree := capturer.CaptureAll()
		switch captureFormat {
		case "text":
			data = []byte(tree.String())
		case "wire":
			data = wire.PackTree(tree)
		default:
			return fmt.Errorf("unknown format %q, want text or wire", captureFormat)
		}
	default:
		return fmt.Errorf("unknown scope %q, want local or all", scope)
	}

	return writeOutput(captureOutput, data)
}
