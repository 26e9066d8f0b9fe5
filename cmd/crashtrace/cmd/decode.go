package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/wire"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [FILE]",
	Short: "Decode a wire-encoded stack payload",
	Long: `Decode a binary stack payload produced by 'crashtrace capture
--format wire' (or read from a stored report) and print it as text.
Both payload kinds are handled: a single frame sequence and an
aggregated multi-stack tree.

Reads from stdin when FILE is omitted or "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
	}

	if tree, err := wire.UnpackTree(data); err == nil {
		return tree.Render(cmd.OutOrStdout())
	} else if !errors.Is(err, wire.ErrKind) {
		return fmt.Errorf("decoding payload: %w", err)
	}

	seq, err := wire.UnpackFrames(data)
	if err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), seq.String())
	return nil
}
