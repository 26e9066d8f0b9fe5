package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/symbol"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/sysinfo"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Dump the cached symbol table",
	Long: `Build the nm symbol table for an executable and print its entries,
sorted by address. The same table backs address resolution, so this is
the quickest way to check why an address fails to resolve.

Examples:
  crashtrace symbols --limit 20
  crashtrace symbols --exe ./build/worker --match main.`,
	RunE: runSymbols,
}

var (
	symbolsExe   string
	symbolsMatch string
	symbolsLimit int
)

func init() {
	rootCmd.AddCommand(symbolsCmd)

	symbolsCmd.Flags().StringVar(&symbolsExe, "exe", "",
		"executable image to dump (default: the current process)")
	symbolsCmd.Flags().StringVar(&symbolsMatch, "match", "",
		"only print symbols whose name contains this substring")
	symbolsCmd.Flags().IntVar(&symbolsLimit, "limit", 0,
		"maximum entries to print (0 = all)")
}

func runSymbols(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	exe := symbolsExe
	if exe == "" {
		exe = symbol.Executable()
	}

	table := symbol.NewTable(exe, cfg.Symbols.NMPath, sysinfo.Exec)
	if err := table.EnsureLoaded(); err != nil {
		return fmt.Errorf("loading symbol table for %s: %w", exe, err)
	}

	printed := 0
	for _, e := range table.Entries() {
		name := e.Name
		if cfg.Symbols.Demangle {
			name = symbol.Demangle(name)
		}
		if symbolsMatch != "" && !strings.Contains(name, symbolsMatch) {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%016x %c %s\n", e.Addr, e.Kind, name)
		printed++
		if symbolsLimit > 0 && printed >= symbolsLimit {
			break
		}
	}
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d symbols\n", printed, table.Len())
	}
	return nil
}
