package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve ADDRESS...",
	Short: "Resolve raw addresses to symbols",
	Long: `Resolve hexadecimal return addresses to function, file and line.

The runtime is consulted first, then the cached nm symbol table of the
executable, then addr2line for missing file/line information. Addresses
that cannot be attributed are printed with the raw address only.

Examples:
  crashtrace resolve 0x45f2a0 0x47c113
  crashtrace resolve --exe ./build/worker 0x401150`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

var resolveExe string

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveExe, "exe", "",
		"executable image to resolve against (default: the current process)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := newResolver(cfg, resolveExe)

	for _, arg := range args {
		raw := strings.TrimPrefix(strings.ToLower(arg), "0x")
		addr, err := strconv.ParseUint(raw, 16, 64)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", arg, err)
		}
		frame := resolver.Resolve(uintptr(addr))
		fmt.Fprintln(cmd.OutOrStdout(), frame.String())
	}
	return nil
}
