package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/config"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/symbol"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/sysinfo"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Verify capture, resolution and the termination pipeline",
	Long: `Run the diagnostic machinery against the crashtrace process itself:
build the symbol table, capture and resolve a stack, and drive the
termination pipeline in throw mode. Exits non-zero when any stage
fails, which makes it usable as an install check.`,
	RunE: runSelftest,
}

var selftestRaise string

func init() {
	rootCmd.AddCommand(selftestCmd)

	selftestCmd.Flags().StringVar(&selftestRaise, "raise", "",
		"deliberately crash through the pipeline: abort, panic or signal")
	_ = selftestCmd.Flags().MarkHidden("raise")
}

func runSelftest(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if selftestRaise != "" {
		return raiseCrash(cfg, selftestRaise)
	}
	out := cmd.OutOrStdout()
	failed := false

	host := sysinfo.Host()
	fmt.Fprintf(out, "host:      %s (%d cores, %d threads, %d MB)\n",
		orUnknown(host.CPUModel), host.Cores, host.Threads, host.MemoryBytes>>20)
	fmt.Fprintf(out, "process:   %s (rss %d MB)\n",
		symbol.Executable(), sysinfo.MemoryUsage()>>20)

	// Symbol table. Go binaries resolve through the runtime even when nm is
	// unavailable, so a missing tool degrades rather than fails.
	table := symbol.NewTable(symbol.Executable(), cfg.Symbols.NMPath, sysinfo.Exec)
	if err := table.EnsureLoaded(); err != nil {
		fmt.Fprintf(out, "symtab:    unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(out, "symtab:    %d symbols\n", table.Len())
	}

	// Capture and resolution.
	capturer := newCapturer(cfg)
	seq := capturer.Capture()
	if len(seq) == 0 {
		fmt.Fprintln(out, "capture:   FAILED (no frames)")
		failed = true
	} else if !strings.Contains(seq.String(), "runSelftest") {
		fmt.Fprintln(out, "capture:   FAILED (own frame not resolved)")
		failed = true
	} else {
		fmt.Fprintf(out, "capture:   %d frames, innermost %s\n", len(seq), seq[0].Function)
	}

	tree := capturer.CaptureAll()
	if tree.Empty() {
		fmt.Fprintln(out, "aggregate: FAILED (empty tree)")
		failed = true
	} else {
		fmt.Fprintf(out, "aggregate: %d goroutines, %d nodes\n", tree.Count, tree.Nodes())
	}

	// Termination pipeline in throw mode; the error must carry the report.
	if err := selftestPipeline(capturer); err != nil {
		fmt.Fprintf(out, "pipeline:  FAILED (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(out, "pipeline:  ok")
	}

	if failed {
		return errors.New("selftest failed")
	}
	fmt.Fprintln(out, "all checks passed")
	return nil
}

// raiseCrash drives a real termination through the pipeline. It does not
// return on the abort and signal paths.
func raiseCrash(cfg *config.Config, mode string) error {
	logger := newLogger()
	p := newPipeline(cfg, newCapturer(cfg), logger, nil)
	defer p.Recover()

	switch mode {
	case "abort":
		p.Abort("deliberate crash requested")
	case "panic":
		panic("deliberate crash requested")
	case "signal":
		p.HandleSignals()
		proc, err := os.FindProcess(os.Getpid())
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return err
		}
		select {}
	default:
		return fmt.Errorf("unknown crash mode %q, want abort, panic or signal", mode)
	}
	return nil
}

func selftestPipeline(capturer *stack.Capturer) (err error) {
	p := terminate.New(terminate.Config{
		ThrowOnAbort: true,
		Capturer:     capturer,
		Memory:       sysinfo.MemoryUsage,
		Out:          nopWriter{},
	})

	defer func() {
		r := recover()
		if r == nil {
			err = errors.New("abort did not raise")
			return
		}
		abortErr, ok := r.(*terminate.AbortError)
		if !ok {
			err = fmt.Errorf("unexpected panic value %T", r)
			return
		}
		if abortErr.Stack.Empty() {
			err = errors.New("abort error carries no stack")
			return
		}
		if !strings.Contains(abortErr.Error(), "selftest probe") {
			err = errors.New("abort error lost its message")
		}
	}()
	p.Abort("selftest probe")
	return nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
