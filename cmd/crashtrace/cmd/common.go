package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/config"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/logging"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/symbol"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/sysinfo"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate"
)

// newLogger builds the CLI logger from the persistent flags.
func newLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stderr,
	})
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

// newResolver builds the address resolver for the given executable image
// (the current process when exe is empty).
func newResolver(cfg *config.Config, exe string) *symbol.Resolver {
	slide := symbol.Slide()
	if exe == "" {
		exe = symbol.Executable()
	} else {
		// A foreign image is not mapped into this process; its table
		// addresses are already link-time addresses.
		slide = 0
	}

	table := symbol.NewTable(exe, cfg.Symbols.NMPath, sysinfo.Exec)
	opts := []symbol.ResolverOption{
		symbol.WithExecutable(exe, slide),
		symbol.WithDemangle(cfg.Symbols.Demangle),
	}
	if cfg.Symbols.Addr2LinePath != "" {
		opts = append(opts, symbol.WithAddr2Line(cfg.Symbols.Addr2LinePath))
	}
	return symbol.NewResolver(table, sysinfo.Exec, opts...)
}

// newCapturer builds the stack capturer from configuration.
func newCapturer(cfg *config.Config) *stack.Capturer {
	return stack.NewCapturer(newResolver(cfg, ""),
		stack.WithMaxDepth(cfg.Capture.MaxDepth))
}

// newPipeline assembles the termination pipeline: capture scope, memory
// context, report sinks, and the distributed notifier.
func newPipeline(cfg *config.Config, capturer *stack.Capturer, logger *logging.Logger, sink terminate.Sink) *terminate.Pipeline {
	return terminate.New(terminate.Config{
		ThrowOnAbort: cfg.Abort.Throw,
		Scope:        terminate.ParseScope(cfg.Capture.Scope),
		Capturer:     capturer,
		Memory:       sysinfo.MemoryUsage,
		Notifier:     &terminate.GroupNotifier{},
		Sink:         sink,
		Logger:       logger.Logger,
	})
}

// writeOutput writes data to a file, or to stdout when path is empty or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
