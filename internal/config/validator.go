package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateCapture(&cfg.Capture)
	v.validateSymbols(&cfg.Symbols)
	v.validateReport(&cfg.Report)
	v.validateStore(&cfg.Store)
	v.validateServe(&cfg.Serve)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateCapture(cfg *CaptureConfig) {
	validScopes := map[string]bool{
		"local": true, "all": true, "distributed": true, "global": true,
	}
	if !validScopes[cfg.Scope] {
		v.addError("capture.scope", cfg.Scope, "must be one of: local, all, distributed")
	}

	if cfg.MaxDepth <= 0 || cfg.MaxDepth > 1024 {
		v.addError("capture.max_depth", cfg.MaxDepth, "must be between 1 and 1024")
	}
}

func (v *Validator) validateSymbols(cfg *SymbolsConfig) {
	if cfg.NMPath == "" {
		v.addError("symbols.nm_path", cfg.NMPath, "tool path required")
	}
	if cfg.Addr2LinePath == "" {
		v.addError("symbols.addr2line_path", cfg.Addr2LinePath, "tool path required")
	}
}

func (v *Validator) validateReport(cfg *ReportConfig) {
	if cfg.Dir == "" {
		v.addError("report.dir", cfg.Dir, "directory required")
	} else if !isValidPath(cfg.Dir) {
		v.addError("report.dir", cfg.Dir, "invalid directory path")
	}

	if cfg.MaxFiles <= 0 {
		v.addError("report.max_files", cfg.MaxFiles, "must be positive")
	}
}

func (v *Validator) validateStore(cfg *StoreConfig) {
	if cfg.Path == "" {
		v.addError("store.path", cfg.Path, "path required")
	}
}

func (v *Validator) validateServe(cfg *ServeConfig) {
	if cfg.Addr == "" {
		v.addError("serve.addr", cfg.Addr, "listen address required")
	} else if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.addError("serve.addr", cfg.Addr, "must be host:port")
	}

	if _, err := time.ParseDuration(cfg.ShutdownTimeout); err != nil {
		v.addError("serve.shutdown_timeout", cfg.ShutdownTimeout, "invalid duration format")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
