package config

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Abort   AbortConfig   `mapstructure:"abort"`
	Capture CaptureConfig `mapstructure:"capture"`
	Symbols SymbolsConfig `mapstructure:"symbols"`
	Report  ReportConfig  `mapstructure:"report"`
	Store   StoreConfig   `mapstructure:"store"`
	Serve   ServeConfig   `mapstructure:"serve"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// AbortConfig configures the termination pipeline.
type AbortConfig struct {
	// Throw raises fatal conditions as catchable errors instead of killing
	// the process.
	Throw bool `mapstructure:"throw"`
}

// CaptureConfig configures stack capture.
type CaptureConfig struct {
	// Scope selects what a fatal capture covers: local, all or distributed.
	Scope    string `mapstructure:"scope"`
	MaxDepth int    `mapstructure:"max_depth"`
}

// SymbolsConfig configures address-to-symbol resolution.
type SymbolsConfig struct {
	NMPath        string `mapstructure:"nm_path"`
	Addr2LinePath string `mapstructure:"addr2line_path"`
	Demangle      bool   `mapstructure:"demangle"`
}

// ReportConfig configures report files written on fatal conditions.
type ReportConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxFiles int    `mapstructure:"max_files"`
}

// StoreConfig configures report persistence.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServeConfig configures the debug HTTP server.
type ServeConfig struct {
	Addr            string   `mapstructure:"addr"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
}
