package config

// DefaultConfigYAML contains the default configuration YAML content.
// Written by `crashtrace init` so a project starts from a documented file.
const DefaultConfigYAML = `# crashtrace configuration
#
# Values not specified here use sensible defaults.

# Termination behavior
abort:
  # Raise fatal conditions as catchable errors instead of killing the process.
  throw: false

# Stack capture
capture:
  # What a fatal capture covers: local | all | distributed
  scope: local
  max_depth: 100

# Address-to-symbol resolution
# External tools are consulted only for frames the runtime cannot resolve.
symbols:
  nm_path: nm
  addr2line_path: addr2line
  demangle: true

# Crash report files
report:
  dir: .crashtrace/reports
  max_files: 20

# Report database
store:
  path: .crashtrace/reports.db

# Debug HTTP server (crashtrace serve)
serve:
  addr: 127.0.0.1:7457
  allowed_origins:
    - http://localhost:7457
  shutdown_timeout: 5s

log:
  level: info
  format: auto
`
