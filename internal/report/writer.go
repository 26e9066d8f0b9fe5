// Package report writes rendered crash reports to per-crash files and keeps
// the report directory bounded.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate"
)

// Writer persists crash reports as text files. Files are written atomically
// so a crash during the write never leaves a truncated report behind.
type Writer struct {
	dir      string
	maxFiles int
	logger   *slog.Logger

	mu sync.Mutex // Protects file operations
}

// NewWriter creates a report writer.
func NewWriter(dir string, maxFiles int, logger *slog.Logger) *Writer {
	if maxFiles <= 0 {
		maxFiles = 10
	}
	if dir == "" {
		dir = ".crashtrace/reports"
	}
	return &Writer{
		dir:      dir,
		maxFiles: maxFiles,
		logger:   logger,
	}
}

// Write renders and persists the report, returning the file path.
func (w *Writer) Write(abortErr *terminate.AbortError) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	at := abortErr.Time
	if at.IsZero() {
		at = time.Now()
	}
	// A uuid fragment keeps names unique when crashes land in the same second.
	filename := fmt.Sprintf("crash-%s-%s.txt",
		at.UTC().Format("2006-01-02T15-04-05"),
		uuid.NewString()[:8])
	path := filepath.Join(w.dir, filename)

	if err := renameio.WriteFile(path, []byte(abortErr.Report()), 0o600); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	_ = w.cleanupOldReports()

	return path, nil
}

// StoreReport implements the termination pipeline sink.
func (w *Writer) StoreReport(abortErr *terminate.AbortError) error {
	path, err := w.Write(abortErr)
	if err != nil {
		return err
	}
	if w.logger != nil {
		w.logger.Error("crash report written", "path", path)
	}
	return nil
}

// cleanupOldReports removes report files exceeding maxFiles.
func (w *Writer) cleanupOldReports() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	var reports []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash-") && strings.HasSuffix(e.Name(), ".txt") {
			reports = append(reports, e)
		}
	}

	// Oldest first
	sort.Slice(reports, func(i, j int) bool {
		infoI, errI := reports[i].Info()
		infoJ, errJ := reports[j].Info()
		if errI != nil || errJ != nil {
			return false
		}
		return infoI.ModTime().Before(infoJ.ModTime())
	})

	for len(reports) > w.maxFiles {
		path := filepath.Join(w.dir, reports[0].Name())
		if err := os.Remove(path); err != nil && w.logger != nil {
			w.logger.Warn("failed to remove old report",
				"path", path,
				"error", err,
			)
		}
		reports = reports[1:]
	}

	return nil
}

// LoadLatest returns the content of the most recent report in the directory.
func LoadLatest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading report dir: %w", err)
	}

	var newest os.DirEntry
	var newestTime time.Time

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "crash-") || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == nil || info.ModTime().After(newestTime) {
			newest = e
			newestTime = info.ModTime()
		}
	}

	if newest == nil {
		return "", fmt.Errorf("no reports found")
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", fmt.Errorf("opening report dir: %w", err)
	}
	defer func() { _ = root.Close() }()

	data, err := root.ReadFile(newest.Name())
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	return string(data), nil
}
