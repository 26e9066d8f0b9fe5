package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

var levelTags = map[slog.Level]string{
	slog.LevelDebug: ansiGray + "DBG" + ansiReset,
	slog.LevelInfo:  ansiBlue + "INF" + ansiReset,
	slog.LevelWarn:  ansiYellow + "WRN" + ansiReset,
	slog.LevelError: ansiRed + "ERR" + ansiReset,
}

// PrettyHandler renders records for a terminal: short timestamp, colored
// three-letter level, message, then attributes. Error values are highlighted
// so the tool/exit-code context around a failed nm or addr2line run stands
// out in a scrollback full of capture lines.
type PrettyHandler struct {
	mu     sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewPrettyHandler creates a new pretty handler.
func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{
		w:     w,
		level: level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes the log record.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(h.levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, attr := range h.attrs {
		h.appendAttr(&b, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a new handler with attrs.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PrettyHandler{
		w:      h.w,
		level:  h.level,
		attrs:  merged,
		groups: h.groups,
	}
}

// WithGroup returns a new handler with a group.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	return &PrettyHandler{
		w:      h.w,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

func (h *PrettyHandler) levelTag(level slog.Level) string {
	if tag, ok := levelTags[level]; ok {
		return tag
	}
	return level.String()[:3]
}

func (h *PrettyHandler) appendAttr(b *strings.Builder, a slog.Attr) {
	if a.Value.Kind() == slog.KindGroup {
		for _, attr := range a.Value.Group() {
			h.appendAttr(b, attr)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(ansiCyan)
	for _, g := range h.groups {
		b.WriteString(g)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteString(ansiReset)
	b.WriteByte('=')

	val := fmt.Sprint(a.Value.Any())
	if strings.ContainsAny(val, " \t") {
		val = strconv.Quote(val)
	}
	if a.Key == "error" {
		val = ansiRed + val + ansiReset
	}
	b.WriteString(val)
}
