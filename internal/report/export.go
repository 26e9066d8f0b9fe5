package report

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/wire"
)

// Document is the exportable form of a crash report.
type Document struct {
	ID          string    `yaml:"id,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	Kind        string    `yaml:"kind"`
	Message     string    `yaml:"message,omitempty"`
	Source      string    `yaml:"source,omitempty"`
	Signal      string    `yaml:"signal,omitempty"`
	MemoryBytes uint64    `yaml:"memory_bytes,omitempty"`
	Stack       []string  `yaml:"stack,omitempty"`
}

// FromAbortError builds a document from a live abort error.
func FromAbortError(abortErr *terminate.AbortError) *Document {
	doc := &Document{
		CreatedAt:   abortErr.Time,
		Kind:        abortErr.Kind.String(),
		Message:     abortErr.Message,
		Source:      abortErr.Source,
		MemoryBytes: abortErr.Bytes,
	}
	if abortErr.Signal != nil {
		doc.Signal = terminate.SignalName(abortErr.Signal)
	}
	if !abortErr.Stack.Empty() {
		doc.Stack = abortErr.Stack.Lines()
	}
	return doc
}

// FromEncoded builds a document from stored report fields and a wire-encoded
// stack payload. A nil payload yields a document without a stack.
func FromEncoded(id string, createdAt time.Time, kind, message, source, signal string, memoryBytes uint64, encoded []byte) (*Document, error) {
	doc := &Document{
		ID:          id,
		CreatedAt:   createdAt,
		Kind:        kind,
		Message:     message,
		Source:      source,
		Signal:      signal,
		MemoryBytes: memoryBytes,
	}
	if len(encoded) > 0 {
		tree, err := wire.UnpackTree(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding stored stack: %w", err)
		}
		doc.Stack = tree.Lines()
	}
	return doc, nil
}

// ExportYAML writes the document as a YAML stream.
func (d *Document) ExportYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
