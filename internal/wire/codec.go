// Package wire implements the flat binary encoding used to move captured
// stacks between processes. The stream is self-describing: length-prefixed
// strings, fixed-width little-endian integers and an explicit child count per
// tree node, so a receiver with no shared address space or symbol cache can
// decode the textual content. Raw pointer values never cross the wire; only
// module-relative addresses and already-resolved text survive transport.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
)

// Version tags the stream layout. A decoder rejects streams it does not
// understand instead of misreading them.
const Version = 1

// Stream kind markers, the byte after the version.
const (
	kindFrames = 0x01
	kindTree   = 0x02
)

var (
	// ErrTruncated reports a stream that ends mid-value.
	ErrTruncated = errors.New("wire: truncated stream")
	// ErrVersion reports an unsupported stream version.
	ErrVersion = errors.New("wire: unsupported version")
	// ErrKind reports a stream of the wrong kind for the requested decode.
	ErrKind = errors.New("wire: unexpected stream kind")
)

// maxChildren bounds fan-out during decode so a corrupt count cannot force a
// huge allocation.
const maxChildren = 1 << 20

// PackFrames encodes a flat frame sequence.
func PackFrames(seq stack.Sequence) []byte {
	e := newEncoder()
	e.u8(Version)
	e.u8(kindFrames)
	e.u32(uint32(len(seq)))
	for _, f := range seq {
		e.frame(f)
	}
	return e.buf
}

// UnpackFrames decodes a stream produced by PackFrames.
func UnpackFrames(b []byte) (stack.Sequence, error) {
	d, err := newDecoder(b, kindFrames)
	if err != nil {
		return nil, err
	}
	n := d.u32()
	if uint64(n) > uint64(len(b)) {
		return nil, ErrTruncated
	}
	seq := make(stack.Sequence, 0, n)
	for i := uint32(0); i < n; i++ {
		seq = append(seq, d.frame())
	}
	if d.err != nil {
		return nil, d.err
	}
	return seq, nil
}

// PackTree encodes an aggregated stack tree.
func PackTree(m *stack.MultiStack) []byte {
	e := newEncoder()
	e.u8(Version)
	e.u8(kindTree)
	e.node(m)
	return e.buf
}

// UnpackTree decodes a stream produced by PackTree.
func UnpackTree(b []byte) (*stack.MultiStack, error) {
	d, err := newDecoder(b, kindTree)
	if err != nil {
		return nil, err
	}
	m := d.node(0)
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

type encoder struct {
	buf []byte
}

func newEncoder() *encoder {
	return &encoder{buf: make([]byte, 0, 256)}
}

func (e *encoder) u8(v byte)    { e.buf = append(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) str(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) frame(f stack.Frame) {
	e.u64(f.Addr)
	e.u64(f.ModuleAddr)
	e.u32(uint32(f.Line))
	e.str(f.Module)
	e.str(f.Function)
	e.str(f.File)
}

func (e *encoder) node(m *stack.MultiStack) {
	e.frame(m.Frame)
	e.u32(uint32(m.Count))
	e.u32(uint32(len(m.Children)))
	for _, c := range m.Children {
		e.node(c)
	}
}

type decoder struct {
	buf []byte
	off int
	err error
}

func newDecoder(b []byte, wantKind byte) (*decoder, error) {
	if len(b) < 2 {
		return nil, ErrTruncated
	}
	if b[0] != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, b[0], Version)
	}
	if b[1] != wantKind {
		return nil, ErrKind
	}
	return &decoder{buf: b, off: 2}, nil
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = ErrTruncated
	}
}

func (d *decoder) u32() uint32 {
	if d.err != nil || d.off+4 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil || d.off+8 > len(d.buf) {
		d.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) str() string {
	if d.err != nil || d.off+2 > len(d.buf) {
		d.fail()
		return ""
	}
	n := int(binary.LittleEndian.Uint16(d.buf[d.off:]))
	d.off += 2
	if d.off+n > len(d.buf) {
		d.fail()
		return ""
	}
	s := string(d.buf[d.off : d.off+n])
	d.off += n
	return s
}

func (d *decoder) frame() stack.Frame {
	return stack.Frame{
		Addr:       d.u64(),
		ModuleAddr: d.u64(),
		Line:       int(d.u32()),
		Module:     d.str(),
		Function:   d.str(),
		File:       d.str(),
	}
}

func (d *decoder) node(depth int) *stack.MultiStack {
	if d.err != nil {
		return nil
	}
	if depth > stack.DefaultMaxDepth*2 {
		d.err = fmt.Errorf("wire: tree deeper than any valid capture")
		return nil
	}
	m := &stack.MultiStack{
		Frame: d.frame(),
		Count: int(d.u32()),
	}
	n := d.u32()
	if n > maxChildren || uint64(n) > uint64(len(d.buf)) {
		d.fail()
		return nil
	}
	for i := uint32(0); i < n && d.err == nil; i++ {
		c := d.node(depth + 1)
		if c != nil {
			m.Children = append(m.Children, c)
		}
	}
	return m
}
