package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
)

func sampleFrame(i uint64) stack.Frame {
	return stack.Frame{
		Addr:       0x400000 + i*0x40,
		ModuleAddr: i * 0x40,
		Module:     "/usr/bin/app",
		Function:   "pkg.fn",
		File:       "pkg/file.go",
		Line:       int(10 + i),
	}
}

func TestFramesRoundTrip(t *testing.T) {
	t.Parallel()
	seq := stack.Sequence{
		sampleFrame(1),
		sampleFrame(2),
		{Addr: 0xdeadbeef}, // unresolved, all text empty
	}
	got, err := UnpackFrames(PackFrames(seq))
	require.NoError(t, err)
	assert.Equal(t, seq, got)
}

func TestEmptyFramesRoundTrip(t *testing.T) {
	t.Parallel()
	got, err := UnpackFrames(PackFrames(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTreeRoundTrip(t *testing.T) {
	t.Parallel()
	seqs := []stack.Sequence{
		{sampleFrame(1), sampleFrame(2), sampleFrame(3)},
		{sampleFrame(1), sampleFrame(2), sampleFrame(9)},
		{sampleFrame(7)},
	}
	m := stack.Merge(seqs)

	got, err := UnpackTree(PackTree(m))
	require.NoError(t, err)
	require.True(t, m.Equal(got), "decoded tree differs:\nwant %s\ngot  %s", m, got)
}

func TestTreeRoundTripSynthetic(t *testing.T) {
	t.Parallel()
	// Many contributors over a small address alphabet produces heavily
	// shared prefixes plus divergence, the shape the aggregator exists for.
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(200)
		seqs := make([]stack.Sequence, n)
		for i := range seqs {
			depth := 1 + rng.Intn(40)
			seq := make(stack.Sequence, depth)
			for d := range seq {
				seq[d] = sampleFrame(uint64(1 + rng.Intn(8)))
			}
			seqs[i] = seq
		}
		m := stack.Merge(seqs)
		got, err := UnpackTree(PackTree(m))
		require.NoError(t, err)
		require.True(t, m.Equal(got), "trial %d: round trip mismatch", trial)
	}
}

func TestUnpackRejectsWrongVersion(t *testing.T) {
	t.Parallel()
	b := PackFrames(stack.Sequence{sampleFrame(1)})
	b[0] = Version + 1
	_, err := UnpackFrames(b)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestUnpackRejectsWrongKind(t *testing.T) {
	t.Parallel()
	b := PackTree(stack.Merge([]stack.Sequence{{sampleFrame(1)}}))
	_, err := UnpackFrames(b)
	assert.ErrorIs(t, err, ErrKind)
}

func TestUnpackTruncated(t *testing.T) {
	t.Parallel()
	b := PackFrames(stack.Sequence{sampleFrame(1), sampleFrame(2)})
	for cut := 0; cut < len(b); cut++ {
		_, err := UnpackFrames(b[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestUnpackGarbage(t *testing.T) {
	t.Parallel()
	_, err := UnpackTree([]byte{Version, kindTree, 0xff, 0xff})
	assert.Error(t, err)
	_, err = UnpackTree(nil)
	assert.Error(t, err)
}
