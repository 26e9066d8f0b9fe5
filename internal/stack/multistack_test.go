package stack

import (
	"strings"
	"testing"
)

func seqOf(addrs ...uint64) Sequence {
	s := make(Sequence, 0, len(addrs))
	for _, a := range addrs {
		s = append(s, Frame{Addr: a, ModuleAddr: a, Function: "fn"})
	}
	return s
}

func TestMergeIdenticalSequences(t *testing.T) {
	t.Parallel()
	a := seqOf(1, 2, 3, 4, 5)
	b := seqOf(1, 2, 3, 4, 5)

	m := Merge([]Sequence{a, b})

	if m.Count != 2 {
		t.Fatalf("root count = %d, want 2", m.Count)
	}
	if m.Nodes() != 5 {
		t.Fatalf("nodes = %d, want 5 (single chain)", m.Nodes())
	}
	node := m
	for depth := 0; depth < 5; depth++ {
		if len(node.Children) != 1 {
			t.Fatalf("depth %d: children = %d, want 1", depth, len(node.Children))
		}
		node = node.Children[0]
		if node.Count != 2 {
			t.Errorf("depth %d: count = %d, want 2", depth, node.Count)
		}
	}
}

func TestMergeDivergingSequences(t *testing.T) {
	t.Parallel()
	a := seqOf(1, 2, 3, 10, 11)
	b := seqOf(1, 2, 3, 20)

	m := Merge([]Sequence{a, b})

	if m.Count != 2 {
		t.Fatalf("root count = %d, want 2", m.Count)
	}
	// Three shared nodes.
	node := m
	for depth := 0; depth < 3; depth++ {
		if len(node.Children) != 1 {
			t.Fatalf("depth %d: children = %d, want 1", depth, len(node.Children))
		}
		node = node.Children[0]
		if node.Count != 2 {
			t.Errorf("depth %d: count = %d, want 2", depth, node.Count)
		}
	}
	// Then two sibling branches with one contributor each.
	if len(node.Children) != 2 {
		t.Fatalf("divergence point: children = %d, want 2", len(node.Children))
	}
	for _, c := range node.Children {
		if c.Count != 1 {
			t.Errorf("branch %#x: count = %d, want 1", c.Frame.Addr, c.Count)
		}
	}
}

func TestMergeContributorInvariant(t *testing.T) {
	t.Parallel()
	seqs := []Sequence{
		seqOf(1, 2, 3),
		seqOf(1, 2, 4),
		seqOf(1, 5),
		seqOf(6),
		seqOf(1, 2, 3),
	}
	m := Merge(seqs)

	if m.Count != len(seqs) {
		t.Fatalf("root count = %d, want %d", m.Count, len(seqs))
	}
	var check func(n *MultiStack)
	check = func(n *MultiStack) {
		sum := 0
		for _, c := range n.Children {
			sum += c.Count
			check(c)
		}
		if sum > n.Count {
			t.Errorf("node %#x: children sum %d exceeds count %d", n.Frame.Addr, sum, n.Count)
		}
	}
	check(m)
}

func TestMergeKeyIgnoresText(t *testing.T) {
	t.Parallel()
	// Same module-relative address with different resolver text must not
	// split the tree.
	a := Sequence{{Addr: 0x100, ModuleAddr: 0x10, Function: "foo"}}
	b := Sequence{{Addr: 0x200, ModuleAddr: 0x10, Function: "foo (inlined)"}}

	m := Merge([]Sequence{a, b})
	if len(m.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(m.Children))
	}
	if m.Children[0].Count != 2 {
		t.Fatalf("count = %d, want 2", m.Children[0].Count)
	}
	if m.Children[0].Frame.Function != "foo" {
		t.Errorf("function = %q, want first contributor's text", m.Children[0].Frame.Function)
	}
}

func TestMergeRawAddressFallback(t *testing.T) {
	t.Parallel()
	// Unresolved frames (no module-relative address) merge on raw address.
	a := Sequence{{Addr: 0xdead}}
	b := Sequence{{Addr: 0xdead}}
	m := Merge([]Sequence{a, b})
	if m.Nodes() != 1 || m.Children[0].Count != 2 {
		t.Fatalf("raw-address frames did not merge: nodes=%d", m.Nodes())
	}
}

func TestLinesAnnotatesSharedNodes(t *testing.T) {
	t.Parallel()
	m := Merge([]Sequence{seqOf(1, 2), seqOf(1, 3)})
	lines := m.Lines()
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if !strings.Contains(lines[0], "(x2)") {
		t.Errorf("shared node missing multiplicity: %q", lines[0])
	}
	if strings.Contains(lines[1], "(x") || strings.Contains(lines[2], "(x") {
		t.Errorf("singleton nodes must not carry multiplicity: %v", lines[1:])
	}
	// Children indented one level deeper than the shared parent.
	if !strings.HasPrefix(lines[1], "  ") {
		t.Errorf("child not indented: %q", lines[1])
	}
}

func TestTrimPromotesChildren(t *testing.T) {
	t.Parallel()
	seq := Sequence{
		{Addr: 1, Function: "runtime.gopanic"},
		{Addr: 2, Function: "app.work"},
		{Addr: 3, Function: "runtime.goexit"},
	}
	m := Merge([]Sequence{seq})
	m.Trim("runtime.")
	if m.Nodes() != 1 {
		t.Fatalf("nodes after trim = %d, want 1", m.Nodes())
	}
	if m.Children[0].Frame.Function != "app.work" {
		t.Errorf("kept frame = %q", m.Children[0].Frame.Function)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()
	a := Merge([]Sequence{seqOf(1, 2, 3), seqOf(1, 4)})
	b := Merge([]Sequence{seqOf(1, 2, 3), seqOf(1, 4)})
	if !a.Equal(b) {
		t.Error("identical merges not equal")
	}
	b.Children[0].Count++
	if a.Equal(b) {
		t.Error("differing counts reported equal")
	}
}
