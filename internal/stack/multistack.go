package stack

import (
	"fmt"
	"io"
	"strings"
)

// MultiStack is a prefix-tree merge of call stacks from multiple
// threads/processes. Each node holds one frame shared by Count contributors;
// children are the frames that diverge at the next depth. The root carries a
// zero Frame and its Count equals the number of merged sequences.
//
// Nodes own their children outright (no cross-links, no raw pointers into
// other structures), which keeps the tree trivially serializable.
type MultiStack struct {
	Count    int
	Frame    Frame
	Children []*MultiStack
}

// Merge builds a MultiStack from per-contributor sequences. Frames are
// considered equal iff their merge keys (module-relative address, raw address
// as fallback) are equal; the text fields of the first contributor win, which
// avoids false splits when the resolver is nondeterministic about strings.
// Runs in O(total frames), stores O(distinct prefixes).
func Merge(seqs []Sequence) *MultiStack {
	root := &MultiStack{}
	for _, s := range seqs {
		root.Add(s)
	}
	return root
}

// Add inserts one sequence as a path from the root, splitting into siblings
// at the first point of divergence.
func (m *MultiStack) Add(seq Sequence) {
	m.Count++
	node := m
	for _, f := range seq {
		child := node.findChild(f)
		if child == nil {
			child = &MultiStack{Frame: f}
			node.Children = append(node.Children, child)
		}
		child.Count++
		node = child
	}
}

func (m *MultiStack) findChild(f Frame) *MultiStack {
	key := f.Key()
	for _, c := range m.Children {
		if c.Frame.Key() == key {
			return c
		}
	}
	return nil
}

// Empty reports whether any sequence has been merged in.
func (m *MultiStack) Empty() bool {
	return m == nil || m.Count == 0
}

// Nodes counts the tree nodes, excluding the root.
func (m *MultiStack) Nodes() int {
	n := 0
	for _, c := range m.Children {
		n += 1 + c.Nodes()
	}
	return n
}

// Trim removes nodes whose function name starts with one of the given
// prefixes, promoting their children in place. Mirrors Sequence.Trim for
// already-merged trees.
func (m *MultiStack) Trim(prefixes ...string) {
	var kept []*MultiStack
	for _, c := range m.Children {
		c.Trim(prefixes...)
		if matchesAny(c.Frame.Function, prefixes) {
			kept = append(kept, c.Children...)
		} else {
			kept = append(kept, c)
		}
	}
	m.Children = kept
}

// Lines renders the tree depth-first, one line per node, indented by depth
// and annotated with "(xN)" when a node is shared by more than one
// contributor. Sibling order is insertion order; it carries no meaning.
func (m *MultiStack) Lines() []string {
	var out []string
	for _, c := range m.Children {
		c.lines("", &out)
	}
	return out
}

func (m *MultiStack) lines(indent string, out *[]string) {
	line := indent + m.Frame.String()
	if m.Count > 1 {
		line += fmt.Sprintf("  (x%d)", m.Count)
	}
	*out = append(*out, line)
	for _, c := range m.Children {
		c.lines(indent+"  ", out)
	}
}

// Render writes the tree to w, one line per node.
func (m *MultiStack) Render(w io.Writer) error {
	_, err := io.WriteString(w, m.String())
	return err
}

func (m *MultiStack) String() string {
	return strings.Join(m.Lines(), "\n") + "\n"
}

// Equal compares two trees field for field, including child order.
func (m *MultiStack) Equal(other *MultiStack) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Count != other.Count || m.Frame != other.Frame || len(m.Children) != len(other.Children) {
		return false
	}
	for i := range m.Children {
		if !m.Children[i].Equal(other.Children[i]) {
			return false
		}
	}
	return true
}
