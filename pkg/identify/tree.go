/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: tree.go
Description: Identification tree. Every known model is unfolded from its initial state
into alternating input and output nodes, and the unfoldings are merged so that shared
behaviour shares nodes. Leaves carry the names of the models ending there.
*/

package identify

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/store"
)

// DefaultMaxDepth bounds the unfolding of cyclic models
const DefaultMaxDepth = 10

// Node is an input or output node of a tree. Input and output nodes alternate
// from the root, which has input children.
type Node struct {
	Label    string
	parent   *Node
	children []*Node
	models   automaton.Set
}

// Children returns the child nodes in insertion order
func (n *Node) Children() []*Node { return n.children }

// IsLeaf reports whether the node has no children
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Models returns the models attached to the node, sorted
func (n *Node) Models() []string { return n.models.Sorted() }

// Child returns the child with the given label
func (n *Node) Child(label string) (*Node, bool) {
	for _, c := range n.children {
		if c.Label == label {
			return c, true
		}
	}
	return nil, false
}

// Path returns the labels from the root to the node
func (n *Node) Path() []string {
	var labels []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		labels = append(labels, cur.Label)
	}
	slices.Reverse(labels)
	return labels
}

func (n *Node) ensureChild(label string) *Node {
	if c, ok := n.Child(label); ok {
		return c
	}
	c := &Node{Label: label, parent: n}
	n.children = append(n.children, c)
	return c
}

func (n *Node) removeChild(child *Node) {
	n.children = slices.DeleteFunc(n.children, func(c *Node) bool { return c == child })
}

func (n *Node) walk(visit func(*Node)) {
	visit(n)
	for _, c := range n.children {
		c.walk(visit)
	}
}

func (n *Node) clone(parent *Node) *Node {
	c := &Node{Label: n.Label, parent: parent}
	if n.models != nil {
		c.models = n.models.Clone()
	}
	for _, child := range n.children {
		c.children = append(c.children, child.clone(c))
	}
	return c
}

// Tree is an identification tree. An empty tree has no root.
type Tree struct {
	root *Node
	// Versions maps each model to the implementation versions it was learned from
	Versions map[string][]store.Version
}

// NewTree returns a tree holding only its root
func NewTree() *Tree {
	return &Tree{root: &Node{}, Versions: make(map[string][]store.Version)}
}

// Build unfolds every model into a new tree and condenses it
func Build(models []store.Model, maxDepth int) *Tree {
	t := NewTree()
	for _, m := range models {
		t.Add(m.Name, m.Automaton, maxDepth)
		t.Versions[m.Name] = m.Versions
	}
	t.Condense()
	return t
}

// Root returns the root, nil for an empty tree
func (t *Tree) Root() *Node { return t.root }

// Empty reports whether every node was pruned
func (t *Tree) Empty() bool { return t.root == nil }

// Len returns the number of nodes
func (t *Tree) Len() int {
	if t.root == nil {
		return 0
	}
	count := 0
	t.root.walk(func(*Node) { count++ })
	return count
}

// Leaves returns the nodes without children, depth first
func (t *Tree) Leaves() []*Node {
	if t.root == nil {
		return nil
	}
	return subtreeLeaves(t.root)
}

func subtreeLeaves(n *Node) []*Node {
	var leaves []*Node
	n.walk(func(cur *Node) {
		if cur.IsLeaf() {
			leaves = append(leaves, cur)
		}
	})
	return leaves
}

func subtreeModels(n *Node) automaton.Set {
	models := automaton.NewSet()
	for _, leaf := range subtreeLeaves(n) {
		for m := range leaf.models {
			models.Add(m)
		}
	}
	return models
}

// Models returns the models attached to the leaves
func (t *Tree) Models() automaton.Set {
	if t.root == nil {
		return automaton.NewSet()
	}
	return subtreeModels(t.root)
}

// Clone returns a deep copy
func (t *Tree) Clone() *Tree {
	c := &Tree{Versions: make(map[string][]store.Version, len(t.Versions))}
	for m, v := range t.Versions {
		c.Versions[m] = slices.Clone(v)
	}
	if t.root != nil {
		c.root = t.root.clone(nil)
	}
	return c
}

// Add unfolds a from state 0 under the root. A branch stops after an output
// containing EOF, after a transition out of a sink state, or below maxDepth, and
// its last output node records the model.
func (t *Tree) Add(model string, a *automaton.Automaton, maxDepth int) {
	if t.root == nil {
		t.root = &Node{}
	}
	t.unfold(model, a, t.root, 0, 0, maxDepth)
}

func (t *Tree) unfold(model string, a *automaton.Automaton, root *Node, state, depth, maxDepth int) {
	sink := a.IsSinkState(state)
	for _, sym := range a.Symbols(state) {
		tr, err := a.FollowTransition(state, sym)
		if err != nil {
			continue
		}
		received := root.ensureChild(sym).ensureChild(strings.Join(tr.Outputs, "+"))
		if slices.Contains(tr.Outputs, "EOF") || sink || depth+1 > maxDepth || len(a.Symbols(tr.Dst)) == 0 {
			if received.models == nil {
				received.models = automaton.NewSet()
			}
			received.models.Add(model)
			continue
		}
		t.unfold(model, a, received, tr.Dst, depth+1, maxDepth)
	}
}

// pruneNode removes n, and every ancestor left without children
func (t *Tree) pruneNode(n *Node) {
	if n.parent == nil {
		t.root = nil
		return
	}
	if len(n.parent.children) == 1 {
		t.pruneNode(n.parent)
		return
	}
	n.parent.removeChild(n)
}

// PruneModels detaches models from every leaf and removes the leaves left empty
func (t *Tree) PruneModels(models automaton.Set) {
	for _, leaf := range t.Leaves() {
		for m := range models {
			delete(leaf.models, m)
		}
		if len(leaf.models) == 0 {
			t.pruneNode(leaf)
		}
	}
}

// Condense removes the leaves shared by every model, then drops inputs whose single
// output is a leaf since they cannot tell models apart. A node losing all its inputs
// becomes a leaf holding the models below it. Repeats until the tree is stable.
func (t *Tree) Condense() {
	for {
		if t.root == nil {
			return
		}
		start := t.Len()

		all := t.Models()
		for _, leaf := range t.Leaves() {
			if leaf.models.Equal(all) {
				t.pruneNode(leaf)
			}
		}
		if t.root == nil {
			return
		}

		var ancestors []*Node
		seen := make(map[*Node]bool)
		for _, leaf := range t.Leaves() {
			if leaf.parent == nil || leaf.parent.parent == nil {
				continue
			}
			if ancestor := leaf.parent.parent; !seen[ancestor] {
				seen[ancestor] = true
				ancestors = append(ancestors, ancestor)
			}
		}
		for _, node := range ancestors {
			models := subtreeModels(node)
			var redundant []*Node
			for _, input := range node.children {
				if len(input.children) == 1 && input.children[0].IsLeaf() {
					redundant = append(redundant, input)
				}
			}
			for _, input := range redundant {
				node.removeChild(input)
			}
			if node.IsLeaf() {
				node.models = models
			}
		}

		if t.Len() == start {
			return
		}
	}
}

// Dot renders the tree; leaves show their share of the models and the model names
func (t *Tree) Dot() string {
	lines := []string{"digraph {"}
	if t.root != nil {
		total := len(t.Models())
		ids := make(map[*Node]int)
		t.root.walk(func(n *Node) {
			ids[n] = len(ids)
			label, shape := "", "ellipse"
			if n.IsLeaf() {
				shape = "rectangle"
				models := n.Models()
				if total > 0 {
					label = strings.Join(append([]string{fmt.Sprintf("%.2f%%", 100*float64(len(models))/float64(total))}, models...), `\n`)
				}
			}
			lines = append(lines, fmt.Sprintf(`"%d" [shape=%s label="%s"];`, ids[n], shape, label))
			if n.parent != nil {
				lines = append(lines, fmt.Sprintf(`"%d" -> "%d" [label="%s"];`, ids[n.parent], ids[n], n.Label))
			}
		})
	}
	lines = append(lines, "}")
	return strings.Join(lines, "\n") + "\n"
}
