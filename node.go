package ghtree

import (
	"sort"
	"strings"
)

// TreeNode is one node of a normalized tree snapshot. Directory nodes
// hold children keyed by name; every non-root node has exactly one
// parent. Nodes synthesized for implicit parent directories carry an
// empty ContentID.
type TreeNode struct {
	Name      string    `json:"name"`
	Kind      EntryKind `json:"kind"`
	Size      int64     `json:"size,omitempty"`
	ContentID string    `json:"content_id,omitempty"`

	// Nodes maps child name to child node. Exposed for serialization;
	// use Children for deterministic ordering.
	Nodes map[string]*TreeNode `json:"nodes,omitempty"`
}

// IsDir reports whether the node is a directory.
func (n *TreeNode) IsDir() bool {
	return n.Kind == KindDirectory
}

// Child returns the named child, or nil if it does not exist or the
// node is not a directory.
func (n *TreeNode) Child(name string) *TreeNode {
	return n.Nodes[name]
}

// Children returns the node's children ordered lexicographically by name.
func (n *TreeNode) Children() []*TreeNode {
	if len(n.Nodes) == 0 {
		return nil
	}

	names := make([]string, 0, len(n.Nodes))
	for name := range n.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]*TreeNode, len(names))
	for i, name := range names {
		children[i] = n.Nodes[name]
	}
	return children
}

// Lookup descends the tree along a slash-separated path and returns the
// node at that path, or nil if any segment is missing.
func (n *TreeNode) Lookup(path string) *TreeNode {
	if path == "" {
		return n
	}

	current := n
	for _, segment := range strings.Split(path, "/") {
		if current == nil {
			return nil
		}
		current = current.Child(segment)
	}
	return current
}

// Count returns the total number of descendant nodes, excluding the
// receiver itself.
func (n *TreeNode) Count() int {
	total := 0
	for _, child := range n.Nodes {
		total += 1 + child.Count()
	}
	return total
}

// Walk visits every descendant of the node in depth-first order,
// children in lexicographic order. The path passed to fn is relative to
// the receiver. Returning an error from fn stops the walk.
func (n *TreeNode) Walk(fn func(path string, node *TreeNode) error) error {
	return n.walk("", fn)
}

func (n *TreeNode) walk(prefix string, fn func(path string, node *TreeNode) error) error {
	for _, child := range n.Children() {
		path := child.Name
		if prefix != "" {
			path = prefix + "/" + child.Name
		}

		if err := fn(path, child); err != nil {
			return err
		}
		if err := child.walk(path, fn); err != nil {
			return err
		}
	}
	return nil
}
