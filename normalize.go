package ghtree

import (
	"sort"
	"strings"
)

// Build converts a flat recursive tree listing into a normalized
// hierarchical snapshot rooted at an unnamed directory node.
//
// The result is independent of input order: entries are sorted by path
// before insertion and children are always exposed in lexicographic
// order. Intermediate directories implied by multi-segment paths are
// synthesized when the host omits them; an explicit directory entry
// arriving later fills in the synthesized node's metadata.
//
// Build is a pure function. It performs no I/O and rejects malformed
// input rather than repairing it: an empty or non-canonical path yields
// an invalid input error, and an entry whose kind conflicts with an
// already-established node at the same path yields a conflict error
// carrying the offending path (see ConflictPath).
func Build(entries []TreeEntry) (*TreeNode, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	root := &TreeNode{Kind: KindDirectory}

	// Tracks nodes backed by an explicit entry, as opposed to
	// synthesized parents.
	established := make(map[*TreeNode]bool)

	for _, entry := range sorted {
		segments, err := splitPath(entry.Path)
		if err != nil {
			return nil, err
		}

		current := root
		for i, segment := range segments {
			last := i == len(segments)-1
			prefix := strings.Join(segments[:i+1], "/")

			child := current.Child(segment)
			if child == nil {
				child = &TreeNode{Name: segment, Kind: KindDirectory}
				if last {
					child.Kind = entry.Kind
					child.Size = entry.Size
					child.ContentID = entry.ContentID
					established[child] = true
				}
				if current.Nodes == nil {
					current.Nodes = make(map[string]*TreeNode)
				}
				current.Nodes[segment] = child
				current = child
				continue
			}

			if !last {
				if !child.IsDir() {
					return nil, newConflictError(prefix, "file used as parent directory")
				}
				current = child
				continue
			}

			// An entry for a path that already has a node: only a
			// directory entry filling in a synthesized directory is
			// legal. Anything else is inconsistent host data and must
			// not silently overwrite.
			if established[child] {
				return nil, newConflictError(prefix, "duplicate entry")
			}
			if entry.Kind != KindDirectory {
				return nil, newConflictError(prefix, "file entry for established directory")
			}
			child.Size = entry.Size
			child.ContentID = entry.ContentID
			established[child] = true
			current = child
		}
	}

	return root, nil
}

// splitPath splits a slash-separated entry path into segments, rejecting
// empty paths and non-canonical segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, newInvalidInputError("path", "empty path")
	}

	segments := strings.Split(path, "/")
	for _, segment := range segments {
		switch segment {
		case "", ".", "..":
			return nil, newInvalidInputError("path", "non-canonical path: "+path)
		}
	}
	return segments, nil
}
