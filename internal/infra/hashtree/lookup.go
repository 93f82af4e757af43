package hashtree

import "bytes"

// Lookup finds the leaf value under the first Labeled edge matching label,
// searching the left branch of every Fork before the right one. The schema
// guarantees label uniqueness, so the first match wins and no deduplication
// is attempted. Absence is reported through ok, not an error.
func Lookup(node Node, label []byte) (value []byte, ok bool) {
	sub, ok := labeledSubtree(node, label)
	if !ok {
		return nil, false
	}
	leaf, ok := sub.(Leaf)
	if !ok {
		return nil, false
	}
	return leaf.Value, true
}

// LookupPath descends through successive Labeled edges, one per path
// segment, and returns the subtree reached by the full path.
func LookupPath(node Node, path ...[]byte) (Node, bool) {
	current := node
	for _, segment := range path {
		next, ok := labeledSubtree(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// LeafValue unwraps the subtree at path when it is a Leaf.
func LeafValue(node Node, path ...[]byte) ([]byte, bool) {
	sub, ok := LookupPath(node, path...)
	if !ok {
		return nil, false
	}
	leaf, ok := sub.(Leaf)
	if !ok {
		return nil, false
	}
	return leaf.Value, true
}

func labeledSubtree(node Node, label []byte) (Node, bool) {
	switch n := node.(type) {
	case Fork:
		if sub, ok := labeledSubtree(n.Left, label); ok {
			return sub, true
		}
		return labeledSubtree(n.Right, label)
	case Labeled:
		if bytes.Equal(n.Label, label) {
			return n.Tree, true
		}
		return nil, false
	default:
		return nil, false
	}
}
