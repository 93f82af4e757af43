package hashtree

import (
	"crypto/sha256"
)

const DigestSize = 32

const (
	tagEmpty   = 0
	tagFork    = 1
	tagLabeled = 2
	tagLeaf    = 3
	tagPruned  = 4
)

// Node is a node of an authenticated, selectively-prunable tree. Exactly
// five variants exist: Empty, Fork, Labeled, Leaf and Pruned.
type Node interface {
	isNode()
}

type Empty struct{}

type Fork struct {
	Left  Node
	Right Node
}

type Labeled struct {
	Label []byte
	Tree  Node
}

type Leaf struct {
	Value []byte
}

// Pruned carries the digest of a subtree whose content the producer elided.
// The digest is trusted as-is and never recomputed.
type Pruned struct {
	Digest [DigestSize]byte
}

func (Empty) isNode()   {}
func (Fork) isNode()    {}
func (Labeled) isNode() {}
func (Leaf) isNode()    {}
func (Pruned) isNode()  {}

// Digest computes the root digest of a tree. Each variant hashes under its
// own tag byte so that no two variants can collide on the same content.
func Digest(node Node) [DigestSize]byte {
	switch n := node.(type) {
	case Empty:
		return sha256.Sum256([]byte{tagEmpty})
	case Fork:
		left := Digest(n.Left)
		right := Digest(n.Right)
		h := sha256.New()
		h.Write([]byte{tagFork})
		h.Write(left[:])
		h.Write(right[:])
		return sumFixed(h.Sum(nil))
	case Labeled:
		sub := Digest(n.Tree)
		h := sha256.New()
		h.Write([]byte{tagLabeled})
		h.Write(n.Label)
		h.Write(sub[:])
		return sumFixed(h.Sum(nil))
	case Leaf:
		h := sha256.New()
		h.Write([]byte{tagLeaf})
		h.Write(n.Value)
		return sumFixed(h.Sum(nil))
	case Pruned:
		return n.Digest
	}
	// Node is sealed; a value outside the five variants cannot be built
	// through Decode or the exported constructors.
	panic("hashtree: unknown node variant")
}

func sumFixed(sum []byte) [DigestSize]byte {
	var out [DigestSize]byte
	copy(out[:], sum)
	return out
}
