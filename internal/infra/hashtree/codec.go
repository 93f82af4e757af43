package hashtree

import (
	"fmt"

	"veritip/internal/domain"

	"github.com/fxamacker/cbor/v2"
)

// Wire form: every node is a CBOR array whose first element is the node tag.
//   [0]                  Empty
//   [1, left, right]     Fork
//   [2, label, subtree]  Labeled
//   [3, value]           Leaf
//   [4, digest]          Pruned, digest exactly 32 bytes
// The tag values and this layout are a fixed external contract.

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func Decode(data []byte) (Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrMalformedTree)
	}
	return decodeNode(cbor.RawMessage(data))
}

func decodeNode(raw cbor.RawMessage) (Node, error) {
	var elems []cbor.RawMessage
	if err := cbor.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedTree, err)
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: empty node array", domain.ErrMalformedTree)
	}
	var tag uint64
	if err := cbor.Unmarshal(elems[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: node tag is not an unsigned integer", domain.ErrMalformedTree)
	}

	switch tag {
	case tagEmpty:
		if len(elems) != 1 {
			return nil, arityError(tag, 1, len(elems))
		}
		return Empty{}, nil
	case tagFork:
		if len(elems) != 3 {
			return nil, arityError(tag, 3, len(elems))
		}
		left, err := decodeNode(elems[1])
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(elems[2])
		if err != nil {
			return nil, err
		}
		return Fork{Left: left, Right: right}, nil
	case tagLabeled:
		if len(elems) != 3 {
			return nil, arityError(tag, 3, len(elems))
		}
		label, err := decodeBytes(elems[1], tag)
		if err != nil {
			return nil, err
		}
		sub, err := decodeNode(elems[2])
		if err != nil {
			return nil, err
		}
		return Labeled{Label: label, Tree: sub}, nil
	case tagLeaf:
		if len(elems) != 2 {
			return nil, arityError(tag, 2, len(elems))
		}
		value, err := decodeBytes(elems[1], tag)
		if err != nil {
			return nil, err
		}
		return Leaf{Value: value}, nil
	case tagPruned:
		if len(elems) != 2 {
			return nil, arityError(tag, 2, len(elems))
		}
		digest, err := decodeBytes(elems[1], tag)
		if err != nil {
			return nil, err
		}
		if len(digest) != DigestSize {
			return nil, fmt.Errorf("%w: pruned digest is %d bytes, want %d", domain.ErrMalformedTree, len(digest), DigestSize)
		}
		var fixed [DigestSize]byte
		copy(fixed[:], digest)
		return Pruned{Digest: fixed}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node tag %d", domain.ErrMalformedTree, tag)
	}
}

func decodeBytes(raw cbor.RawMessage, tag uint64) ([]byte, error) {
	var out []byte
	if err := cbor.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: tag %d payload is not a byte string", domain.ErrMalformedTree, tag)
	}
	return out, nil
}

func arityError(tag uint64, want, got int) error {
	return fmt.Errorf("%w: tag %d node has %d elements, want %d", domain.ErrMalformedTree, tag, got, want)
}

func Encode(node Node) ([]byte, error) {
	return encMode.Marshal(encodeValue(node))
}

func encodeValue(node Node) []any {
	switch n := node.(type) {
	case Empty:
		return []any{uint64(tagEmpty)}
	case Fork:
		return []any{uint64(tagFork), encodeValue(n.Left), encodeValue(n.Right)}
	case Labeled:
		return []any{uint64(tagLabeled), byteString(n.Label), encodeValue(n.Tree)}
	case Leaf:
		return []any{uint64(tagLeaf), byteString(n.Value)}
	case Pruned:
		return []any{uint64(tagPruned), n.Digest[:]}
	}
	panic("hashtree: unknown node variant")
}

func byteString(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
