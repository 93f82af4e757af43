// Package certify is the producer-side counterpart to the verification
// pipeline: it builds labeled hash trees and mints signed certified tips
// for them. It is intended for test fixtures and tooling, not for
// production ledgers.
package certify

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"time"

	"veritip/internal/domain"
	"veritip/internal/infra/certificate"
	"veritip/internal/infra/hashtree"
)

type Entry struct {
	Label string
	Value []byte
}

// NumericValue encodes an unsigned integer the way numeric leaves are
// stored in a tree.
func NumericValue(n uint64) []byte {
	return binary.AppendUvarint(nil, n)
}

// BuildTree arranges entries into a tree of labeled leaves. Entries keep
// their given order, combined left-to-right with forks.
func BuildTree(entries []Entry) hashtree.Node {
	if len(entries) == 0 {
		return hashtree.Empty{}
	}
	node := labeledLeaf(entries[0])
	for _, entry := range entries[1:] {
		node = hashtree.Fork{Left: node, Right: labeledLeaf(entry)}
	}
	return node
}

func labeledLeaf(entry Entry) hashtree.Node {
	return hashtree.Labeled{
		Label: []byte(entry.Label),
		Tree:  hashtree.Leaf{Value: entry.Value},
	}
}

// Tip signs tree on behalf of serviceID and returns the certified tip the
// verification pipeline accepts: the serialized tree plus a certificate
// binding the tree's root digest to the service at producedAt.
func Tip(priv ed25519.PrivateKey, serviceID []byte, producedAt time.Time, tree hashtree.Node) (domain.CertifiedTip, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return domain.CertifiedTip{}, errors.New("invalid ed25519 private key length")
	}
	if len(serviceID) == 0 {
		return domain.CertifiedTip{}, errors.New("service id is required")
	}

	treeBytes, err := hashtree.Encode(tree)
	if err != nil {
		return domain.CertifiedTip{}, err
	}
	digest := hashtree.Digest(tree)

	certTree := hashtree.Fork{
		Left: hashtree.Labeled{Label: []byte("service"), Tree: hashtree.Labeled{
			Label: serviceID,
			Tree: hashtree.Labeled{
				Label: []byte("certified_data"),
				Tree:  hashtree.Leaf{Value: digest[:]},
			},
		}},
		Right: hashtree.Labeled{
			Label: []byte("time"),
			Tree:  hashtree.Leaf{Value: binary.AppendUvarint(nil, uint64(producedAt.UnixNano()))},
		},
	}
	certRoot := hashtree.Digest(certTree)
	cert, err := certificate.Encode(certificate.Envelope{
		Tree:      certTree,
		Signature: ed25519.Sign(priv, certificate.SignedMessage(certRoot)),
	})
	if err != nil {
		return domain.CertifiedTip{}, err
	}
	return domain.CertifiedTip{Certificate: cert, HashTree: treeBytes}, nil
}
