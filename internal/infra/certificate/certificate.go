package certificate

import (
	"fmt"

	"veritip/internal/domain"
	"veritip/internal/infra/hashtree"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is the decoded consensus certificate: a hash tree over the
// service's committed state and a signature over that tree's root digest.
// The envelope wire form is a CBOR map {tree, signature}.
type Envelope struct {
	Tree      hashtree.Node
	Signature []byte
}

type envelopeDoc struct {
	Tree      cbor.RawMessage `cbor:"tree"`
	Signature []byte          `cbor:"signature"`
}

func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrMalformedCertificate)
	}
	var doc envelopeDoc
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCertificate, err)
	}
	if len(doc.Tree) == 0 {
		return nil, fmt.Errorf("%w: tree field missing", domain.ErrMalformedCertificate)
	}
	if len(doc.Signature) == 0 {
		return nil, fmt.Errorf("%w: signature field missing", domain.ErrMalformedCertificate)
	}
	tree, err := hashtree.Decode(doc.Tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCertificate, err)
	}
	return &Envelope{Tree: tree, Signature: doc.Signature}, nil
}

func Encode(env Envelope) ([]byte, error) {
	tree, err := hashtree.Encode(env.Tree)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(envelopeDoc{Tree: cbor.RawMessage(tree), Signature: env.Signature})
}
