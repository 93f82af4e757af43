package certificate

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"veritip/internal/domain"
	"veritip/internal/infra/hashtree"
)

// SignatureScheme is the outer signature algorithm over the certificate's
// root digest. It is injected so the pipeline can run against synthetic
// certificates in tests and against whatever scheme the ledger's consensus
// layer actually uses.
type SignatureScheme interface {
	Verify(message, signature, publicKey []byte) error
}

type Ed25519Scheme struct{}

func (Ed25519Scheme) Verify(message, signature, publicKey []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key length: %d", len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("invalid ed25519 signature length: %d", len(signature))
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return errors.New("ed25519 verification failed")
	}
	return nil
}

// Root digests are signed under a fixed, length-prefixed separator so a
// certificate signature can never be confused with any other signed payload.
var stateDomainSeparator = []byte("\x17veritip-certified-state")

func SignedMessage(rootDigest [hashtree.DigestSize]byte) []byte {
	msg := make([]byte, 0, len(stateDomainSeparator)+hashtree.DigestSize)
	msg = append(msg, stateDomainSeparator...)
	msg = append(msg, rootDigest[:]...)
	return msg
}

var (
	labelTime          = []byte("time")
	labelService       = []byte("service")
	labelCertifiedData = []byte("certified_data")
)

const DefaultMaxSkew = 5 * time.Minute

type Verifier struct {
	Scheme  SignatureScheme
	MaxSkew time.Duration
	Now     func() time.Time
}

func NewVerifier(scheme SignatureScheme) *Verifier {
	return &Verifier{
		Scheme:  scheme,
		MaxSkew: DefaultMaxSkew,
		Now:     time.Now,
	}
}

// Authenticate validates the outer signature over the certificate tree's
// root digest against rootKey, checks the certificate's consensus time
// against the allowed skew, and extracts the 32-byte certified data digest
// committed at ("service", serviceID, "certified_data").
func (v *Verifier) Authenticate(_ context.Context, certificate, rootKey, serviceID []byte) (domain.CertifiedState, error) {
	env, err := Decode(certificate)
	if err != nil {
		return domain.CertifiedState{}, err
	}
	if v.Scheme == nil {
		return domain.CertifiedState{}, fmt.Errorf("%w: no signature scheme configured", domain.ErrCertificateInvalid)
	}

	root := hashtree.Digest(env.Tree)
	if err := v.Scheme.Verify(SignedMessage(root), env.Signature, rootKey); err != nil {
		return domain.CertifiedState{}, fmt.Errorf("%w: %v", domain.ErrCertificateInvalid, err)
	}

	producedAt, err := certificateTime(env.Tree)
	if err != nil {
		return domain.CertifiedState{}, err
	}
	if v.MaxSkew > 0 {
		now := time.Now()
		if v.Now != nil {
			now = v.Now()
		}
		skew := now.Sub(producedAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.MaxSkew {
			return domain.CertifiedState{}, fmt.Errorf("%w: certificate time %s outside allowed skew %s",
				domain.ErrCertificateInvalid, producedAt.Format(time.RFC3339), v.MaxSkew)
		}
	}

	data, ok := hashtree.LeafValue(env.Tree, labelService, serviceID, labelCertifiedData)
	if !ok {
		return domain.CertifiedState{}, fmt.Errorf("%w: no certified data for service %x", domain.ErrCertificateInvalid, serviceID)
	}
	if len(data) != hashtree.DigestSize {
		return domain.CertifiedState{}, fmt.Errorf("%w: certified data is %d bytes, want %d",
			domain.ErrMalformedCertificate, len(data), hashtree.DigestSize)
	}
	return domain.CertifiedState{Digest: data, Time: producedAt}, nil
}

func certificateTime(tree hashtree.Node) (time.Time, error) {
	raw, ok := hashtree.LeafValue(tree, labelTime)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: time leaf absent", domain.ErrMalformedCertificate)
	}
	nanos, n := binary.Uvarint(raw)
	if n <= 0 || n != len(raw) {
		return time.Time{}, fmt.Errorf("%w: time leaf is not a varint", domain.ErrMalformedCertificate)
	}
	return time.Unix(0, int64(nanos)).UTC(), nil
}
