package certificate

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"veritip/internal/domain"
	"veritip/internal/infra/hashtree"
)

var (
	testServiceID = []byte{0x00, 0x01, 0x02}
	testNow       = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func testKeyPair(t *testing.T) (ed25519.PrivateKey, ed25519.PublicKey) {
	t.Helper()
	seed := bytes.Repeat([]byte{0x5A}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed25519.PublicKey)
}

func certTree(certifiedData []byte, producedAt time.Time) hashtree.Node {
	return hashtree.Fork{
		Left: hashtree.Labeled{Label: []byte("service"), Tree: hashtree.Labeled{
			Label: testServiceID,
			Tree: hashtree.Labeled{
				Label: []byte("certified_data"),
				Tree:  hashtree.Leaf{Value: certifiedData},
			},
		}},
		Right: hashtree.Labeled{
			Label: []byte("time"),
			Tree:  hashtree.Leaf{Value: binary.AppendUvarint(nil, uint64(producedAt.UnixNano()))},
		},
	}
}

func signedCertificate(t *testing.T, tree hashtree.Node, priv ed25519.PrivateKey) []byte {
	t.Helper()
	root := hashtree.Digest(tree)
	data, err := Encode(Envelope{
		Tree:      tree,
		Signature: ed25519.Sign(priv, SignedMessage(root)),
	})
	if err != nil {
		t.Fatalf("encode certificate: %v", err)
	}
	return data
}

func testVerifier() *Verifier {
	v := NewVerifier(Ed25519Scheme{})
	v.Now = func() time.Time { return testNow }
	return v
}

func TestAuthenticateValid(t *testing.T) {
	priv, pub := testKeyPair(t)
	certified := bytes.Repeat([]byte{0xCD}, hashtree.DigestSize)
	cert := signedCertificate(t, certTree(certified, testNow.Add(-time.Minute)), priv)

	state, err := testVerifier().Authenticate(context.Background(), cert, pub, testServiceID)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !bytes.Equal(state.Digest, certified) {
		t.Fatalf("unexpected certified digest %x", state.Digest)
	}
	if !state.Time.Equal(testNow.Add(-time.Minute)) {
		t.Fatalf("unexpected certificate time %s", state.Time)
	}
}

func TestAuthenticateBadSignature(t *testing.T) {
	priv, pub := testKeyPair(t)
	certified := bytes.Repeat([]byte{0xCD}, hashtree.DigestSize)
	cert := signedCertificate(t, certTree(certified, testNow), priv)
	cert[len(cert)-1] ^= 0x01

	_, err := testVerifier().Authenticate(context.Background(), cert, pub, testServiceID)
	if !errors.Is(err, domain.ErrCertificateInvalid) {
		t.Fatalf("expected ErrCertificateInvalid, got %v", err)
	}
}

func TestAuthenticateWrongRootKey(t *testing.T) {
	priv, _ := testKeyPair(t)
	otherPriv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x77}, ed25519.SeedSize))
	certified := bytes.Repeat([]byte{0xCD}, hashtree.DigestSize)
	cert := signedCertificate(t, certTree(certified, testNow), priv)

	_, err := testVerifier().Authenticate(context.Background(), cert, otherPriv.Public().(ed25519.PublicKey), testServiceID)
	if !errors.Is(err, domain.ErrCertificateInvalid) {
		t.Fatalf("expected ErrCertificateInvalid, got %v", err)
	}
}

func TestAuthenticateStale(t *testing.T) {
	priv, pub := testKeyPair(t)
	certified := bytes.Repeat([]byte{0xCD}, hashtree.DigestSize)
	cert := signedCertificate(t, certTree(certified, testNow.Add(-time.Hour)), priv)

	_, err := testVerifier().Authenticate(context.Background(), cert, pub, testServiceID)
	if !errors.Is(err, domain.ErrCertificateInvalid) {
		t.Fatalf("expected ErrCertificateInvalid, got %v", err)
	}
}

func TestAuthenticateUnknownService(t *testing.T) {
	priv, pub := testKeyPair(t)
	certified := bytes.Repeat([]byte{0xCD}, hashtree.DigestSize)
	cert := signedCertificate(t, certTree(certified, testNow), priv)

	_, err := testVerifier().Authenticate(context.Background(), cert, pub, []byte{0xFF})
	if !errors.Is(err, domain.ErrCertificateInvalid) {
		t.Fatalf("expected ErrCertificateInvalid, got %v", err)
	}
}

func TestAuthenticateShortCertifiedData(t *testing.T) {
	priv, pub := testKeyPair(t)
	cert := signedCertificate(t, certTree([]byte{0xCD, 0xCD}, testNow), priv)

	_, err := testVerifier().Authenticate(context.Background(), cert, pub, testServiceID)
	if !errors.Is(err, domain.ErrMalformedCertificate) {
		t.Fatalf("expected ErrMalformedCertificate, got %v", err)
	}
}

func TestAuthenticateMissingTime(t *testing.T) {
	priv, pub := testKeyPair(t)
	certified := bytes.Repeat([]byte{0xCD}, hashtree.DigestSize)
	tree := hashtree.Labeled{Label: []byte("service"), Tree: hashtree.Labeled{
		Label: testServiceID,
		Tree: hashtree.Labeled{
			Label: []byte("certified_data"),
			Tree:  hashtree.Leaf{Value: certified},
		},
	}}
	cert := signedCertificate(t, tree, priv)

	_, err := testVerifier().Authenticate(context.Background(), cert, pub, testServiceID)
	if !errors.Is(err, domain.ErrMalformedCertificate) {
		t.Fatalf("expected ErrMalformedCertificate, got %v", err)
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	if _, err := Decode([]byte{0xFF, 0x00}); !errors.Is(err, domain.ErrMalformedCertificate) {
		t.Fatalf("expected ErrMalformedCertificate, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, domain.ErrMalformedCertificate) {
		t.Fatalf("expected ErrMalformedCertificate on empty input, got %v", err)
	}
}

func TestDecodeMissingSignature(t *testing.T) {
	tree := certTree(bytes.Repeat([]byte{0xCD}, hashtree.DigestSize), testNow)
	data, err := Encode(Envelope{Tree: tree, Signature: nil})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(data); !errors.Is(err, domain.ErrMalformedCertificate) {
		t.Fatalf("expected ErrMalformedCertificate, got %v", err)
	}
}
