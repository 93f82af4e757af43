package usecase

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"veritip/internal/domain"
	"veritip/internal/infra/certificate"
	"veritip/internal/infra/hashtree"
)

var (
	pipelineServiceID = []byte{0x00, 0x01, 0x02}
	pipelineNow       = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

type staticTipSource struct {
	tip *domain.CertifiedTip
	err error
}

func (s *staticTipSource) FetchTip(ctx context.Context) (*domain.CertifiedTip, error) {
	return s.tip, s.err
}

type memReceiptRepo struct {
	saved []domain.TipReceipt
}

func (r *memReceiptRepo) Save(ctx context.Context, receipt domain.TipReceipt) (string, error) {
	r.saved = append(r.saved, receipt)
	return "receipt-1", nil
}

func (r *memReceiptRepo) GetByID(ctx context.Context, id string) (*domain.TipReceipt, error) {
	for i := range r.saved {
		if r.saved[i].ID == id {
			return &r.saved[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type memCache struct {
	entries map[string]domain.TipReceipt
	puts    int
}

func (c *memCache) Get(ctx context.Context, key string) (*domain.TipReceipt, bool, error) {
	if receipt, ok := c.entries[key]; ok {
		return &receipt, true, nil
	}
	return nil, false, nil
}

func (c *memCache) Put(ctx context.Context, key string, receipt domain.TipReceipt, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string]domain.TipReceipt)
	}
	c.entries[key] = receipt
	c.puts++
	return nil
}

type staticPolicyEngine struct {
	eval      domain.PolicyEvaluation
	lastInput *domain.PolicyInput
}

func (e *staticPolicyEngine) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	e.lastInput = &input
	return e.eval, nil
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(ctx context.Context, cert, rootKey, serviceID []byte) (domain.CertifiedState, error) {
	return domain.CertifiedState{}, domain.ErrCertificateInvalid
}

func pipelineKeyPair() (ed25519.PrivateKey, ed25519.PublicKey) {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x5A}, ed25519.SeedSize))
	return priv, priv.Public().(ed25519.PublicKey)
}

func tipTree() hashtree.Node {
	return hashtree.Fork{
		Left: hashtree.Labeled{
			Label: []byte("last_block_hash"),
			Tree:  hashtree.Leaf{Value: bytes.Repeat([]byte{0xAB}, 32)},
		},
		Right: hashtree.Labeled{
			Label: []byte("last_block_index"),
			Tree:  hashtree.Leaf{Value: binary.AppendUvarint(nil, 624485)},
		},
	}
}

func certifiedTipFor(t *testing.T, tree hashtree.Node, priv ed25519.PrivateKey) *domain.CertifiedTip {
	t.Helper()
	treeBytes, err := hashtree.Encode(tree)
	if err != nil {
		t.Fatalf("encode tree: %v", err)
	}
	digest := hashtree.Digest(tree)
	certTree := hashtree.Fork{
		Left: hashtree.Labeled{Label: []byte("service"), Tree: hashtree.Labeled{
			Label: pipelineServiceID,
			Tree: hashtree.Labeled{
				Label: []byte("certified_data"),
				Tree:  hashtree.Leaf{Value: digest[:]},
			},
		}},
		Right: hashtree.Labeled{
			Label: []byte("time"),
			Tree:  hashtree.Leaf{Value: binary.AppendUvarint(nil, uint64(pipelineNow.UnixNano()))},
		},
	}
	certRoot := hashtree.Digest(certTree)
	cert, err := certificate.Encode(certificate.Envelope{
		Tree:      certTree,
		Signature: ed25519.Sign(priv, certificate.SignedMessage(certRoot)),
	})
	if err != nil {
		t.Fatalf("encode certificate: %v", err)
	}
	return &domain.CertifiedTip{Certificate: cert, HashTree: treeBytes}
}

func newPipeline(pub ed25519.PublicKey) *VerifyCertifiedTip {
	verifier := certificate.NewVerifier(certificate.Ed25519Scheme{})
	verifier.Now = func() time.Time { return pipelineNow }
	return &VerifyCertifiedTip{
		Auth:      verifier,
		Trees:     &hashtree.Service{},
		RootKey:   pub,
		ServiceID: pipelineServiceID,
		Now:       func() time.Time { return pipelineNow },
	}
}

func TestVerifyCertifiedTip_EndToEnd(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)

	repo := &memReceiptRepo{}
	cache := &memCache{}
	policy := &staticPolicyEngine{eval: domain.PolicyEvaluation{
		BundleID:   "bundle-1",
		BundleHash: "deadbeef",
		Result:     domain.PolicyResult{Allow: true},
	}}

	uc := newPipeline(pub)
	uc.Receipts = repo
	uc.Cache = cache
	uc.CacheTTL = time.Minute
	uc.Policy = policy

	receipt, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip:    tip,
		Labels: []string{"last_block_hash", "last_block_index"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.BindingValid {
		t.Fatal("expected binding valid")
	}
	if receipt.ID != "receipt-1" {
		t.Fatalf("unexpected receipt id %q", receipt.ID)
	}
	if !bytes.Equal(receipt.RootDigest, receipt.CertifiedDigest) {
		t.Fatal("root digest and certified digest should match")
	}
	if len(receipt.Facts) != 2 || len(receipt.MissingLabels) != 0 {
		t.Fatalf("unexpected facts %v missing %v", receipt.Facts, receipt.MissingLabels)
	}
	hash, ok := receipt.Fact("last_block_hash")
	if !ok || !bytes.Equal(hash.Value, bytes.Repeat([]byte{0xAB}, 32)) {
		t.Fatalf("unexpected last_block_hash fact %v", hash)
	}
	index, ok := receipt.Fact("last_block_index")
	if !ok || index.Numeric == nil || *index.Numeric != 624485 {
		t.Fatalf("unexpected last_block_index fact %v", index)
	}
	if !receipt.CertificateTime.Equal(pipelineNow) {
		t.Fatalf("unexpected certificate time %s", receipt.CertificateTime)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected one saved receipt, got %d", len(repo.saved))
	}
	if cache.puts != 1 {
		t.Fatalf("expected one cache write, got %d", cache.puts)
	}
	if policy.lastInput == nil {
		t.Fatal("expected policy evaluation")
	}
	if policy.lastInput.Numerics["last_block_index"] != 624485 {
		t.Fatalf("unexpected policy numerics %v", policy.lastInput.Numerics)
	}
	if receipt.Policy["bundle_hash"] != "deadbeef" {
		t.Fatalf("unexpected policy receipt %v", receipt.Policy)
	}
}

func TestVerifyCertifiedTip_Deterministic(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)
	uc := newPipeline(pub)
	req := VerifyCertifiedTipRequest{Tip: tip, Labels: []string{"last_block_index"}}

	first, err := uc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := uc.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !bytes.Equal(first.RootDigest, second.RootDigest) || first.Summary != second.Summary {
		t.Fatal("repeated verification of the same tip diverged")
	}
}

func TestVerifyCertifiedTip_TamperedTree(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)
	uc := newPipeline(pub)

	for i := range tip.HashTree {
		mutated := make([]byte, len(tip.HashTree))
		copy(mutated, tip.HashTree)
		mutated[i] ^= 0x01

		receipt, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{
			Tip: &domain.CertifiedTip{Certificate: tip.Certificate, HashTree: mutated},
		})
		if err == nil {
			t.Fatalf("byte %d: tampered tree verified, receipt %+v", i, receipt)
		}
		if !errors.Is(err, domain.ErrBindingMismatch) && !errors.Is(err, domain.ErrMalformedTree) {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
	}
}

func TestVerifyCertifiedTip_BindingMismatch(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)

	otherTree, err := hashtree.Encode(hashtree.Labeled{
		Label: []byte("last_block_index"),
		Tree:  hashtree.Leaf{Value: binary.AppendUvarint(nil, 624486)},
	})
	if err != nil {
		t.Fatalf("encode tree: %v", err)
	}

	uc := newPipeline(pub)
	_, err = uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip: &domain.CertifiedTip{Certificate: tip.Certificate, HashTree: otherTree},
	})
	if !errors.Is(err, domain.ErrBindingMismatch) {
		t.Fatalf("expected ErrBindingMismatch, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), StageRootVerify+":") {
		t.Fatalf("expected %s stage, got %v", StageRootVerify, err)
	}
}

func TestVerifyCertifiedTip_MissingLabelNonFatal(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)
	uc := newPipeline(pub)

	receipt, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip:    tip,
		Labels: []string{"last_block_hash", "no_such_label"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.BindingValid {
		t.Fatal("expected binding valid")
	}
	if len(receipt.Facts) != 1 {
		t.Fatalf("unexpected facts %v", receipt.Facts)
	}
	if len(receipt.MissingLabels) != 1 || receipt.MissingLabels[0] != "no_such_label" {
		t.Fatalf("unexpected missing labels %v", receipt.MissingLabels)
	}
	if !strings.Contains(receipt.Summary, "no_such_label") {
		t.Fatalf("summary should name the missing label: %q", receipt.Summary)
	}
}

func TestVerifyCertifiedTip_AbsentTip(t *testing.T) {
	_, pub := pipelineKeyPair()
	uc := newPipeline(pub)
	uc.Source = &staticTipSource{tip: nil}

	if _, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{}); !errors.Is(err, domain.ErrTipUnavailable) {
		t.Fatalf("expected ErrTipUnavailable, got %v", err)
	}

	uc.Source = nil
	if _, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{}); !errors.Is(err, domain.ErrTipUnavailable) {
		t.Fatalf("expected ErrTipUnavailable without source, got %v", err)
	}
}

func TestVerifyCertifiedTip_FetchError(t *testing.T) {
	_, pub := pipelineKeyPair()
	uc := newPipeline(pub)
	uc.Source = &staticTipSource{err: errors.New("ledger down")}

	_, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{})
	if err == nil || !strings.HasPrefix(err.Error(), StageFetch+":") {
		t.Fatalf("expected %s stage error, got %v", StageFetch, err)
	}
}

func TestVerifyCertifiedTip_FetchedTipVerifies(t *testing.T) {
	priv, pub := pipelineKeyPair()
	uc := newPipeline(pub)
	uc.Source = &staticTipSource{tip: certifiedTipFor(t, tipTree(), priv)}

	receipt, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{Labels: []string{"last_block_index"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.BindingValid || len(receipt.Facts) != 1 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestVerifyCertifiedTip_StageClassification(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)
	uc := newPipeline(pub)

	_, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip: &domain.CertifiedTip{Certificate: tip.Certificate, HashTree: []byte{0xFF, 0x00}},
	})
	if !errors.Is(err, domain.ErrMalformedTree) || !strings.HasPrefix(err.Error(), StageDecode+":") {
		t.Fatalf("expected %s stage with ErrMalformedTree, got %v", StageDecode, err)
	}

	_, err = uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip: &domain.CertifiedTip{Certificate: []byte{0xFF, 0x00}, HashTree: tip.HashTree},
	})
	if !errors.Is(err, domain.ErrMalformedCertificate) || !strings.HasPrefix(err.Error(), StageDecode+":") {
		t.Fatalf("expected %s stage with ErrMalformedCertificate, got %v", StageDecode, err)
	}

	badSig := make([]byte, len(tip.Certificate))
	copy(badSig, tip.Certificate)
	badSig[len(badSig)-1] ^= 0x01
	_, err = uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip: &domain.CertifiedTip{Certificate: badSig, HashTree: tip.HashTree},
	})
	if !errors.Is(err, domain.ErrCertificateInvalid) || !strings.HasPrefix(err.Error(), StageAuthenticate+":") {
		t.Fatalf("expected %s stage with ErrCertificateInvalid, got %v", StageAuthenticate, err)
	}

	_, err = uc.Execute(context.Background(), VerifyCertifiedTipRequest{
		Tip: &domain.CertifiedTip{Certificate: nil, HashTree: tip.HashTree},
	})
	if !errors.Is(err, domain.ErrMalformedCertificate) {
		t.Fatalf("expected ErrMalformedCertificate on empty certificate, got %v", err)
	}
}

func TestVerifyCertifiedTip_CacheHit(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)

	uc := newPipeline(pub)
	cache := &memCache{}
	uc.Cache = cache
	uc.CacheTTL = time.Minute

	first, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{Tip: tip})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}

	// On a warm cache the authenticator is never consulted.
	uc.Auth = failingAuthenticator{}
	second, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{Tip: tip})
	if err != nil {
		t.Fatalf("cached execute: %v", err)
	}
	if !bytes.Equal(first.RootDigest, second.RootDigest) {
		t.Fatal("cached receipt diverged")
	}
	if cache.puts != 1 {
		t.Fatalf("expected a single cache write, got %d", cache.puts)
	}
}

func TestVerifyCertifiedTip_PolicyErrorAborts(t *testing.T) {
	priv, pub := pipelineKeyPair()
	tip := certifiedTipFor(t, tipTree(), priv)

	uc := newPipeline(pub)
	uc.Policy = policyEngineFunc(func(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
		return domain.PolicyEvaluation{}, errors.New("bundle unreadable")
	})

	if _, err := uc.Execute(context.Background(), VerifyCertifiedTipRequest{Tip: tip}); err == nil {
		t.Fatal("expected policy error to abort")
	}
}

type policyEngineFunc func(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)

func (f policyEngineFunc) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error) {
	return f(ctx, input)
}
