package usecase

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritip/internal/domain"
)

// Verification stages, in order. A failure at any stage aborts the run and
// is reported with the stage it failed in; there is no partial success and
// no retry inside the pipeline.
const (
	StageFetch        = "fetch"
	StageDecode       = "decode"
	StageAuthenticate = "certificate_authentication"
	StageRootVerify   = "root_verification"
	StageExtract      = "extraction"
)

type VerifyCertifiedTipRequest struct {
	// Tip holds the snapshot to verify. When nil the pipeline performs the
	// single tip query against Source instead.
	Tip    *domain.CertifiedTip
	Labels []string
}

type VerifyCertifiedTip struct {
	Source   TipSource
	Auth     CertificateAuthenticator
	Trees    HashTreeService
	Policy   PolicyEngine
	Receipts ReceiptRepository
	Cache    VerificationCache
	CacheTTL time.Duration

	RootKey   []byte
	ServiceID []byte
	Now       func() time.Time
}

func (uc *VerifyCertifiedTip) Execute(ctx context.Context, req VerifyCertifiedTipRequest) (*domain.TipReceipt, error) {
	if uc.Auth == nil || uc.Trees == nil {
		return nil, errors.New("authenticator and hash tree service are required")
	}

	tip := req.Tip
	if tip == nil {
		if uc.Source == nil {
			return nil, domain.ErrTipUnavailable
		}
		fetched, err := uc.Source.FetchTip(ctx)
		if err != nil {
			return nil, stageError(StageFetch, err)
		}
		if fetched == nil {
			return nil, domain.ErrTipUnavailable
		}
		tip = fetched
	}
	if len(tip.Certificate) == 0 {
		return nil, stageError(StageDecode, fmt.Errorf("%w: empty certificate", domain.ErrMalformedCertificate))
	}
	if len(tip.HashTree) == 0 {
		return nil, stageError(StageDecode, fmt.Errorf("%w: empty hash tree", domain.ErrMalformedTree))
	}

	cacheKey := ""
	if uc.Cache != nil {
		cacheKey = receiptCacheKey(uc.ServiceID, tip, req.Labels)
		if cached, ok, err := uc.Cache.Get(ctx, cacheKey); err == nil && ok && cached != nil {
			receipt := *cached
			return &receipt, nil
		}
	}

	root, err := uc.Trees.RootDigest(tip.HashTree)
	if err != nil {
		return nil, stageError(StageDecode, err)
	}

	state, err := uc.Auth.Authenticate(ctx, tip.Certificate, uc.RootKey, uc.ServiceID)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedCertificate) {
			return nil, stageError(StageDecode, err)
		}
		return nil, stageError(StageAuthenticate, err)
	}

	if len(root) != len(state.Digest) || subtle.ConstantTimeCompare(root, state.Digest) != 1 {
		return nil, stageError(StageRootVerify, fmt.Errorf("%w: tree root %x, certified digest %x",
			domain.ErrBindingMismatch, root, state.Digest))
	}

	facts, missing, err := uc.Trees.ExtractFacts(tip.HashTree, req.Labels)
	if err != nil {
		return nil, stageError(StageExtract, err)
	}

	now := time.Now().UTC()
	if uc.Now != nil {
		now = uc.Now().UTC()
	}
	receipt := &domain.TipReceipt{
		ServiceID:       uc.ServiceID,
		BindingValid:    true,
		RootDigest:      root,
		CertifiedDigest: state.Digest,
		CertificateTime: state.Time,
		Facts:           facts,
		MissingLabels:   missing,
		Summary:         summarize(root, facts, missing),
		VerifiedAt:      now,
	}

	if uc.Policy != nil {
		eval, err := uc.Policy.Evaluate(ctx, policyInputFromReceipt(receipt))
		if err != nil {
			return nil, err
		}
		receipt.Policy = policyReceiptFromEvaluation(eval)
	}

	if uc.Receipts != nil {
		id, err := uc.Receipts.Save(ctx, *receipt)
		if err != nil {
			return nil, err
		}
		receipt.ID = id
	}

	if uc.Cache != nil && cacheKey != "" {
		// Cache writes are best-effort; a verified receipt is still returned.
		_ = uc.Cache.Put(ctx, cacheKey, *receipt, uc.CacheTTL)
	}
	return receipt, nil
}

func stageError(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}

func summarize(root []byte, facts []domain.TipFact, missing []string) string {
	summary := fmt.Sprintf("certified tip verified: root %s, %d fact(s)", hex.EncodeToString(root), len(facts))
	if len(missing) > 0 {
		summary += fmt.Sprintf(", missing labels: %s", strings.Join(missing, ", "))
	}
	return summary
}

func policyInputFromReceipt(receipt *domain.TipReceipt) domain.PolicyInput {
	input := domain.PolicyInput{
		Verification: domain.PolicyVerification{
			BindingValid:    receipt.BindingValid,
			CertificateTime: receipt.CertificateTime.UTC().Format(time.RFC3339Nano),
			ServiceID:       hex.EncodeToString(receipt.ServiceID),
		},
		Missing: receipt.MissingLabels,
	}
	if len(receipt.Facts) > 0 {
		input.Facts = make(map[string]string, len(receipt.Facts))
		for _, fact := range receipt.Facts {
			input.Facts[fact.Label] = hex.EncodeToString(fact.Value)
			if fact.Numeric != nil {
				if input.Numerics == nil {
					input.Numerics = make(map[string]uint64)
				}
				input.Numerics[fact.Label] = *fact.Numeric
			}
		}
	}
	return input
}

func policyReceiptFromEvaluation(eval domain.PolicyEvaluation) domain.PolicyReceipt {
	receipt := domain.PolicyReceipt{
		"bundle_hash": eval.BundleHash,
		"result":      eval.Result,
	}
	if eval.BundleID != "" {
		receipt["bundle_id"] = eval.BundleID
	}
	return receipt
}

func receiptCacheKey(serviceID []byte, tip *domain.CertifiedTip, labels []string) string {
	payload := make([]byte, 0, len(serviceID)+len(tip.Certificate)+len(tip.HashTree)+64)
	payload = append(payload, serviceID...)
	payload = append(payload, '|')
	payload = append(payload, tip.Certificate...)
	payload = append(payload, '|')
	payload = append(payload, tip.HashTree...)
	for _, label := range labels {
		payload = append(payload, '|')
		payload = append(payload, label...)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
