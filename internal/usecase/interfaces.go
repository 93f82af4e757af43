package usecase

import (
	"context"
	"time"

	"veritip/internal/domain"
)

// TipSource is the ledger's read-only tip query. A nil tip with a nil error
// means the ledger has not produced a certified tip yet.
type TipSource interface {
	FetchTip(ctx context.Context) (*domain.CertifiedTip, error)
}

// CertificateAuthenticator validates the outer certificate against the
// trusted root key and extracts the digest committed for serviceID. The
// signature and delegation scheme live entirely behind this interface.
type CertificateAuthenticator interface {
	Authenticate(ctx context.Context, certificate, rootKey, serviceID []byte) (domain.CertifiedState, error)
}

type HashTreeService interface {
	RootDigest(tree []byte) ([]byte, error)
	ExtractFacts(tree []byte, labels []string) (facts []domain.TipFact, missing []string, err error)
}

type ReceiptRepository interface {
	Save(ctx context.Context, receipt domain.TipReceipt) (string, error)
	GetByID(ctx context.Context, id string) (*domain.TipReceipt, error)
}

type VerificationCache interface {
	Get(ctx context.Context, key string) (*domain.TipReceipt, bool, error)
	Put(ctx context.Context, key string, receipt domain.TipReceipt, ttl time.Duration) error
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}
