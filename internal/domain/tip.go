package domain

import "time"

// CertifiedTip is the raw snapshot returned by a ledger's tip query: an
// opaque consensus certificate and the serialized hash tree it vouches for.
type CertifiedTip struct {
	Certificate []byte
	HashTree    []byte
}

// CertifiedState is the validated outcome of certificate authentication:
// the digest the service's identity committed to, and the consensus time
// the certificate was produced at.
type CertifiedState struct {
	Digest []byte
	Time   time.Time
}

type TipFact struct {
	Label   string  `json:"label"`
	Value   []byte  `json:"value"`
	Numeric *uint64 `json:"numeric,omitempty"`
}

type TipReceipt struct {
	ID              string        `json:"id,omitempty"`
	ServiceID       []byte        `json:"service_id"`
	BindingValid    bool          `json:"binding_valid"`
	RootDigest      []byte        `json:"root_digest"`
	CertifiedDigest []byte        `json:"certified_digest"`
	CertificateTime time.Time     `json:"certificate_time"`
	Facts           []TipFact     `json:"facts,omitempty"`
	MissingLabels   []string      `json:"missing_labels,omitempty"`
	Summary         string        `json:"summary"`
	VerifiedAt      time.Time     `json:"verified_at"`
	Policy          PolicyReceipt `json:"policy,omitempty"`
}

func (r *TipReceipt) Fact(label string) (TipFact, bool) {
	if r == nil {
		return TipFact{}, false
	}
	for _, fact := range r.Facts {
		if fact.Label == label {
			return fact, true
		}
	}
	return TipFact{}, false
}

type PolicyReceipt map[string]any
