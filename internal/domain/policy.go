package domain

type PolicyInput struct {
	Verification PolicyVerification `json:"verification"`
	Facts        map[string]string  `json:"facts,omitempty"`
	Numerics     map[string]uint64  `json:"numerics,omitempty"`
	Missing      []string           `json:"missing,omitempty"`
}

type PolicyVerification struct {
	BindingValid    bool   `json:"binding_valid"`
	CertificateTime string `json:"certificate_time,omitempty"`
	ServiceID       string `json:"service_id,omitempty"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}
