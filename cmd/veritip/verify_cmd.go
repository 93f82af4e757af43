package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"veritip/internal/domain"
	"veritip/internal/infra/certificate"
	"veritip/internal/infra/hashtree"
	"veritip/internal/infra/ledger"
	"veritip/internal/usecase"
)

const exitTipUnavailable = 2

type factDoc struct {
	Label   string  `json:"label"`
	Value   string  `json:"value"`
	Numeric *uint64 `json:"numeric,omitempty"`
}

type receiptDoc struct {
	ServiceID       string               `json:"service_id"`
	BindingValid    bool                 `json:"binding_valid"`
	RootDigest      string               `json:"root_digest"`
	CertifiedDigest string               `json:"certified_digest"`
	CertificateTime string               `json:"certificate_time"`
	Facts           []factDoc            `json:"facts,omitempty"`
	MissingLabels   []string             `json:"missing_labels,omitempty"`
	Summary         string               `json:"summary"`
	Policy          domain.PolicyReceipt `json:"policy,omitempty"`
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint(*l) }

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var certPath string
	var treePath string
	var ledgerURL string
	var rootKeyHex string
	var rootKeyBase64 string
	var serviceIDHex string
	var labels stringList
	var maxSkewSeconds int
	var outPath string

	fs.StringVar(&certPath, "cert", "", "certificate file (raw CBOR)")
	fs.StringVar(&treePath, "tree", "", "hash tree file (raw CBOR)")
	fs.StringVar(&ledgerURL, "ledger", "", "ledger base URL to fetch the tip from")
	fs.StringVar(&rootKeyHex, "root-key-hex", "", "trusted root public key hex")
	fs.StringVar(&rootKeyBase64, "root-key-base64", "", "trusted root public key base64")
	fs.StringVar(&serviceIDHex, "service-id-hex", "", "service identity hex")
	fs.Var(&labels, "label", "label to extract (repeatable)")
	fs.IntVar(&maxSkewSeconds, "max-skew-seconds", 300, "allowed certificate time skew in seconds")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if (certPath == "") != (treePath == "") {
		fmt.Fprintln(os.Stderr, "verify requires both --cert and --tree")
		return 1
	}
	if certPath == "" && ledgerURL == "" {
		fmt.Fprintln(os.Stderr, "verify requires --cert/--tree or --ledger")
		return 1
	}
	if (rootKeyHex == "" && rootKeyBase64 == "") || (rootKeyHex != "" && rootKeyBase64 != "") {
		fmt.Fprintln(os.Stderr, "verify requires exactly one of --root-key-hex or --root-key-base64")
		return 1
	}
	if serviceIDHex == "" {
		fmt.Fprintln(os.Stderr, "verify requires --service-id-hex")
		return 1
	}

	rootKey, err := parseKey(rootKeyHex, rootKeyBase64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse root key: %v\n", err)
		return 1
	}
	serviceID, err := hex.DecodeString(serviceIDHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse service id: %v\n", err)
		return 1
	}

	var tip *domain.CertifiedTip
	if certPath != "" {
		cert, err := os.ReadFile(certPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read certificate: %v\n", err)
			return 1
		}
		tree, err := os.ReadFile(treePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read tree: %v\n", err)
			return 1
		}
		tip = &domain.CertifiedTip{Certificate: cert, HashTree: tree}
	}

	verifier := certificate.NewVerifier(certificate.Ed25519Scheme{})
	verifier.MaxSkew = time.Duration(maxSkewSeconds) * time.Second

	uc := &usecase.VerifyCertifiedTip{
		Auth:      verifier,
		Trees:     &hashtree.Service{},
		RootKey:   rootKey,
		ServiceID: serviceID,
	}
	if ledgerURL != "" {
		client, err := ledger.NewClient(ledgerURL, &http.Client{Timeout: 15 * time.Second})
		if err != nil {
			fmt.Fprintf(os.Stderr, "ledger client: %v\n", err)
			return 1
		}
		uc.Source = client
	}

	receipt, err := uc.Execute(context.Background(), usecase.VerifyCertifiedTipRequest{
		Tip:    tip,
		Labels: labels,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTipUnavailable) {
			fmt.Fprintln(os.Stderr, "no certified tip available")
			return exitTipUnavailable
		}
		fmt.Fprintf(os.Stderr, "verify tip: %v\n", err)
		return 1
	}

	doc := receiptDoc{
		ServiceID:       hex.EncodeToString(receipt.ServiceID),
		BindingValid:    receipt.BindingValid,
		RootDigest:      hex.EncodeToString(receipt.RootDigest),
		CertifiedDigest: hex.EncodeToString(receipt.CertifiedDigest),
		CertificateTime: receipt.CertificateTime.UTC().Format(time.RFC3339Nano),
		MissingLabels:   receipt.MissingLabels,
		Summary:         receipt.Summary,
		Policy:          receipt.Policy,
	}
	for _, fact := range receipt.Facts {
		doc.Facts = append(doc.Facts, factDoc{
			Label:   fact.Label,
			Value:   hex.EncodeToString(fact.Value),
			Numeric: fact.Numeric,
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func parseKey(keyHex, keyBase64 string) ([]byte, error) {
	if keyHex != "" {
		return hex.DecodeString(keyHex)
	}
	return base64.StdEncoding.DecodeString(keyBase64)
}
