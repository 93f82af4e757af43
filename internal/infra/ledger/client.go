package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"veritip/internal/domain"
)

// Client issues the single read-only tip query against a ledger gateway.
// The gateway returns the optional (certificate, hash_tree) pair; a ledger
// that has not yet produced a certified tip answers 204 or a null body,
// which is reported as (nil, nil) rather than an error.
type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

const maxTipResponseBytes = 4 * 1024 * 1024

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("ledger base url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
	}, nil
}

type tipDoc struct {
	Certificate string `json:"certificate"`
	HashTree    string `json:"hash_tree"`
}

func (c *Client) FetchTip(ctx context.Context) (*domain.CertifiedTip, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tip", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("ledger tip query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger tip query: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTipResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("ledger tip query: %w", err)
	}
	if len(body) > maxTipResponseBytes {
		return nil, fmt.Errorf("ledger tip query: response exceeds %d bytes", maxTipResponseBytes)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var doc tipDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("ledger tip query: decode response: %w", err)
	}
	if doc.Certificate == "" && doc.HashTree == "" {
		return nil, nil
	}
	if doc.Certificate == "" || doc.HashTree == "" {
		return nil, errors.New("ledger tip query: response missing certificate or hash_tree")
	}

	certificate, err := base64.StdEncoding.DecodeString(doc.Certificate)
	if err != nil {
		return nil, fmt.Errorf("ledger tip query: decode certificate: %w", err)
	}
	hashTree, err := base64.StdEncoding.DecodeString(doc.HashTree)
	if err != nil {
		return nil, fmt.Errorf("ledger tip query: decode hash_tree: %w", err)
	}
	return &domain.CertifiedTip{Certificate: certificate, HashTree: hashTree}, nil
}
