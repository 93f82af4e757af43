package http

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"veritip/internal/domain"
	"veritip/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type verifyRequest struct {
	Certificate string   `json:"certificate"`
	HashTree    string   `json:"hash_tree"`
	Labels      []string `json:"labels,omitempty"`
}

type factResponse struct {
	Label   string  `json:"label"`
	Value   string  `json:"value"`
	Numeric *uint64 `json:"numeric,omitempty"`
}

type receiptResponse struct {
	ID              string               `json:"id,omitempty"`
	ServiceID       string               `json:"service_id"`
	BindingValid    bool                 `json:"binding_valid"`
	RootDigest      string               `json:"root_digest"`
	CertifiedDigest string               `json:"certified_digest"`
	CertificateTime string               `json:"certificate_time"`
	Facts           []factResponse       `json:"facts,omitempty"`
	MissingLabels   []string             `json:"missing_labels,omitempty"`
	Summary         string               `json:"summary"`
	VerifiedAt      string               `json:"verified_at"`
	Policy          domain.PolicyReceipt `json:"policy,omitempty"`
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.enforceRateLimit(c, "verify") {
		return
	}
	if s.verifyUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	cert, err := base64.StdEncoding.DecodeString(req.Certificate)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENCODING", "certificate is not valid base64")
		return
	}
	tree, err := base64.StdEncoding.DecodeString(req.HashTree)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENCODING", "hash_tree is not valid base64")
		return
	}
	labels := req.Labels
	if labels == nil {
		labels = s.defaultLabels
	}

	receipt, err := s.verifyUC.Execute(c.Request.Context(), usecase.VerifyCertifiedTipRequest{
		Tip:    &domain.CertifiedTip{Certificate: cert, HashTree: tree},
		Labels: labels,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildReceiptResponse(receipt))
}

func (s *Server) handleTip(c *gin.Context) {
	if !s.enforceRateLimit(c, "tip") {
		return
	}
	if s.verifyUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	labels := s.defaultLabels
	if raw := strings.TrimSpace(c.Query("labels")); raw != "" {
		labels = nil
		for _, label := range strings.Split(raw, ",") {
			label = strings.TrimSpace(label)
			if label != "" {
				labels = append(labels, label)
			}
		}
	}

	receipt, err := s.verifyUC.Execute(c.Request.Context(), usecase.VerifyCertifiedTipRequest{Labels: labels})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildReceiptResponse(receipt))
}

func (s *Server) handleGetReceipt(c *gin.Context) {
	if !s.enforceRateLimit(c, "receipts") {
		return
	}
	if s.receipts == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	receipt, err := s.receipts.GetByID(c.Request.Context(), c.Param("receipt_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildReceiptResponse(receipt))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func buildReceiptResponse(receipt *domain.TipReceipt) receiptResponse {
	out := receiptResponse{
		ID:              receipt.ID,
		ServiceID:       hex.EncodeToString(receipt.ServiceID),
		BindingValid:    receipt.BindingValid,
		RootDigest:      hex.EncodeToString(receipt.RootDigest),
		CertifiedDigest: hex.EncodeToString(receipt.CertifiedDigest),
		CertificateTime: receipt.CertificateTime.UTC().Format(time.RFC3339Nano),
		MissingLabels:   receipt.MissingLabels,
		Summary:         receipt.Summary,
		VerifiedAt:      receipt.VerifiedAt.UTC().Format(time.RFC3339Nano),
		Policy:          receipt.Policy,
	}
	for _, fact := range receipt.Facts {
		out.Facts = append(out.Facts, factResponse{
			Label:   fact.Label,
			Value:   hex.EncodeToString(fact.Value),
			Numeric: fact.Numeric,
		})
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrMalformedTree):
		status, code = http.StatusBadRequest, "MALFORMED_TREE"
	case errors.Is(err, domain.ErrMalformedCertificate):
		status, code = http.StatusBadRequest, "MALFORMED_CERTIFICATE"
	case errors.Is(err, domain.ErrCertificateInvalid):
		status, code = http.StatusBadRequest, "CERTIFICATE_INVALID"
	case errors.Is(err, domain.ErrBindingMismatch):
		status, code = http.StatusBadRequest, "BINDING_MISMATCH"
	case errors.Is(err, domain.ErrTipUnavailable):
		status, code = http.StatusNotFound, "TIP_UNAVAILABLE"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
