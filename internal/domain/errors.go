package domain

import "errors"

var (
	ErrMalformedTree        = errors.New("malformed hash tree")
	ErrMalformedCertificate = errors.New("malformed certificate")
	ErrCertificateInvalid   = errors.New("certificate authentication failed")
	ErrBindingMismatch      = errors.New("certified digest binding mismatch")
	ErrTipUnavailable       = errors.New("no certified tip available")
	ErrNotFound             = errors.New("not found")
)
