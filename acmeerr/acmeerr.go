// Package acmeerr defines the typed error taxonomy used throughout the
// ACME protocol engine: sentinel "kind" values that callers can match with
// errors.Is, and a ProtocolError type carrying the server's parsed problem
// document for errors.As.
//
// Every error surfaced by the engine wraps one of the sentinels below, so
// callers can write:
//
//	if errors.Is(err, acmeerr.BadNonce) { ... }
//	var perr *acmeerr.ProtocolError
//	if errors.As(err, &perr) { ... perr.Problem ... }
package acmeerr

import (
	"errors"
	"fmt"

	"github.com/tlsforge/acmecore/acme/resources"
)

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", Kind) (or use
// the constructors below) to produce a concrete error that still satisfies
// errors.Is against the kind.
var (
	// ConfigError indicates missing or ill-formed caller-supplied input:
	// an empty directory URL, no account key loaded yet, an unknown
	// directory method, etc.
	ConfigError = errors.New("acme: config error")

	// IoError indicates a filesystem failure during account store
	// save/load.
	IoError = errors.New("acme: io error")

	// TransportError indicates a network, TLS, or timeout failure talking
	// to the ACME server.
	TransportError = errors.New("acme: transport error")

	// BadNonce indicates a retry consumed the nonce budget (one retry
	// maximum per logical call) without success.
	BadNonce = errors.New("acme: bad nonce (retry exhausted)")

	// CryptoError indicates key generation, signing, CSR construction, or
	// certificate parsing failed.
	CryptoError = errors.New("acme: crypto error")

	// KeyMismatch indicates a certificate/key correspondence check
	// failed.
	KeyMismatch = errors.New("acme: key mismatch")

	// StateError indicates an operation was attempted in a state that
	// does not support it: get_certificate before order.certificate is
	// populated, init when a key already exists, etc.
	StateError = errors.New("acme: invalid state")
)

// ProtocolError wraps a non-2xx ACME server response, including its parsed
// problem document when the server provided one (type, detail,
// subproblems). Its Is method matches the Protocol sentinel, so callers can
// match broadly with errors.Is or narrowly with errors.As.
type ProtocolError struct {
	// StatusCode is the HTTP status code returned by the server.
	StatusCode int
	// Problem is the parsed RFC 7807-style problem document, if the
	// response body was one. Its zero value means the server returned no
	// (or an unparsable) problem document.
	Problem resources.Problem
}

var protocolErrorSentinel = errors.New("acme: protocol error")

// Error implements the error interface.
func (p *ProtocolError) Error() string {
	if p.Problem.Type == "" {
		return fmt.Sprintf("acme: protocol error: server returned HTTP %d", p.StatusCode)
	}
	return fmt.Sprintf("acme: protocol error: server returned HTTP %d (%s: %s)",
		p.StatusCode, p.Problem.Type, p.Problem.Detail)
}

// Is reports whether target is the ProtocolError sentinel, so that
// errors.Is(err, acmeerr.Protocol) matches any *ProtocolError regardless of
// its contents.
func (p *ProtocolError) Is(target error) bool {
	return target == protocolErrorSentinel
}

// Protocol is the sentinel to match any ProtocolError with errors.Is.
var Protocol = protocolErrorSentinel

// NewProtocolError builds a ProtocolError from a status code and a parsed
// problem document (which may be the zero value if the server sent none).
func NewProtocolError(statusCode int, problem resources.Problem) *ProtocolError {
	return &ProtocolError{StatusCode: statusCode, Problem: problem}
}

// IsBadNonceProblem reports whether a problem document's Type is the ACME
// badNonce URN.
func IsBadNonceProblem(p resources.Problem) bool {
	return p.Type == "urn:ietf:params:acme:error:badNonce"
}
