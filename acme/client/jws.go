package client

import (
	"crypto/rsa"
	"fmt"
	"net/http"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/tlsforge/acmecore/acme/keys"
	"github.com/tlsforge/acmecore/acmeerr"
)

// Nonce implements jose.NonceSource by popping the Engine's cached nonce,
// fetching a fresh one from the directory's newNonce endpoint if none is
// cached yet. Every subsequent response's Replay-Nonce header, if present,
// replaces the cache before the next signing operation needs one — nonces
// are refreshed reactively from the responses that carry them, not
// proactively on a schedule.
func (e *Engine) Nonce() (string, error) {
	e.mu.Lock()
	n := e.nonce
	e.nonce = ""
	e.mu.Unlock()
	if n != "" {
		return n, nil
	}

	dir, err := e.directoryOrFetch()
	if err != nil {
		return "", err
	}
	if dir.NewNonce == "" {
		return "", fmt.Errorf("%w: directory has no newNonce endpoint", acmeerr.ConfigError)
	}

	resp, err := e.net.Get(dir.NewNonce)
	if err != nil {
		return "", fmt.Errorf("%w: fetch nonce: %s", acmeerr.TransportError, err)
	}
	nonce := resp.Response.Header.Get("Replay-Nonce")
	if nonce == "" {
		return "", fmt.Errorf("%w: newNonce response carried no Replay-Nonce header", acmeerr.TransportError)
	}
	return nonce, nil
}

// observeNonce caches resp's Replay-Nonce header, if present, for the next
// signing operation.
func (e *Engine) observeNonce(resp *http.Response) {
	if n := resp.Header.Get("Replay-Nonce"); n != "" {
		e.mu.Lock()
		e.nonce = n
		e.mu.Unlock()
	}
}

// jwsMode selects between embedding the account's public key (used only for
// the very first newAccount request, and for certificate-key revocation)
// and referencing the account by its server-assigned kid URL.
type jwsMode int

const (
	modeKeyID jwsMode = iota
	modeEmbedJWK
)

// signRequest builds a flattened-serialization JWS over payload with url in
// the protected header, using signer and, in modeKeyID, kid.
func signRequest(signer *rsa.PrivateKey, mode jwsMode, kid, url string, payload []byte, nonceSource jose.NonceSource) ([]byte, error) {
	extraHeaders := map[jose.HeaderKey]interface{}{"url": url}

	var signerOpts jose.SignerOptions
	signerOpts.ExtraHeaders = extraHeaders
	signerOpts.NonceSource = nonceSource

	switch mode {
	case modeEmbedJWK:
		signerOpts.EmbedJWK = true
	case modeKeyID:
		if kid == "" {
			return nil, fmt.Errorf("%w: modeKeyID requires a non-empty kid", acmeerr.ConfigError)
		}
		signerOpts.EmbedJWK = false
	default:
		return nil, fmt.Errorf("%w: unknown jws mode", acmeerr.ConfigError)
	}
	signingKey := keys.JOSESigningKey(signer, kid)

	signer2, err := jose.NewSigner(signingKey, &signerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: build JWS signer: %s", acmeerr.CryptoError, err)
	}

	signed, err := signer2.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: sign JWS: %s", acmeerr.CryptoError, err)
	}

	return []byte(signed.FullSerialize()), nil
}

// postAsGetPayload is the literal empty string payload RFC 8555 §6.3
// requires for POST-as-GET requests — not base64url of "{}", the empty
// string itself.
var postAsGetPayload = []byte("")
