package client

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acmeerr"
	acmenet "github.com/tlsforge/acmecore/net"
)

// sendSigned signs payload for url in the given mode and POSTs it,
// transparently retrying exactly once if the server rejects the nonce with
// a badNonce problem document. The retry re-signs with a fresh nonce: the
// badNonce error response itself carries the replacement via Replay-Nonce,
// which observeNonce has already cached by the time the retry runs.
func (e *Engine) sendSigned(url string, payload []byte, mode jwsMode, kid string, signer *rsa.PrivateKey) (*acmenet.Response, error) {
	resp, err := e.signAndPost(url, payload, mode, kid, signer)
	if err == nil {
		return resp, nil
	}
	if !isBadNonce(err) {
		return nil, err
	}

	resp, retryErr := e.signAndPost(url, payload, mode, kid, signer)
	if retryErr != nil {
		if !isBadNonce(retryErr) {
			return nil, retryErr
		}
		return nil, fmt.Errorf("%w: retry after badNonce: %s", acmeerr.BadNonce, retryErr)
	}
	return resp, nil
}

func (e *Engine) signAndPost(url string, payload []byte, mode jwsMode, kid string, signer *rsa.PrivateKey) (*acmenet.Response, error) {
	serialized, err := signRequest(signer, mode, kid, url, payload, e)
	if err != nil {
		return nil, err
	}

	resp, err := e.net.PostJOSE(url, serialized)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", acmeerr.TransportError, err)
	}
	e.observeNonce(resp.Response)

	if perr := protocolError(resp); perr != nil {
		return resp, perr
	}
	return resp, nil
}

// protocolError converts a non-2xx ACME response into an *acmeerr.ProtocolError.
func protocolError(resp *acmenet.Response) error {
	status := resp.Response.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}

	var problem resources.Problem
	_ = json.Unmarshal(resp.Body, &problem)
	return acmeerr.NewProtocolError(status, problem)
}

func isBadNonce(err error) bool {
	var perr *acmeerr.ProtocolError
	if !errors.As(err, &perr) {
		return false
	}
	return acmeerr.IsBadNonceProblem(perr.Problem)
}
