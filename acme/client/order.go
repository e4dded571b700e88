package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tlsforge/acmecore/acme/codec"
	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acmeerr"
)

// NewOrder creates an order for the given identifiers (RFC 8555 §7.4) and
// returns the server-assigned order URL alongside the parsed Order. Callers
// must hold onto the URL: it is the order's sole identity and the argument
// GetOrder expects.
func (e *Engine) NewOrder(identifiers ...string) (string, *resources.Order, error) {
	dir, err := e.directoryOrFetch()
	if err != nil {
		return "", nil, err
	}
	if dir.NewOrder == "" {
		return "", nil, fmt.Errorf("%w: directory has no newOrder endpoint", acmeerr.ConfigError)
	}
	rec, err := e.requireRecord()
	if err != nil {
		return "", nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return "", nil, err
	}

	ids := make([]resources.Identifier, len(identifiers))
	for i, d := range identifiers {
		ids[i] = resources.DNSIdentifier(d)
	}
	reqBody, err := json.Marshal(struct {
		Identifiers []resources.Identifier `json:"identifiers"`
	}{Identifiers: ids})
	if err != nil {
		return "", nil, fmt.Errorf("%w: marshal newOrder request: %s", acmeerr.ConfigError, err)
	}

	resp, err := e.sendSigned(dir.NewOrder, reqBody, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return "", nil, err
	}
	if resp.Response.StatusCode != http.StatusCreated {
		return "", nil, fmt.Errorf("%w: newOrder returned HTTP %d", acmeerr.TransportError, resp.Response.StatusCode)
	}

	orderURL := resp.Response.Header.Get("Location")
	if orderURL == "" {
		return "", nil, fmt.Errorf("%w: newOrder response carried no Location header", acmeerr.TransportError)
	}

	var order resources.Order
	if err := json.Unmarshal(resp.Body, &order); err != nil {
		return "", nil, fmt.Errorf("%w: parse order response: %s", acmeerr.TransportError, err)
	}
	return orderURL, &order, nil
}

// postAsGet issues a signed POST-as-GET (RFC 8555 §6.3) to url and
// unmarshals the response body into out. Order and authorization
// resources require an authenticated request like any other ACME
// resource; plain GET is not offered by conformant servers (Let's
// Encrypt and Pebble return 405 for it).
func (e *Engine) postAsGet(url string, out interface{}) error {
	rec, err := e.requireRecord()
	if err != nil {
		return err
	}
	signer, err := rec.Signer()
	if err != nil {
		return err
	}

	resp, err := e.sendSigned(url, postAsGetPayload, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("%w: parse response from %s: %s", acmeerr.TransportError, url, err)
		}
	}
	return nil
}

// GetOrder fetches the current state of the order at orderURL.
func (e *Engine) GetOrder(orderURL string) (*resources.Order, error) {
	var order resources.Order
	if err := e.postAsGet(orderURL, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetAuthorization fetches the authorization at authzURL.
func (e *Engine) GetAuthorization(authzURL string) (*resources.Authorization, error) {
	var authz resources.Authorization
	if err := e.postAsGet(authzURL, &authz); err != nil {
		return nil, err
	}
	return &authz, nil
}

// DeactivateAuthorization deactivates the authorization at authzURL (RFC
// 8555 §7.5.2), e.g. to voluntarily relinquish a previously validated
// identifier.
func (e *Engine) DeactivateAuthorization(authzURL string) (*resources.Authorization, error) {
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(struct {
		Status string `json:"status"`
	}{Status: string(resources.AuthorizationDeactivated)})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal deactivate request: %s", acmeerr.ConfigError, err)
	}

	resp, err := e.sendSigned(authzURL, reqBody, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return nil, err
	}

	var authz resources.Authorization
	if err := json.Unmarshal(resp.Body, &authz); err != nil {
		return nil, fmt.Errorf("%w: parse authorization response: %s", acmeerr.TransportError, err)
	}
	return &authz, nil
}

// RequestChallengeValidation tells the server to attempt validation of
// chall, sending the RFC 8555 §7.5.1 empty JSON object body, and returns the
// server's (usually "processing") challenge state.
func (e *Engine) RequestChallengeValidation(chall resources.Challenge) (*resources.Challenge, error) {
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	resp, err := e.sendSigned(chall.URL, []byte("{}"), modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return nil, err
	}

	var updated resources.Challenge
	if err := json.Unmarshal(resp.Body, &updated); err != nil {
		return nil, fmt.Errorf("%w: parse challenge response: %s", acmeerr.TransportError, err)
	}
	return &updated, nil
}

// FinalizeOrder submits a DER-encoded CSR to the order's finalize URL (RFC
// 8555 §7.4). The order must be in the "ready" state.
func (e *Engine) FinalizeOrder(order *resources.Order, csrDER []byte) (*resources.Order, error) {
	if order == nil || order.Finalize == "" {
		return nil, fmt.Errorf("%w: order has no finalize URL", acmeerr.ConfigError)
	}
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(struct {
		CSR string `json:"csr"`
	}{CSR: codec.Base64URLEncode(csrDER)})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal finalize request: %s", acmeerr.ConfigError, err)
	}

	resp, err := e.sendSigned(order.Finalize, reqBody, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return nil, err
	}

	var updated resources.Order
	if err := json.Unmarshal(resp.Body, &updated); err != nil {
		return nil, fmt.Errorf("%w: parse order response: %s", acmeerr.TransportError, err)
	}
	return &updated, nil
}

// GetCertificate fetches the issued certificate chain for a valid order
// (RFC 8555 §7.4.2), returning the PEM-encoded chain as the server sent it.
func (e *Engine) GetCertificate(order *resources.Order) ([]byte, error) {
	if order == nil || order.Certificate == "" {
		return nil, fmt.Errorf("%w: order has no certificate URL yet", acmeerr.StateError)
	}
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	resp, err := e.sendSigned(order.Certificate, postAsGetPayload, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
