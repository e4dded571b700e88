package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tlsforge/acmecore/acme/resources"
	"github.com/tlsforge/acmecore/acmeerr"
)

// NewAccount registers the account key persisted by a prior Init call with
// the ACME server (RFC 8555 §7.3) and durably updates the stored record
// with the resulting account URL and object. It returns acmeerr.StateError
// if the persisted record is already registered.
func (e *Engine) NewAccount(tosURL string, contacts ...string) (*resources.Account, error) {
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	if rec.AccountURL != "" {
		return nil, fmt.Errorf("%w: account is already registered at %s", acmeerr.StateError, rec.AccountURL)
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	dir, err := e.directoryOrFetch()
	if err != nil {
		return nil, err
	}
	if dir.NewAccount == "" {
		return nil, fmt.Errorf("%w: directory has no newAccount endpoint", acmeerr.ConfigError)
	}

	reqBody, err := json.Marshal(struct {
		Contact              []string `json:"contact,omitempty"`
		TermsOfServiceAgreed bool     `json:"termsOfServiceAgreed"`
	}{
		Contact:              resources.ContactEmails(contacts),
		TermsOfServiceAgreed: tosURL != "",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal newAccount request: %s", acmeerr.ConfigError, err)
	}

	resp, err := e.sendSigned(dir.NewAccount, reqBody, modeEmbedJWK, "", signer)
	if err != nil {
		return nil, err
	}
	if resp.Response.StatusCode != http.StatusCreated && resp.Response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: newAccount returned HTTP %d", acmeerr.TransportError, resp.Response.StatusCode)
	}

	accountURL := resp.Response.Header.Get("Location")
	if accountURL == "" {
		return nil, fmt.Errorf("%w: newAccount response carried no Location header", acmeerr.TransportError)
	}

	var acct resources.Account
	if err := json.Unmarshal(resp.Body, &acct); err != nil {
		return nil, fmt.Errorf("%w: parse account response: %s", acmeerr.TransportError, err)
	}

	rec.AccountURL = accountURL
	rec.AcceptedTermsURL = tosURL
	rec.Account = acct
	if err := e.save(rec); err != nil {
		return nil, err
	}

	return &acct, nil
}

// AccountUpdate describes the fields an UpdateAccount call may change.
// Zero-value fields (nil Contact, false Deactivate) are omitted from the
// request, leaving the server's existing value untouched.
type AccountUpdate struct {
	Contact    []string
	Deactivate bool
}

// UpdateAccount sends an account update request and persists the server's
// response.
func (e *Engine) UpdateAccount(fields AccountUpdate) (*resources.Account, error) {
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	update := struct {
		Contact []string `json:"contact,omitempty"`
		Status  string   `json:"status,omitempty"`
	}{}
	if fields.Contact != nil {
		update.Contact = resources.ContactEmails(fields.Contact)
	}
	if fields.Deactivate {
		update.Status = string(resources.AccountDeactivated)
	}

	reqBody, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal account update: %s", acmeerr.ConfigError, err)
	}

	resp, err := e.sendSigned(rec.AccountURL, reqBody, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return nil, err
	}

	var acct resources.Account
	if err := json.Unmarshal(resp.Body, &acct); err != nil {
		return nil, fmt.Errorf("%w: parse account response: %s", acmeerr.TransportError, err)
	}

	rec.Account = acct
	if err := e.save(rec); err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetAccount fetches the current server-side account object with a
// POST-as-GET request.
func (e *Engine) GetAccount() (*resources.Account, error) {
	rec, err := e.requireRecord()
	if err != nil {
		return nil, err
	}
	signer, err := rec.Signer()
	if err != nil {
		return nil, err
	}

	resp, err := e.sendSigned(rec.AccountURL, postAsGetPayload, modeKeyID, rec.AccountURL, signer)
	if err != nil {
		return nil, err
	}

	var acct resources.Account
	if err := json.Unmarshal(resp.Body, &acct); err != nil {
		return nil, fmt.Errorf("%w: parse account response: %s", acmeerr.TransportError, err)
	}

	rec.Account = acct
	if err := e.save(rec); err != nil {
		return nil, err
	}
	return &acct, nil
}
