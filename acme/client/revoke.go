package client

import (
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/tlsforge/acmecore/acme/codec"
	"github.com/tlsforge/acmecore/acmeerr"
)

// RevokeOption configures a RevokeCertificate call.
type RevokeOption func(*revokeConfig)

type revokeConfig struct {
	certKey *rsa.PrivateKey
}

// WithCertificateKey selects jwk-mode signing with the certificate's own
// key instead of the account key (RFC 8555 §7.6 permits either), for the
// case where a caller holds the certificate's key but isn't the account
// that requested it.
func WithCertificateKey(signer *rsa.PrivateKey) RevokeOption {
	return func(c *revokeConfig) { c.certKey = signer }
}

// RevokeCertificate revokes the certificate encoded in certPEMOrDER, which
// may be either PEM- or DER-encoded; a leading PEM block is detected and
// converted to DER internally (RFC 8555 §7.6 only ever carries DER on the
// wire), so callers don't need to convert it themselves. The reason is a
// CRL reason code (RFC 5280 §5.3.1).
func (e *Engine) RevokeCertificate(certPEMOrDER []byte, reason int, opts ...RevokeOption) error {
	dir, err := e.directoryOrFetch()
	if err != nil {
		return err
	}
	if dir.RevokeCert == "" {
		return fmt.Errorf("%w: directory has no revokeCert endpoint", acmeerr.ConfigError)
	}

	certDER := certPEMOrDER
	if block, _ := pem.Decode(certPEMOrDER); block != nil {
		certDER = block.Bytes
	}

	cfg := &revokeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	reqBody, err := json.Marshal(struct {
		Certificate string `json:"certificate"`
		Reason      int    `json:"reason"`
	}{
		Certificate: codec.Base64URLEncode(certDER),
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal revoke request: %s", acmeerr.ConfigError, err)
	}

	if cfg.certKey != nil {
		_, err := e.sendSigned(dir.RevokeCert, reqBody, modeEmbedJWK, "", cfg.certKey)
		return err
	}

	rec, err := e.requireRecord()
	if err != nil {
		return err
	}
	signer, err := rec.Signer()
	if err != nil {
		return err
	}
	_, err = e.sendSigned(dir.RevokeCert, reqBody, modeKeyID, rec.AccountURL, signer)
	return err
}
