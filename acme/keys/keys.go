// Package keys implements RSA key generation, JWK construction, RFC 7638
// JWK thumbprints, key authorization strings, and PEM marshaling of the
// account and leaf keys used throughout the ACME protocol engine.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/tlsforge/acmecore/acme/codec"
)

// DefaultBits is the default RSA modulus size used when the caller does not
// specify one, matching spec.md's "default 4096 bits".
const DefaultBits = 4096

// RSAPrivateKeyPEMLabel is the PEM framing label used for account/leaf key
// material.
const RSAPrivateKeyPEMLabel = "RSA PRIVATE KEY"

// NewRSAKey generates a new RSA private key of the given bit size. A bits
// value of 0 selects DefaultBits.
func NewRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate RSA-%d key: %w", bits, err)
	}
	return key, nil
}

// PEMToRSAKey parses a PEM-encoded PKCS#1 RSA private key.
func PEMToRSAKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("keys: no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse PKCS#1 private key: %w", err)
	}
	return key, nil
}

// RSAKeyToPEM marshals an RSA private key as PKCS#1, PEM-encoded.
func RSAKeyToPEM(key *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(key)
	return codec.DERToPEM(der, RSAPrivateKeyPEMLabel)
}

// JWK holds the canonical members of an RSA JSON Web Key as defined by
// RFC 7517. It is built by hand (rather than relying solely on go-jose's
// struct) so Thumbprint has full control over which members are hashed.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Use string `json:"use,omitempty"`
}

// JWKForKey returns the JWK representation of an RSA public key. Use is set
// to "sig" per spec.md §4.3's wire shape for embedded JWKs; it must be
// stripped before thumbprint computation (see Thumbprint).
func JWKForKey(pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		N:   codec.Base64URLEncode(pub.N.Bytes()),
		E:   codec.Base64URLEncode(bigEndianExponent(pub.E)),
		Use: "sig",
	}
}

func bigEndianExponent(e int) []byte {
	// RFC 7517 requires the minimal big-endian encoding of the exponent.
	if e == 0 {
		return []byte{0}
	}
	var b []byte
	for e > 0 {
		b = append([]byte{byte(e & 0xff)}, b...)
		e >>= 8
	}
	return b
}

// Thumbprint computes the RFC 7638 JWK thumbprint of an RSA public key: the
// base64url(SHA-256(canonical-JSON({e,kty,n}))) of its required members,
// explicitly excluding "use". It returns the 43-character base64url string.
func Thumbprint(pub *rsa.PublicKey) (string, error) {
	jwk := JWKForKey(pub)
	thumbprintInput := struct {
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	}{Kty: jwk.Kty, N: jwk.N, E: jwk.E}

	canon, err := codec.CanonicalJSON(thumbprintInput)
	if err != nil {
		return "", fmt.Errorf("keys: canonicalize JWK for thumbprint: %w", err)
	}
	digest := codec.SHA256(canon)
	return codec.Base64URLEncode(digest), nil
}

// KeyAuthorization returns the key authorization string for the given
// challenge token and account key: "token.thumbprint".
func KeyAuthorization(pub *rsa.PublicKey, token string) (string, error) {
	thumb, err := Thumbprint(pub)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, thumb), nil
}

// DNS01RecordValue returns the value a DNS-01 TXT record must carry for the
// given key authorization: base64url(SHA-256(keyAuthorization)).
func DNS01RecordValue(keyAuthorization string) string {
	digest := codec.SHA256([]byte(keyAuthorization))
	return codec.Base64URLEncode(digest)
}

// JOSEJWKForSigner builds a public-only go-jose JSONWebKey for signer with
// "use" set to "sig". The JWS signer does not call it: go-jose derives the
// embedded "jwk" member from the key JOSESigningKey returns. Thumbprint
// computation never goes through this type.
func JOSEJWKForSigner(signer crypto.Signer) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       signer.Public(),
		Algorithm: "RSA",
		Use:       "sig",
	}
}

// JOSESigningKey builds the go-jose SigningKey used to produce an RS256 JWS.
// If kid is non-empty the resulting protected header carries a "kid" member
// instead of an embedded JWK; embedding is controlled by the caller via
// jose.SignerOptions.EmbedJWK. An embedded JWK carries "use":"sig".
func JOSESigningKey(signer crypto.Signer, kid string) jose.SigningKey {
	jwk := jose.JSONWebKey{
		Key:       signer,
		Algorithm: string(jose.RS256),
		KeyID:     kid,
		Use:       "sig",
	}
	return jose.SigningKey{
		Key:       jwk,
		Algorithm: jose.RS256,
	}
}
