// Package codec provides the low-level encodings the ACME protocol and its
// JWS envelope are built from: base64url, canonical JSON, SHA-256 digests,
// and PEM/DER conversion.
package codec

import "encoding/base64"

// Base64URLEncode encodes b using unpadded base64url, the encoding required
// for every JWS and JWK field in RFC 7515/7517.
func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Base64URLDecode decodes an unpadded base64url string. It also accepts
// padded input since some servers are not strict about omitting padding.
func Base64URLDecode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
