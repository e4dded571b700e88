package x509util

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/tlsforge/acmecore/acme/codec"
	"github.com/tlsforge/acmecore/acmeerr"
)

// CertificatePEMLabel is the PEM framing label for X.509 certificates.
const CertificatePEMLabel = "CERTIFICATE"

// CertInfo is the introspected summary of an issued certificate, per
// spec.md §4.5.
type CertInfo struct {
	Fingerprint   string
	Subject       string
	Issuer        string
	NotBefore     int64
	NotAfter      int64
	SANs          []string
	PublicKeyAlg  string
	PublicKeyBits int
	PEM           []byte
}

// Inspect parses the first certificate in certPEM (a chain's leaf, if more
// than one block is present) and returns its introspected fields.
func Inspect(certPEM []byte) (CertInfo, error) {
	der, err := codec.PEMToDER(certPEM)
	if err != nil {
		return CertInfo{}, fmt.Errorf("%w: %s", acmeerr.CryptoError, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return CertInfo{}, fmt.Errorf("%w: parse certificate: %s", acmeerr.CryptoError, err)
	}

	alg, bits := publicKeyInfo(cert)

	return CertInfo{
		Fingerprint:   codec.SHA256ColonHex(cert.Raw),
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		NotBefore:     cert.NotBefore.Unix(),
		NotAfter:      cert.NotAfter.Unix(),
		SANs:          sanStrings(cert),
		PublicKeyAlg:  alg,
		PublicKeyBits: bits,
		PEM:           certPEM,
	}, nil
}

func sanStrings(cert *x509.Certificate) []string {
	var sans []string
	for _, ip := range cert.IPAddresses {
		sans = append(sans, ip.String())
	}
	sans = append(sans, cert.DNSNames...)
	return sans
}

func publicKeyInfo(cert *x509.Certificate) (alg string, bits int) {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return "RSA", pub.N.BitLen()
	default:
		return cert.PublicKeyAlgorithm.String(), 0
	}
}

// CheckExpiry reports whether the certificate described by info is expired
// as of atEpoch (seconds since the Unix epoch): true iff NotAfter < atEpoch.
func CheckExpiry(info CertInfo, atEpoch int64) bool {
	return info.NotAfter < atEpoch
}

// MatchesKey verifies that the RSA public key derived from keyPEM equals
// the public key embedded in certPEM, returning acmeerr.KeyMismatch if not.
func MatchesKey(certPEM []byte, keyPEM []byte) error {
	certDER, err := codec.PEMToDER(certPEM)
	if err != nil {
		return fmt.Errorf("%w: %s", acmeerr.CryptoError, err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("%w: parse certificate: %s", acmeerr.CryptoError, err)
	}
	certPub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate public key is not RSA", acmeerr.KeyMismatch)
	}

	keyDER, err := codec.PEMToDER(keyPEM)
	if err != nil {
		return fmt.Errorf("%w: %s", acmeerr.CryptoError, err)
	}
	priv, err := x509.ParsePKCS1PrivateKey(keyDER)
	if err != nil {
		return fmt.Errorf("%w: parse private key: %s", acmeerr.CryptoError, err)
	}

	if certPub.N.Cmp(priv.N) != 0 || certPub.E != priv.E {
		return fmt.Errorf("%w: certificate and key public components differ", acmeerr.KeyMismatch)
	}
	return nil
}
