// Package x509util implements the CSR construction and certificate
// introspection engine: building PKCS#10 requests with the SAN/EKU/KU
// extensions RFC 8555 issuance requires, and parsing issued certificates
// back into the fields callers need (fingerprint, subject, validity, SANs).
package x509util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/tlsforge/acmecore/acme/codec"
	"github.com/tlsforge/acmecore/acme/keys"
)

// CertificateRequestPEMLabel is the PEM framing label for PKCS#10 CSRs.
const CertificateRequestPEMLabel = "CERTIFICATE REQUEST"

// RFC 5280 extension OIDs. CreateCertificateRequest does not populate any
// of these on its own — unlike CreateCertificate, it has no Template
// fields for key usage or basic constraints — so a CSR that needs to
// assert them has to marshal and attach them by hand via ExtraExtensions.
var (
	oidExtensionKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtensionBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidExtensionExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtKeyUsageServerAuth     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	oidExtKeyUsageClientAuth     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
)

type basicConstraints struct {
	IsCA       bool `asn1:"optional"`
	MaxPathLen int  `asn1:"optional,default:-1"`
}

// reverseBitsInAByte flips a byte's bit order: DER BIT STRINGs number bits
// from the most significant bit, but Go's KeyUsage constants number them
// from the least significant bit (bit 0 = digitalSignature).
func reverseBitsInAByte(in byte) byte {
	b1 := in>>4 | in<<4
	b2 := b1>>2&0x33 | b1<<2&0xcc
	b3 := b2>>1&0x55 | b2<<1&0xaa
	return b3
}

// leafExtensions builds the basicConstraints=CA:FALSE, keyUsage, and
// extKeyUsage extensions spec.md §4.5 requires on every issued CSR.
func leafExtensions() ([]pkix.Extension, error) {
	bc, err := asn1.Marshal(basicConstraints{IsCA: false, MaxPathLen: -1})
	if err != nil {
		return nil, fmt.Errorf("x509util: marshal basicConstraints: %w", err)
	}

	ku := byte(x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment)
	kuBits := asn1.BitString{Bytes: []byte{reverseBitsInAByte(ku)}, BitLength: 8}
	kuVal, err := asn1.Marshal(kuBits)
	if err != nil {
		return nil, fmt.Errorf("x509util: marshal keyUsage: %w", err)
	}

	eku, err := asn1.Marshal([]asn1.ObjectIdentifier{oidExtKeyUsageServerAuth, oidExtKeyUsageClientAuth})
	if err != nil {
		return nil, fmt.Errorf("x509util: marshal extKeyUsage: %w", err)
	}

	return []pkix.Extension{
		{Id: oidExtensionBasicConstraints, Critical: true, Value: bc},
		{Id: oidExtensionKeyUsage, Critical: true, Value: kuVal},
		{Id: oidExtensionExtKeyUsage, Value: eku},
	}, nil
}

// DistinguishedName holds the optional, non-CN subject components a caller
// may supply alongside the CN/SAN identifiers.
type DistinguishedName struct {
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
}

func (dn DistinguishedName) toPKIX(commonName string) pkix.Name {
	name := pkix.Name{CommonName: commonName}
	if dn.Country != "" {
		name.Country = []string{dn.Country}
	}
	if dn.State != "" {
		name.Province = []string{dn.State}
	}
	if dn.Locality != "" {
		name.Locality = []string{dn.Locality}
	}
	if dn.Organization != "" {
		name.Organization = []string{dn.Organization}
	}
	if dn.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{dn.OrganizationalUnit}
	}
	return name
}

// NewCSR builds a PKCS#10 certificate signing request for the given DNS
// identifiers. The first identifier is always used as the CN; dn supplies
// only the other subject components. The SAN extension lists the
// identifiers as given, including the CN's value. If signer is nil a fresh RSA key of
// keys.DefaultBits is generated and returned alongside the CSR.
//
// The request is signed with SHA-256 and carries CA:FALSE basic
// constraints, digitalSignature|keyEncipherment key usage, and
// serverAuth+clientAuth extended key usage — see spec.md §4.5.
func NewCSR(identifiers []string, dn DistinguishedName, signer *rsa.PrivateKey) (csrDER []byte, csrPEM []byte, usedKey *rsa.PrivateKey, err error) {
	if len(identifiers) == 0 {
		return nil, nil, nil, fmt.Errorf("x509util: at least one identifier is required")
	}

	if signer == nil {
		signer, err = keys.NewRSAKey(keys.DefaultBits)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("x509util: generate CSR key: %w", err)
		}
	}

	extensions, err := leafExtensions()
	if err != nil {
		return nil, nil, nil, err
	}

	template := x509.CertificateRequest{
		Subject:            dn.toPKIX(identifiers[0]),
		DNSNames:           identifiers,
		SignatureAlgorithm: x509.SHA256WithRSA,
		ExtraExtensions:    extensions,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &template, signer)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("x509util: create CSR: %w", err)
	}

	return der, codec.DERToPEM(der, CertificateRequestPEMLabel), signer, nil
}
