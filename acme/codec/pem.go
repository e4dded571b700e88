package codec

import (
	"encoding/pem"
	"fmt"
	"strings"
)

// PEMToDER extracts the DER bytes of the first PEM block found in data. It
// returns an error if no PEM block is present.
func PEMToDER(data []byte) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("codec: no PEM block found")
	}
	return block.Bytes, nil
}

// DERToPEM wraps der in a PEM block with the given label, using the
// standard 64-column base64 line wrapping and "-----BEGIN/END <label>-----"
// framing specified by RFC 7468.
func DERToPEM(der []byte, label string) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: label, Bytes: der})
}

// SplitPEMBlocks splits data into however many concatenated PEM blocks it
// contains, in order. This is how a certificate chain (leaf + intermediates)
// is decomposed into individual certificates.
func SplitPEMBlocks(data []byte) []*pem.Block {
	var blocks []*pem.Block
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// ValidatePEM checks that data is syntactically well-formed PEM for the
// given label: a "-----BEGIN <label>-----" / "-----END <label>-----" framed
// block (trailing whitespace permitted). If allowMultiple is false, data
// must contain exactly one such block and nothing else; if true, one or
// more concatenated blocks of the same label are accepted.
func ValidatePEM(data []byte, label string, allowMultiple bool) error {
	blocks := SplitPEMBlocks(data)
	if len(blocks) == 0 {
		return fmt.Errorf("codec: no PEM block with label %q found", label)
	}
	if !allowMultiple && len(blocks) != 1 {
		return fmt.Errorf("codec: expected exactly one PEM block, found %d", len(blocks))
	}
	for i, block := range blocks {
		if block.Type != label {
			return fmt.Errorf("codec: PEM block %d has label %q, expected %q", i, block.Type, label)
		}
	}
	// Confirm the decoded blocks reconstruct the framing markers exactly;
	// pem.Decode is lenient about interior garbage between blocks, which
	// we don't want to silently accept.
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "-----BEGIN "+label+"-----") {
		return fmt.Errorf("codec: data does not begin with the %q PEM header", label)
	}
	if !strings.HasSuffix(trimmed, "-----END "+label+"-----") {
		return fmt.Errorf("codec: data does not end with the %q PEM footer", label)
	}
	rest := data
	for strings.TrimSpace(string(rest)) != "" {
		if !strings.HasPrefix(strings.TrimSpace(string(rest)), "-----BEGIN ") {
			return fmt.Errorf("codec: unexpected data between PEM blocks")
		}
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return fmt.Errorf("codec: malformed PEM block")
		}
	}
	return nil
}
