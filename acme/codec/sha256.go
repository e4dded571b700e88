package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256 returns the raw SHA-256 digest of b.
func SHA256(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// SHA256ColonHex returns the SHA-256 digest of b as upper-case, colon
// separated hex, the conventional certificate fingerprint format (e.g.
// "AB:CD:...").
func SHA256ColonHex(b []byte) string {
	sum := sha256.Sum256(b)
	hexBytes := make([]string, len(sum))
	for i, x := range sum {
		hexBytes[i] = strings.ToUpper(hex.EncodeToString([]byte{x}))
	}
	return strings.Join(hexBytes, ":")
}
