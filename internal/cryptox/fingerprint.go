package cryptox

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

var fingerprintDomain = []byte("gophvault.device.v1:")

// FingerprintHash returns a short, non-reversible tag of a device fingerprint
// that is safe to put into logs.
func FingerprintHash(fingerprint string) string {
	data := make([]byte, 0, len(fingerprintDomain)+len(fingerprint))
	data = append(data, fingerprintDomain...)
	data = append(data, fingerprint...)
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
