package incident

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the deterministic identity of a condition from its
// family, resource, and coarse severity band. Same inputs always produce the
// same fingerprint; the full severity is deliberately excluded so a
// condition drifting between adjacent severities within a band keeps one
// identity in the ledger.
func Fingerprint(family Family, resource string, sev Severity) string {
	h := sha256.New()
	h.Write([]byte(family))
	h.Write([]byte{0})
	h.Write([]byte(resource))
	h.Write([]byte{0})
	h.Write([]byte(sev.Band()))
	return hex.EncodeToString(h.Sum(nil)[:8])
}
