package meta

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a sha256 content hash of an encoded module.
type Digest [32]byte

// DigestOf hashes raw module bytes.
func DigestOf(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// Combine builds an aggregate hash H(first || rest...). Callers keep rest in a
// deterministic order.
func Combine(first Digest, rest ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(first[:])
	for _, d := range rest {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero reports whether the digest was never computed.
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short returns the first 12 hex digits, enough for log lines.
func (d Digest) Short() string { return d.String()[:12] }
