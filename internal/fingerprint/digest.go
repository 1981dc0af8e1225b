package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Digest hashes an ordered list of parts. Each part is length-prefixed, so
// Digest([]byte("ab"), []byte("c")) differs from Digest([]byte("a"), []byte("bc")).
func Digest(parts ...[]byte) string {
	h := sha256.New()
	var size [8]byte
	for _, part := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DigestString is Digest over string parts.
func DigestString(parts ...string) string {
	raw := make([][]byte, len(parts))
	for i, p := range parts {
		raw[i] = []byte(p)
	}
	return Digest(raw...)
}

// DigestJSON hashes the JSON encoding of v. encoding/json sorts map keys, which
// makes the digest independent of map iteration order.
func DigestJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest json: %w", err)
	}
	return Digest(data), nil
}

// PayloadDigest is the content hash stored alongside every cached payload.
func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
