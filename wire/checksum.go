package wire

import "github.com/cespare/xxhash"

// Checksum computes the independently-verifiable checksum spec.md 6
// requires every persisted entry to carry.
func Checksum(body []byte) uint64 {
	return xxhash.Sum64(body)
}

// VerifyChecksum reports whether body matches its trailing checksum.
func VerifyChecksum(body []byte, want uint64) bool {
	return Checksum(body) == want
}
