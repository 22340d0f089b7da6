package format

import "crypto/sha256"

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares computed checksum against stored checksum.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return corruptf("checksum mismatch")
	}
	return nil
}
