// Package hashutil holds the two digest helpers the fabric standardizes
// on: SHA-256 for URL identity and BLAKE3 for blob content versions.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// SHA256Hex returns the 64-hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BLAKE3Hex returns the 64-hex BLAKE3-256 digest of data. Used for blob
// version tags, where speed over large bodies matters more than having a
// FIPS algorithm.
func BLAKE3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
