package util

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex-encoded blake2b-256 hash of the given bytes.
// Event records carry this digest so off-chain indexers polling the
// event log can verify payloads against their own reads.
func Digest(payload []byte) (string, error) {

	hasher, err := blake2b.New(32, nil)
	if err != nil {
		return "", errors.Wrap(err, "Unable to create blake2b hash object")
	}

	if _, err := hasher.Write(payload); err != nil {
		return "", errors.Wrap(err, "Unable to write payload to hash function")
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
