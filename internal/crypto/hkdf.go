package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands a passphrase into outLen key bytes with HKDF-SHA256.
// Distinct info labels give independent keys for the same passphrase.
func DeriveKey(secret, salt, info []byte, outLen int) ([]byte, error) {
	out := make([]byte, outLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}
