// Package auth covers the two credentials the API accepts: static API keys
// checked against configured hashes, and short-lived JWT tickets that let a
// browser open an authenticated websocket (browsers cannot set Authorization
// headers on the upgrade request).
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey is returned when an API key matches no configured hash.
var ErrInvalidAPIKey = errors.New("auth: invalid API key")

const sha256HexLen = 64

// Keychain verifies raw API keys against configured digests. Two digest
// formats are accepted: lowercase SHA-256 hex (fast map lookup) and bcrypt
// ("$2a$..."), for operators who prefer a work factor on their keys.
type Keychain struct {
	sha256Hashes map[string]struct{}
	bcryptHashes [][]byte
}

// NewKeychain classifies the configured digests. An entry that is neither
// 64 hex chars nor a bcrypt hash is a configuration error.
func NewKeychain(hashes []string) (*Keychain, error) {
	k := &Keychain{sha256Hashes: make(map[string]struct{}, len(hashes))}

	for i, h := range hashes {
		switch {
		case strings.HasPrefix(h, "$2"):
			k.bcryptHashes = append(k.bcryptHashes, []byte(h))
		case len(h) == sha256HexLen && isHex(h):
			k.sha256Hashes[strings.ToLower(h)] = struct{}{}
		default:
			return nil, fmt.Errorf("auth.NewKeychain: entry %d is neither sha256 hex nor bcrypt", i)
		}
	}

	return k, nil
}

// Empty reports whether no key digests are configured.
func (k *Keychain) Empty() bool {
	return len(k.sha256Hashes) == 0 && len(k.bcryptHashes) == 0
}

// Verify checks a raw API key against every configured digest.
func (k *Keychain) Verify(rawKey string) error {
	if rawKey == "" {
		return fmt.Errorf("auth.Keychain.Verify: empty key: %w", ErrInvalidAPIKey)
	}

	digest := sha256.Sum256([]byte(rawKey))
	if _, ok := k.sha256Hashes[hex.EncodeToString(digest[:])]; ok {
		return nil
	}

	for _, h := range k.bcryptHashes {
		if bcrypt.CompareHashAndPassword(h, []byte(rawKey)) == nil {
			return nil
		}
	}

	return fmt.Errorf("auth.Keychain.Verify: %w", ErrInvalidAPIKey)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
