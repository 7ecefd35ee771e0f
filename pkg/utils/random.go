package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ShortIDLength is the length of short-link ids.
const ShortIDLength = 8

// GenerateID returns an opaque alphanumeric id of the given length.
func GenerateID(length int) (string, error) {
	return gonanoid.Generate(idAlphabet, length)
}

// MustGenerateID is GenerateID for the default entity id length.
func MustGenerateID() string {
	return gonanoid.MustGenerate(idAlphabet, 21)
}

// GenerateObjectID returns the opaque part of an object key.
func GenerateObjectID() string {
	return uuid.NewString()
}

// GenerateAPIKey returns "{prefix}_{32 hex}" where prefix is the lower-cased
// alphanumeric form of name, or "anon".
func GenerateAPIKey(name string) (string, error) {
	var prefix strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			prefix.WriteRune(r)
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteString("anon")
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return prefix.String() + "_" + hex.EncodeToString(buf), nil
}

// GenerateOTP returns a 6-digit numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
