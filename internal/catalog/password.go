package catalog

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Iterations = 10000
const pbkdf2KeyLen = 32
const saltBytes = 16

// hashPassword produces the "salt$hex" PBKDF2-HMAC-SHA256 encoding the
// catalog stores for every admin/user/mount password, matching
// original_source/src/database.py's hash_password exactly.
func hashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	return encodeWithSalt(password, saltHex), nil
}

func encodeWithSalt(password, saltHex string) string {
	key := pbkdf2.Key([]byte(password), []byte(saltHex), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return saltHex + "$" + hex.EncodeToString(key)
}

// verifyPassword checks provided against stored, which is either a
// "salt$hex" PBKDF2 encoding or - for rows predating this scheme, or
// inserted by legacy tooling - a bare plaintext password (no "$"). It
// returns whether the password matched and whether the row should be
// upgraded to the PBKDF2 form (true only for a matching legacy row).
func verifyPassword(stored, provided string) (ok bool, needsUpgrade bool) {
	saltHex, _, found := strings.Cut(stored, "$")
	if !found {
		// Legacy plaintext row.
		match := subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1
		return match, match
	}

	candidate := encodeWithSalt(provided, saltHex)
	match := subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
	return match, false
}
