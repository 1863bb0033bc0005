package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrPasswordTooLong = errors.New("password exceeds maximum length of 72 bytes")
)

var md5Pattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// KosyncHash returns the unsalted MD5 hex digest of a password. This is
// what the KOReader sync plugin computes client side and sends as
// X-Auth-Key, so it is the only credential format the sync endpoints
// can verify against.
func KosyncHash(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// IsKosyncHash reports whether the value looks like a client-computed
// MD5 digest rather than a plaintext password.
func IsKosyncHash(value string) bool {
	return md5Pattern.MatchString(value)
}

// CheckKosyncKey compares a client-supplied MD5 digest against the
// stored one in constant time.
func CheckKosyncKey(key, storedMD5 string) bool {
	if storedMD5 == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(storedMD5)) == 1
}

// HashPassword creates a bcrypt hash of the password for dashboard logins.
func HashPassword(password string, cost int) (string, error) {
	// bcrypt has a 72-byte limit
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with its bcrypt hash.
func CheckPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return err
	}
	return nil
}

// HashToken creates a SHA-256 hash of an API token for storage.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// GenerateSessionSecret creates a random 32-byte secret for session signing.
func GenerateSessionSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
