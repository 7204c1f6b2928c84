package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// minPasswordLength is the policy floor; the other rules require at
	// least one upper, one lower and one digit.
	minPasswordLength = 8

	// tempPasswordLength is the size of generated temporary passwords.
	tempPasswordLength = 12

	// sessionIDBytes gives 256 bits of entropy, 43 characters once
	// url-safe base64 encoded without padding.
	sessionIDBytes = 32
)

// HashPassword returns a bcrypt hash of the plaintext at the adaptive
// default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored bcrypt
// hash. An unparsable hash means authentication must fail, not error out.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckPasswordPolicy validates a candidate password against the policy:
// at least 8 characters with one upper, one lower and one digit. Returns a
// *PolicyError listing every violated rule.
func CheckPasswordPolicy(password string) error {
	var problems []string
	if len(password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("au moins %d caractères", minPasswordLength))
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		problems = append(problems, "au moins une majuscule")
	}
	if !hasLower {
		problems = append(problems, "au moins une minuscule")
	}
	if !hasDigit {
		problems = append(problems, "au moins un chiffre")
	}
	if len(problems) > 0 {
		return &PolicyError{Problems: problems}
	}
	return nil
}

// tempPasswordAlphabet excludes visually ambiguous characters (0/O, 1/l/I)
// because temporary passwords are read to users over the phone.
const tempPasswordAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

// GenerateTempPassword returns a random password that always satisfies the
// policy: one guaranteed upper, lower and digit, the rest drawn from the
// full alphabet.
func GenerateTempPassword() (string, error) {
	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[n.Int64()], nil
	}

	parts := make([]byte, 0, tempPasswordLength)
	for _, set := range []string{
		"ABCDEFGHJKMNPQRSTUVWXYZ",
		"abcdefghjkmnpqrstuvwxyz",
		"23456789",
	} {
		c, err := pick(set)
		if err != nil {
			return "", fmt.Errorf("auth: generating temp password: %w", err)
		}
		parts = append(parts, c)
	}
	for len(parts) < tempPasswordLength {
		c, err := pick(tempPasswordAlphabet)
		if err != nil {
			return "", fmt.Errorf("auth: generating temp password: %w", err)
		}
		parts = append(parts, c)
	}

	// Shuffle so the guaranteed classes are not always in front.
	for i := len(parts) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("auth: generating temp password: %w", err)
		}
		j := n.Int64()
		parts[i], parts[j] = parts[j], parts[i]
	}
	return string(parts), nil
}

// NewSessionID returns an opaque url-safe random session identifier with
// 256 bits of entropy.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NormalizeUsername strips any Windows-style "DOMAIN\user" or "domain/user"
// prefix and upper-cases the remainder. All lookups and storage use the
// normalized form.
func NormalizeUsername(username string) string {
	u := strings.TrimSpace(username)
	if i := strings.LastIndexAny(u, `\/`); i >= 0 {
		u = u[i+1:]
	}
	return strings.ToUpper(u)
}
