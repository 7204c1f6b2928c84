package auth

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", hash)

	assert.True(t, VerifyPassword("Secret123", hash))
	assert.False(t, VerifyPassword("secret123", hash))
	assert.False(t, VerifyPassword("Secret123", "not-a-hash"))
}

func TestCheckPasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		problems int
	}{
		{"valid", "Abcdef12", 0},
		{"too short", "Ab1", 1},
		{"no upper", "abcdef12", 1},
		{"no lower", "ABCDEF12", 1},
		{"no digit", "Abcdefgh", 1},
		{"everything wrong", "abc", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPasswordPolicy(tt.password)
			if tt.problems == 0 {
				assert.NoError(t, err)
				return
			}
			var policyErr *PolicyError
			require.ErrorAs(t, err, &policyErr)
			assert.Len(t, policyErr.Problems, tt.problems)
		})
	}
}

func TestGenerateTempPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw, err := GenerateTempPassword()
		require.NoError(t, err)
		assert.Len(t, pw, 12)
		assert.NoError(t, CheckPasswordPolicy(pw))
		for _, r := range pw {
			assert.False(t, r == '0' || r == 'O' || r == '1' || r == 'l' || r == 'I',
				"ambiguous character %q in %q", r, pw)
		}
		assert.False(t, seen[pw], "duplicate temp password")
		seen[pw] = true
	}
}

func TestGenerateTempPasswordClassesShuffled(t *testing.T) {
	// The guaranteed upper/lower/digit must not always sit in front.
	frontAlwaysUpper := true
	for i := 0; i < 50; i++ {
		pw, err := GenerateTempPassword()
		require.NoError(t, err)
		if !unicode.IsUpper(rune(pw[0])) {
			frontAlwaysUpper = false
			break
		}
	}
	assert.False(t, frontAlwaysUpper)
}

func TestNewSessionID(t *testing.T) {
	a, err := NewSessionID()
	require.NoError(t, err)
	b, err := NewSessionID()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dupont", "DUPONT"},
		{"  dupont  ", "DUPONT"},
		{`CORP\dupont`, "DUPONT"},
		{"corp/dupont", "DUPONT"},
		{`a\b\dupont`, "DUPONT"},
		{"Dupont", "DUPONT"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeUsername(tt.in), "input %q", tt.in)
	}
}
