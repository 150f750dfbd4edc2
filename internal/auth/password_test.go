package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() *Argon2Params {
	return NewParams(1024, 1, 1)
}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hedgehog", testParams())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := VerifyPassword("hedgehog", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("hedgehug", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("hedgehog", testParams())
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salt must differ")
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5",
	} {
		_, err := VerifyPassword("x", hash)
		assert.ErrorIs(t, err, ErrInvalidHash, hash)
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := HashPassword("hedgehog", testParams())
	require.NoError(t, err)

	assert.False(t, NeedsRehash(hash, testParams()))
	assert.True(t, NeedsRehash(hash, NewParams(2048, 1, 1)))
	assert.True(t, NeedsRehash("garbage", testParams()))
}

func TestValidatePassword(t *testing.T) {
	policy := PasswordPolicy{MinLength: 6}

	tests := []struct {
		password string
		want     error
	}{
		{"hedgehog", nil},
		{"monkey", nil},
		{"hog", ErrPasswordTooShort},
		{"aaaaaaaa", ErrPasswordRepeating},
		{strings.Repeat("ab", 65), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password, policy)
		if tt.want == nil {
			assert.NoError(t, err, tt.password)
			continue
		}
		assert.True(t, errors.Is(err, tt.want), "%q: got %v", tt.password, err)
	}

	err := ValidatePassword("monkey", PasswordPolicy{MinLength: 6, RejectCommon: true})
	assert.ErrorIs(t, err, ErrPasswordCommon)

	// a zero policy still enforces the default minimum
	assert.ErrorIs(t, ValidatePassword("abcde", PasswordPolicy{}), ErrPasswordTooShort)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "Andrew.Smith@test.com", NormalizeEmail("  Andrew.Smith@teSt.COM "))
	assert.Equal(t, "no-at-sign", NormalizeEmail("no-at-sign"))
	assert.True(t, SameEmail("Andrew.Smith@test.com", "andrew.smith@TEST.com"))
	assert.False(t, SameEmail("a@test.com", "b@test.com"))
}
