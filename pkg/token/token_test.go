package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAndParseJWT(t *testing.T) {
	tok, err := GenerateJWT("u1", "user", "socket_service")
	assert.NoError(t, err)
	assert.NotEmpty(t, tok)

	claims, err := ParseJWT(tok)
	assert.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "socket_service", claims.Issuer)
}

func TestParseJWT_Garbage(t *testing.T) {
	claims, err := ParseJWT("not-a-token")
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestParseJWT_WrongSignature(t *testing.T) {
	tok, err := GenerateJWT("u1", "user", "socket_service")
	assert.NoError(t, err)

	original := JWTSecret
	JWTSecret = []byte("another_secret")
	defer func() { JWTSecret = original }()

	claims, err := ParseJWT(tok)
	assert.Error(t, err)
	assert.Nil(t, claims)
}
