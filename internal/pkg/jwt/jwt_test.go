package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	token, err := Sign("admin", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.UserID)
}

func TestParseExpiredToken(t *testing.T) {
	token, err := Sign("admin", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token)
	assert.Error(t, err)
}

func TestParseTamperedToken(t *testing.T) {
	token, err := Sign("admin", time.Hour)
	require.NoError(t, err)

	_, err = Parse(token + "x")
	assert.Error(t, err)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("not-a-token")
	assert.Error(t, err)
}
