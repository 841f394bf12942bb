package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidate(t *testing.T) {
	tok, err := CreateAccessToken("s3cret", "user-1", RoleDriver, "d@example.com", time.Minute)
	require.NoError(t, err)

	c, err := ParseValidate("s3cret", tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Sub)
	assert.Equal(t, RoleDriver, c.Role)

	_, err = ParseValidate("other", tok)
	assert.Error(t, err)
}

func TestParseValidateExpired(t *testing.T) {
	tok, err := CreateAccessToken("s3cret", "user-1", RoleDriver, "", -time.Minute)
	require.NoError(t, err)

	_, err = ParseValidate("s3cret", tok)
	assert.Error(t, err)
}
