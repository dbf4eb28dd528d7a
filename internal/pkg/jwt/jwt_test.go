package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(Claims{
		UserID:    "u1",
		Email:     "u1@example.com",
		Orgs:      []string{"org1", "org2"},
		AdminOrgs: []string{"org2"},
	}, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "u1@example.com", claims.Email)
	require.True(t, claims.HasOrg("org1"))
	require.True(t, claims.HasOrg("org2"))
	require.False(t, claims.HasOrg("org3"))
	require.False(t, claims.IsOrgAdmin("org1"))
	require.True(t, claims.IsOrgAdmin("org2"))
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(Claims{UserID: "u1"}, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("other-secret"))
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken(Claims{UserID: "u1"}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	require.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	require.Error(t, err)
}
