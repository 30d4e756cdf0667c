package mcppool

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerAuth_SignTokenRoundTrips(t *testing.T) {
	auth := BearerAuth{Secret: "s3cret", Issuer: "agentcore", TTL: time.Minute}

	tokenStr, err := auth.SignToken("fs")
	require.NoError(t, err)

	token, err := jwt.Parse(tokenStr, func(tok *jwt.Token) (any, error) {
		return []byte(auth.Secret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "fs", claims["sub"])
	assert.Equal(t, "agentcore", claims["iss"])
}

func TestBearerAuth_SignTokenRequiresSecret(t *testing.T) {
	_, err := BearerAuth{}.SignToken("fs")
	assert.Error(t, err)
}

func TestBearerAuth_SignTokenDefaultsTTL(t *testing.T) {
	auth := BearerAuth{Secret: "s3cret"}
	tokenStr, err := auth.SignToken("fs")
	require.NoError(t, err)

	token, _ := jwt.Parse(tokenStr, func(tok *jwt.Token) (any, error) {
		return []byte(auth.Secret), nil
	})
	claims := token.Claims.(jwt.MapClaims)
	exp := int64(claims["exp"].(float64))
	iat := int64(claims["iat"].(float64))
	assert.InDelta(t, DefaultBearerTTL.Seconds(), float64(exp-iat), 1)
}
