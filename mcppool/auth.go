package mcppool

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerAuth mints short-lived HS256 bearer tokens for a single MCP
// server's shared secret. Grounded on cmd/agentflow/middleware.go's
// JWTAuth, but inverted: the core is the client dialing the MCP server,
// so it signs the token it presents rather than verifying one it
// receives.
type BearerAuth struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// DefaultBearerTTL is used when BearerAuth.TTL is zero.
const DefaultBearerTTL = 5 * time.Minute

// SignToken produces a signed bearer token identifying the pool as the
// given subject (conventionally the MCP server name), valid for TTL.
func (a BearerAuth) SignToken(subject string) (string, error) {
	if a.Secret == "" {
		return "", fmt.Errorf("mcppool: bearer auth requires a secret")
	}
	ttl := a.TTL
	if ttl <= 0 {
		ttl = DefaultBearerTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.Secret))
}
