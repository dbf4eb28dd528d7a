package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims is the session payload minted by the external auth collaborator.
// Orgs lists every tenant the user belongs to; AdminOrgs the subset they
// administer.
type Claims struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Orgs      []string `json:"orgs,omitempty"`
	AdminOrgs []string `json:"admin_orgs,omitempty"`
	jwtlib.RegisteredClaims
}

func (c *Claims) HasOrg(orgID string) bool {
	for _, org := range c.Orgs {
		if org == orgID {
			return true
		}
	}
	return false
}

func (c *Claims) IsOrgAdmin(orgID string) bool {
	for _, org := range c.AdminOrgs {
		if org == orgID {
			return true
		}
	}
	return false
}

func GenerateToken(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwtlib.NewNumericDate(time.Now()),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
