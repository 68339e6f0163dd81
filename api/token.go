package api

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskhub-api/domain"
)

// tokenTTL matches the 24h lifetime issued by the original auth service.
const tokenTTL = 24 * time.Hour

// TokenIssuer signs HS256 session tokens carrying the user identity. Tokens
// are stateless bearer credentials: nothing is persisted server-side and
// validity is purely signature plus expiry.
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer creates an issuer signing with the given shared secret.
func NewTokenIssuer(secret []byte, issuer string) *TokenIssuer {
	if len(secret) == 0 {
		panic("api.NewTokenIssuer: empty secret")
	}
	return &TokenIssuer{secret: secret, issuer: issuer}
}

// Issue returns a signed token for the given user.
func (i *TokenIssuer) Issue(user domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}
