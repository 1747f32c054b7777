package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"library_turnover/backend/internal/shared"
)

const tokenIssuer = "library-turnover"

var ErrInvalidToken = errors.New("invalid token")

// AccountClaims identifies the school account a token acts for. The account
// id travels in the standard subject claim.
type AccountClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for account
func IssueToken(secret []byte, account, name string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := AccountClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        shared.GenerateID("jti"),
			Subject:   account,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies signature, expiry and issuer, and returns the claims
func ParseToken(secret []byte, tokenString string) (*AccountClaims, error) {
	claims := &AccountClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type ctxKey struct{}

// WithAccount stores the caller's account id in ctx
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, ctxKey{}, account)
}

// AccountFromContext returns the account id set by the auth middleware
func AccountFromContext(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(ctxKey{}).(string)
	return account, ok && account != ""
}
