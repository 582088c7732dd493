package authn

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token issuer discriminators, spec.md §4.6: a token belonging to a user
// row is "user_token"; a user-less API token is "token".
const (
	IssuerUserToken = "user_token"
	IssuerToken     = "token"
)

// MintToken signs a minimal {iss, exp, iat} JWT with HS256. The caller
// supplies exp/iat explicitly (rather than "now"+ttl) because the DB row's
// expiration_date/updated_at columns must match the claims exactly for
// validation to succeed later (spec.md §4.6 step 2).
func MintToken(secret []byte, iss string, exp, iat int64) (string, error) {
	claims := jwt.MapClaims{
		"iss": iss,
		"exp": exp,
		"iat": iat,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Claims is the decoded {iss, exp, iat} payload.
type Claims struct {
	Issuer    string
	ExpiresAt int64
	IssuedAt  int64
}

// ParseClaims verifies the HS256 signature and decodes the claims, without
// relying on the embedded exp for expiry (spec.md §4.6: "Verification does
// NOT rely on the embedded exp"); that's checked against the DB row by the
// caller instead. Algorithm confusion is still rejected: only HS256 is
// accepted, matching the teacher's auth.ValidateToken.
func ParseClaims(secret []byte, tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())

	var claims jwt.MapClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	iss, _ := claims["iss"].(string)
	exp, err := numericClaim(claims["exp"])
	if err != nil {
		return nil, fmt.Errorf("invalid exp claim: %w", err)
	}
	iat, err := numericClaim(claims["iat"])
	if err != nil {
		return nil, fmt.Errorf("invalid iat claim: %w", err)
	}

	return &Claims{Issuer: iss, ExpiresAt: exp, IssuedAt: iat}, nil
}

func numericClaim(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		f, err := n.Int64()
		return f, err
	default:
		return 0, fmt.Errorf("expected numeric claim, got %T", v)
	}
}

// Now is a replaceable clock. The token checks in this package do not read
// it: expiry is compared against SQLite's own strftime('%s','now').
var Now = func() time.Time { return time.Now() }
