package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier validates bearer tokens and resolves the caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// IdentityClaims models the JWT payload issued to shop clients.
type IdentityClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed JWTs issued by the identity service.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier constructs a verifier for HS256 tokens signed with secret.
// When issuer is non-empty the iss claim must match.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
	}, nil
}

// Verify parses and validates the token, returning the embedded identity.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if v == nil {
		return nil, ErrTokenInvalid
	}

	claims := &IdentityClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	roles := make([]string, 0, len(claims.Roles))
	seen := make(map[string]struct{}, len(claims.Roles))
	for _, role := range claims.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	return &Identity{
		UID:   uid,
		Email: strings.TrimSpace(claims.Email),
		Roles: roles,
	}, nil
}
