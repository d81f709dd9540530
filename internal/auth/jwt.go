package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/niraliveastro/astro-call-service/internal/errs"
)

// ErrInvalidToken is returned for tokens that cannot be verified. Callers
// treat it as "no identity", not as a rejection.
var ErrInvalidToken = errors.New("invalid bearer token")

// Verifier checks HS256 bearer tokens issued for astrologers.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier; with an empty secret it is disabled.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (v *Verifier) Enabled() bool { return v != nil && len(v.secret) > 0 }

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// Subject verifies the token and returns the identity it was issued to:
// the "sub" claim, falling back to "uid".
func (v *Verifier) Subject(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	for _, key := range []string{"sub", "uid"} {
		if s, ok := claims[key].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: no subject claim", ErrInvalidToken)
}

// Authorize checks that a verified token belongs to astrologerID.
// It returns errs.ErrUnauthorized on a subject mismatch and ErrInvalidToken
// when the token itself cannot be verified.
func (v *Verifier) Authorize(token, astrologerID string) error {
	sub, err := v.Subject(token)
	if err != nil {
		return err
	}
	if sub != astrologerID {
		return errs.ErrUnauthorized
	}
	return nil
}

// Sign issues a token for subject. Used by the token command and tests.
func (v *Verifier) Sign(subject string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
