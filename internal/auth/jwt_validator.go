package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrTokenAlgorithm is returned for tokens signed with an unexpected or missing algorithm.
	ErrTokenAlgorithm = errors.New("auth: unexpected token algorithm")
	// ErrTokenClaims is returned when registered claims fail validation.
	ErrTokenClaims = errors.New("auth: invalid token claims")
)

// TokenValidator checks the header algorithm and the registered claims of
// access tokens issued by Service.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate reports the first failed check. Subject and expiry are mandatory.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return fmt.Errorf("%w: empty token", ErrTokenClaims)
	}
	if err := v.checkAlgorithm(algorithm); err != nil {
		return err
	}
	if err := jwt.Validate(tok, v.options(now)...); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenClaims, err)
	}
	return nil
}

func (v TokenValidator) checkAlgorithm(algorithm jwa.SignatureAlgorithm) error {
	switch {
	case algorithm == "":
		return fmt.Errorf("%w: none", ErrTokenAlgorithm)
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return fmt.Errorf("%w: %s", ErrTokenAlgorithm, algorithm)
	}
	return nil
}

func (v TokenValidator) options(now time.Time) []jwt.ValidateOption {
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return opts
}

// rolesFromToken reads the roles claim, which decodes as []any after a round trip.
func rolesFromToken(tok jwt.Token) []string {
	raw, ok := tok.Get(rolesClaim)
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
