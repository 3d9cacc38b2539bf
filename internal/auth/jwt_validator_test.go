package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func TestTokenValidator(t *testing.T) {
	now := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)
	validator := TokenValidator{Issuer: "bookwise-api", Audience: "bookwise-web", ClockSkew: time.Second, Algorithm: jwa.HS256}

	build := func(t *testing.T, mutate func(*jwt.Builder) *jwt.Builder) jwt.Token {
		t.Helper()
		b := jwt.NewBuilder().
			Issuer("bookwise-api").
			Audience([]string{"bookwise-web"}).
			Subject("user-1").
			IssuedAt(now).
			NotBefore(now).
			Expiration(now.Add(time.Minute))
		if mutate != nil {
			b = mutate(b)
		}
		tok, err := b.Build()
		require.NoError(t, err)
		return tok
	}

	cases := []struct {
		name    string
		mutate  func(*jwt.Builder) *jwt.Builder
		alg     jwa.SignatureAlgorithm
		wantErr error
	}{
		{name: "valid", alg: jwa.HS256},
		{name: "issuer mismatch", alg: jwa.HS256, wantErr: ErrTokenClaims, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Issuer("other") }},
		{name: "audience mismatch", alg: jwa.HS256, wantErr: ErrTokenClaims, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Audience([]string{"admin"}) }},
		{name: "expired", alg: jwa.HS256, wantErr: ErrTokenClaims, mutate: func(b *jwt.Builder) *jwt.Builder { return b.Expiration(now.Add(-time.Minute)) }},
		{name: "algorithm mismatch", alg: jwa.HS512, wantErr: ErrTokenAlgorithm},
		{name: "missing algorithm", alg: "", wantErr: ErrTokenAlgorithm},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(build(t, tc.mutate), tc.alg, now)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRolesFromToken(t *testing.T) {
	tok, err := jwt.NewBuilder().Subject("user-1").Claim(rolesClaim, []any{"customer", 7, "admin"}).Build()
	require.NoError(t, err)
	require.Equal(t, []string{"customer", "admin"}, rolesFromToken(tok))

	tok, err = jwt.NewBuilder().Subject("user-1").Build()
	require.NoError(t, err)
	require.Nil(t, rolesFromToken(tok))
}
