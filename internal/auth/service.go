package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bookwise-api/internal/common"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	minPasswordLength = 6
	rolesClaim        = "roles"
)

var errInvalidCredentials = common.NewAppError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized, nil)

// Querier lists the user and session queries the service depends on.
type Querier interface {
	CreateUser(ctx context.Context, arg dbgen.CreateUserParams) (dbgen.User, error)
	GetUserByEmail(ctx context.Context, email string) (dbgen.User, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (dbgen.User, error)
	UpdateUserPasswordHash(ctx context.Context, arg dbgen.UpdateUserPasswordHashParams) error
	CreateSession(ctx context.Context, arg dbgen.CreateSessionParams) (dbgen.Session, error)
	GetSessionByTokenHash(ctx context.Context, refreshTokenHash string) (dbgen.Session, error)
	RevokeSession(ctx context.Context, id pgtype.UUID) error
}

// Service coordinates registration, credential checks and session rotation.
type Service struct {
	queries    Querier
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Queries         Querier
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the client-facing view of an account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tokens is an access token plus the refresh token that can renew it.
type Tokens struct {
	AccessToken   string    `json:"accessToken"`
	AccessExpiry  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken  string    `json:"-"`
	RefreshExpiry time.Time `json:"-"`
}

// LoginResult bundles the user with freshly issued tokens.
type LoginResult struct {
	User User `json:"user"`
	Tokens
}

// Claims are the identity facts carried by a verified access token.
type Claims struct {
	UserID string
	Roles  []string
}

// NewService constructs a Service, filling TTL and claim defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("auth: queries is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "bookwise-api"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "bookwise-web"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		queries:    cfg.Queries,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates an account. A duplicate email yields a 409 AppError.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, common.BadRequest("name is required", nil)
	}
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" {
		return User{}, common.BadRequest("email is required", nil)
	}
	if len(password) < minPasswordLength {
		return User{}, common.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength), nil)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.queries.CreateUser(ctx, dbgen.CreateUserParams{
		Name:         name,
		Email:        normalizedEmail,
		PasswordHash: hash,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, common.NewAppError("USER_EXISTS", "User already exists", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return toUser(created), nil
}

// Login verifies credentials and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ip string) (LoginResult, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, errInvalidCredentials
	}

	dbUser, err := s.queries.GetUserByEmail(ctx, normalizedEmail)
	if err != nil {
		return LoginResult{}, errInvalidCredentials
	}

	ok, legacy := verifyPassword(password, dbUser.PasswordHash)
	if !ok {
		return LoginResult{}, errInvalidCredentials
	}
	if legacy {
		s.upgradeHash(ctx, dbUser.ID, password)
	}

	tokens, err := s.issue(ctx, dbUser, userAgent, ip)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: toUser(dbUser), Tokens: tokens}, nil
}

// Refresh rotates a refresh token. The presented token is revoked whether or
// not a new pair could be issued.
func (s *Service) Refresh(ctx context.Context, refreshToken, userAgent, ip string) (Tokens, error) {
	unauthorized := common.NewAppError("UNAUTHORIZED", "invalid refresh token", http.StatusUnauthorized, nil)
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return Tokens{}, unauthorized
	}

	session, err := s.queries.GetSessionByTokenHash(ctx, common.Sha256Hex(token))
	if err != nil {
		return Tokens{}, unauthorized
	}
	if session.RevokedAt.Valid {
		return Tokens{}, unauthorized
	}
	if err := s.queries.RevokeSession(ctx, session.ID); err != nil {
		return Tokens{}, fmt.Errorf("revoke session: %w", err)
	}
	if !session.ExpiresAt.Valid || s.now().After(session.ExpiresAt.Time) {
		return Tokens{}, unauthorized
	}

	dbUser, err := s.queries.GetUserByID(ctx, session.UserID)
	if err != nil {
		return Tokens{}, unauthorized
	}
	return s.issue(ctx, dbUser, userAgent, ip)
}

// Logout revokes the session owning refreshToken. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	session, err := s.queries.GetSessionByTokenHash(ctx, common.Sha256Hex(token))
	if err != nil {
		return nil
	}
	return s.queries.RevokeSession(ctx, session.ID)
}

// Me fetches the authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	unauthorized := common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, nil)
	id, err := pgUUIDFromString(userID)
	if err != nil {
		return User{}, unauthorized
	}
	dbUser, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return User{}, unauthorized
	}
	return toUser(dbUser), nil
}

// ParseAccessToken verifies token and returns its claims.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.checkAlgorithm(algorithm); err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return Claims{UserID: parsed.Subject(), Roles: rolesFromToken(parsed)}, nil
}

func (s *Service) issue(ctx context.Context, u dbgen.User, userAgent, ip string) (Tokens, error) {
	userID := uuidString(u.ID)
	if userID == "" {
		return Tokens{}, errors.New("auth: invalid user identifier")
	}
	access, accessExpiry, err := s.signAccessToken(userID, u.Roles)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := generateToken(48)
	if err != nil {
		return Tokens{}, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpiry := s.now().Add(s.refreshTTL)
	if _, err := s.queries.CreateSession(ctx, dbgen.CreateSessionParams{
		UserID:           u.ID,
		RefreshTokenHash: common.Sha256Hex(refresh),
		UserAgent:        pgText(userAgent),
		Ip:               pgText(ip),
		ExpiresAt:        pgtype.Timestamptz{Time: refreshExpiry, Valid: true},
	}); err != nil {
		return Tokens{}, fmt.Errorf("create session: %w", err)
	}
	return Tokens{
		AccessToken:   access,
		AccessExpiry:  accessExpiry,
		RefreshToken:  refresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

func (s *Service) signAccessToken(userID string, roles []string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt)
	if len(roles) > 0 {
		builder = builder.Claim(rolesClaim, roles)
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// upgradeHash replaces a bcrypt hash with argon2id after a successful login.
// Failure only means the upgrade is retried on the next login.
func (s *Service) upgradeHash(ctx context.Context, id pgtype.UUID, password string) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return
	}
	_ = s.queries.UpdateUserPasswordHash(ctx, dbgen.UpdateUserPasswordHashParams{ID: id, PasswordHash: hash})
}

// verifyPassword checks password against an argon2id or bcrypt hash. legacy
// reports a bcrypt match.
func verifyPassword(password, hash string) (ok bool, legacy bool) {
	if strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, true
	}
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	return err == nil && match, false
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "":
			return "", errors.New("auth: token missing algorithm")
		case alg == jwa.NoSignature:
			return "", errors.New("auth: token uses none algorithm")
		case algorithm == "":
			algorithm = alg
		case algorithm != alg:
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toUser(u dbgen.User) User {
	out := User{
		ID:    uuidString(u.ID),
		Name:  u.Name,
		Email: u.Email,
		Roles: u.Roles,
	}
	if u.CreatedAt.Valid {
		out.CreatedAt = u.CreatedAt.Time
	}
	return out
}

func pgUUIDFromString(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func pgText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
