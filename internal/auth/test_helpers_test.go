package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

var testNow = time.Date(2025, time.October, 1, 9, 0, 0, 0, time.UTC)

type fakeQueries struct {
	mu       sync.Mutex
	users    map[uuid.UUID]dbgen.User
	sessions map[uuid.UUID]dbgen.Session
	now      func() time.Time
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		users:    make(map[uuid.UUID]dbgen.User),
		sessions: make(map[uuid.UUID]dbgen.Session),
		now:      func() time.Time { return testNow },
	}
}

func (f *fakeQueries) CreateUser(_ context.Context, arg dbgen.CreateUserParams) (dbgen.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == arg.Email {
			return dbgen.User{}, &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_idx"}
		}
	}
	id := uuid.New()
	ts := pgtype.Timestamptz{Time: f.now(), Valid: true}
	u := dbgen.User{
		ID:           pgtype.UUID{Bytes: id, Valid: true},
		Name:         arg.Name,
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
		Roles:        []string{"customer"},
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	f.users[id] = u
	return u, nil
}

func (f *fakeQueries) GetUserByEmail(_ context.Context, email string) (dbgen.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return dbgen.User{}, pgx.ErrNoRows
}

func (f *fakeQueries) GetUserByID(_ context.Context, id pgtype.UUID) (dbgen.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uuid.UUID(id.Bytes)]
	if !ok {
		return dbgen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeQueries) UpdateUserPasswordHash(_ context.Context, arg dbgen.UpdateUserPasswordHashParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uuid.UUID(arg.ID.Bytes)]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = arg.PasswordHash
	f.users[uuid.UUID(arg.ID.Bytes)] = u
	return nil
}

func (f *fakeQueries) CreateSession(_ context.Context, arg dbgen.CreateSessionParams) (dbgen.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	s := dbgen.Session{
		ID:               pgtype.UUID{Bytes: id, Valid: true},
		UserID:           arg.UserID,
		RefreshTokenHash: arg.RefreshTokenHash,
		UserAgent:        arg.UserAgent,
		Ip:               arg.Ip,
		ExpiresAt:        arg.ExpiresAt,
		CreatedAt:        pgtype.Timestamptz{Time: f.now(), Valid: true},
	}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeQueries) GetSessionByTokenHash(_ context.Context, hash string) (dbgen.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.RefreshTokenHash == hash {
			return s, nil
		}
	}
	return dbgen.Session{}, pgx.ErrNoRows
}

func (f *fakeQueries) RevokeSession(_ context.Context, id pgtype.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[uuid.UUID(id.Bytes)]
	if ok && !s.RevokedAt.Valid {
		s.RevokedAt = pgtype.Timestamptz{Time: f.now(), Valid: true}
		f.sessions[uuid.UUID(id.Bytes)] = s
	}
	return nil
}

func (f *fakeQueries) activeSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if !s.RevokedAt.Valid {
			n++
		}
	}
	return n
}

// seedUser stores a user whose password hash is produced by hash.
func (f *fakeQueries) seedUser(t *testing.T, email, hash string) dbgen.User {
	t.Helper()
	u, err := f.CreateUser(context.Background(), dbgen.CreateUserParams{Name: "Test Reader", Email: email, PasswordHash: hash})
	require.NoError(t, err)
	return u
}

func argonHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := argon2id.CreateHash(password, &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	return hash
}

func newTestService(t *testing.T, q *fakeQueries) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Queries:         q,
		Secret:          "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return testNow })
	return svc
}
