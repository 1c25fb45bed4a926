package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesh-intelligence/fusion/internal/engine"
	"github.com/mesh-intelligence/fusion/internal/engine/enginetest"
	"github.com/mesh-intelligence/fusion/internal/uow"
	"github.com/mesh-intelligence/fusion/pkg/types"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := New(Config{SecretKey: "test-secret", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return s
}

// newUnit returns an open unit of work over a fresh SQLite database.
func newUnit(t *testing.T) types.UnitOfWork {
	t.Helper()
	ctx := context.Background()
	e, err := engine.Open(ctx, enginetest.SQLite(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Migrate(ctx))

	unit, err := uow.NewProvider(e).Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unit.Close() })
	return unit
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = New(Config{SecretKey: "k", Algorithm: "RS256"})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)

	_, err = New(Config{SecretKey: "k", Algorithm: "none"})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)

	s, err := New(Config{SecretKey: "k", Algorithm: "HS512", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.Equal(t, "HS512", s.method.Alg())
	assert.Equal(t, DefaultAccessTokenTTL, s.ttl)
}

func TestPasswordHashing(t *testing.T) {
	s := newService(t)

	hash, err := s.HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, s.VerifyPassword("s3cret", hash))
	assert.False(t, s.VerifyPassword("wrong", hash))

	_, err = s.HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccessToken(t *testing.T) {
	s := newService(t)

	t.Run("round trip", func(t *testing.T) {
		token, err := s.CreateAccessToken("alice", 0)
		require.NoError(t, err)

		claims, err := s.DecodeAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
		require.NotNil(t, claims.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(DefaultAccessTokenTTL), claims.ExpiresAt.Time, 5*time.Second)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := s.CreateAccessToken("alice", time.Minute)
		require.NoError(t, err)

		later := *s
		later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err = later.DecodeAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := New(Config{SecretKey: "other", BcryptCost: bcrypt.MinCost})
		require.NoError(t, err)
		token, err := other.CreateAccessToken("alice", 0)
		require.NoError(t, err)

		_, err = s.DecodeAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = s.DecodeAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.DecodeAccessToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRegistrationValidate(t *testing.T) {
	tests := []struct {
		name    string
		reg     Registration
		wantErr bool
	}{
		{name: "valid", reg: Registration{Email: "a@x.com", Username: "a", Password: "pw"}},
		{name: "missing email", reg: Registration{Username: "a", Password: "pw"}, wantErr: true},
		{name: "bad email", reg: Registration{Email: "not-an-email", Username: "a", Password: "pw"}, wantErr: true},
		{name: "display name form", reg: Registration{Email: "A <a@x.com>", Username: "a", Password: "pw"}, wantErr: true},
		{name: "missing username", reg: Registration{Email: "a@x.com", Password: "pw"}, wantErr: true},
		{name: "missing password", reg: Registration{Email: "a@x.com", Username: "a"}, wantErr: true},
		{name: "long password", reg: Registration{Email: "a@x.com", Username: "a", Password: strings.Repeat("p", 80)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newService(t)
	unit := newUnit(t)
	ctx := context.Background()

	user, err := s.Register(ctx, unit, Registration{Email: "a@x.com", Username: "a", Password: "pw", FullName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, types.SeqID(1), user.ID)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "pw", user.HashedPassword)

	_, err = s.Register(ctx, unit, Registration{Email: "a@x.com", Username: "b", Password: "pw"})
	assert.ErrorIs(t, err, types.ErrDuplicateUser)
	_, err = s.Register(ctx, unit, Registration{Email: "b@x.com", Username: "a", Password: "pw"})
	assert.ErrorIs(t, err, types.ErrDuplicateUser)

	got, err := s.Authenticate(ctx, unit, "a", "pw")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.Authenticate(ctx, unit, "a", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = s.Authenticate(ctx, unit, "nobody", "pw")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	s := newService(t)
	unit := newUnit(t)
	ctx := context.Background()

	hash, err := s.HashPassword("pw")
	require.NoError(t, err)
	u := types.NewUser("off@x.com", "off", hash, "")
	u.IsActive = false
	_, err = unit.Insert(ctx, u)
	require.NoError(t, err)

	got, err := s.Authenticate(ctx, unit, "off", "pw")
	assert.ErrorIs(t, err, ErrInactiveUser)
	require.NotNil(t, got)
	assert.Equal(t, "off", got.Username)
}

func TestCurrentUser(t *testing.T) {
	s := newService(t)
	unit := newUnit(t)
	ctx := context.Background()

	_, err := s.Register(ctx, unit, Registration{Email: "a@x.com", Username: "a", Password: "pw"})
	require.NoError(t, err)

	token, err := s.CreateAccessToken("a", 0)
	require.NoError(t, err)
	me, err := s.CurrentUser(ctx, unit, token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", me.Email)

	ghost, err := s.CreateAccessToken("ghost", 0)
	require.NoError(t, err)
	_, err = s.CurrentUser(ctx, unit, ghost)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
