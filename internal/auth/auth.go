// Package auth registers and authenticates users. Passwords are stored as
// bcrypt hashes and sessions are stateless HMAC-signed JWT access tokens whose
// subject is the username.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesh-intelligence/fusion/pkg/types"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultAlgorithm      = "HS256"
	DefaultAccessTokenTTL = 30 * time.Minute
)

// maxPasswordBytes is the longest input bcrypt hashes without truncation.
const maxPasswordBytes = 72

// Errors returned by the service.
var (
	ErrInvalidToken      = errors.New("could not validate credentials")
	ErrBadCredentials    = errors.New("incorrect username or password")
	ErrInactiveUser      = errors.New("inactive user")
	ErrValidation        = errors.New("validation failed")
	ErrPasswordTooLong   = fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordBytes)
	ErrMissingSecret     = errors.New("jwt secret key must not be empty")
	ErrUnsupportedMethod = errors.New("unsupported jwt algorithm")
)

// Config holds the token and hashing settings.
type Config struct {
	SecretKey      string
	Algorithm      string
	AccessTokenTTL time.Duration
	BcryptCost     int
}

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and checks credentials. It holds no per-request state.
type Service struct {
	secret    []byte
	method    jwt.SigningMethod
	ttl       time.Duration
	cost      int
	now       func() time.Time
	dummyHash []byte
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecret
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, alg)
	}
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("fusion"), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt cost %d: %w", cost, err)
	}

	return &Service{
		secret:    []byte(cfg.SecretKey),
		method:    method,
		ttl:       ttl,
		cost:      cost,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash.
func (s *Service) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CreateAccessToken signs a token for subject. A non-positive ttl selects the
// configured default.
func (s *Service) CreateAccessToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// DecodeAccessToken verifies signature, algorithm and expiry and returns the
// claims. Every failure wraps ErrInvalidToken.
func (s *Service) DecodeAccessToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Registration is the input of Register.
type Registration struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Validate checks the registration fields. Failures wrap ErrValidation.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(r.Password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// Register creates an active user. An existing email or username fails with
// types.ErrDuplicateUser, whether found by the pre-check or rejected by the
// engine's unique constraint.
func (s *Service) Register(ctx context.Context, store types.UserStore, r Registration) (*types.User, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	existing, err := store.FindByEither(ctx, r.Email, r.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.ErrDuplicateUser
	}

	hash, err := s.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	user := types.NewUser(r.Email, r.Username, hash, r.FullName)
	if _, err := store.Insert(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both yield ErrBadCredentials; a disabled account yields
// ErrInactiveUser along with the user.
func (s *Service) Authenticate(ctx context.Context, store types.UserStore, username, password string) (*types.User, error) {
	user, err := store.FindByField(ctx, types.FieldUsername, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrBadCredentials
	}
	if !s.VerifyPassword(password, user.HashedPassword) {
		return nil, ErrBadCredentials
	}
	if !user.IsActive {
		return user, ErrInactiveUser
	}
	return user, nil
}

// CurrentUser resolves a bearer token to its user. A valid token whose
// subject no longer exists is rejected like an invalid one.
func (s *Service) CurrentUser(ctx context.Context, store types.UserStore, token string) (*types.User, error) {
	claims, err := s.DecodeAccessToken(token)
	if err != nil {
		return nil, err
	}
	user, err := store.FindByField(ctx, types.FieldUsername, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	return user, nil
}
