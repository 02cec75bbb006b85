package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"relay-agent/internal/domain"
	"relay-agent/internal/repository"
)

const (
	defaultBcryptCost = 10
	defaultTokenTTL   = 24 * time.Hour
)

// UserRepository persists accounts. CreateUser must report a taken email as
// repository.ErrUserExists; lookups report a missing user as
// repository.ErrUserNotFound.
type UserRepository interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
}

type AuthService struct {
	users      UserRepository
	secret     []byte
	bcryptCost int
	tokenTTL   time.Duration
	now        func() time.Time
}

type AuthOption func(*AuthService)

func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func WithTokenTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

type Credentials struct {
	Email    string
	Password string
}

type Profile struct {
	Email     string
	Connected bool
}

func NewAuthService(users UserRepository, secret string, opts ...AuthOption) (*AuthService, error) {
	if users == nil {
		return nil, errors.New("usecase: user repository must not be nil")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("usecase: jwt secret must not be empty")
	}
	s := &AuthService{
		users:      users,
		secret:     []byte(secret),
		bcryptCost: defaultBcryptCost,
		tokenTTL:   defaultTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *AuthService) Signup(ctx context.Context, in Credentials) error {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return newError(ErrorInvalidInput, "missing_fields", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return newError(ErrorInternal, "password_hash_error", err)
	}

	err = s.users.CreateUser(ctx, domain.User{
		ID:           newUUID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	})
	if errors.Is(err, repository.ErrUserExists) {
		return newError(ErrorInvalidInput, "user_exists", nil)
	}
	if err != nil {
		return newError(ErrorInternal, "user_store_error", err)
	}
	return nil
}

// Login returns a signed token whose subject is the user id.
func (s *AuthService) Login(ctx context.Context, in Credentials) (string, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return "", newError(ErrorInvalidInput, "missing_fields", nil)
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", newError(ErrorInvalidInput, "user_not_found", nil)
	}
	if err != nil {
		return "", newError(ErrorInternal, "user_store_error", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return "", newError(ErrorInvalidInput, "invalid_password", nil)
	}

	now := s.now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}).SignedString(s.secret)
	if err != nil {
		return "", newError(ErrorInternal, "token_sign_error", err)
	}
	return token, nil
}

// Me resolves the profile behind an Authorization header value of the form
// "Bearer <token>".
func (s *AuthService) Me(ctx context.Context, authorization string) (Profile, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return Profile{}, newError(ErrorUnauthorized, "missing_token", nil)
	}
	parts := strings.Fields(authorization)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Profile{}, newError(ErrorUnauthorized, "invalid_auth_format", nil)
	}
	token := parts[1]

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Profile{}, newError(ErrorUnauthorized, "invalid_token", err)
	}
	if claims.Subject == "" {
		return Profile{}, newError(ErrorUnauthorized, "invalid_token_structure", nil)
	}

	u, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return Profile{}, newError(ErrorNotFound, "user_not_found", nil)
	}
	if err != nil {
		return Profile{}, newError(ErrorInternal, "user_store_error", err)
	}
	return Profile{Email: u.Email, Connected: u.Connected}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var newUUID = func() string {
	return uuid.NewString()
}
