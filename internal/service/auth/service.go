package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nlin-dev/chatrelay/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid token")
)

// User is the public identity attached to authenticated requests.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type record struct {
	user User
	hash []byte
}

// Service issues and verifies bearer tokens over an in-memory user store.
type Service struct {
	secret []byte
	ttl    time.Duration

	mu    sync.RWMutex
	users map[string]record
}

// NewService builds the auth service from configuration.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		users:  make(map[string]record),
	}
}

// Register creates a user and returns their identity with a fresh token.
func (s *Service) Register(name, email, password string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return User{}, "", ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := User{ID: uuid.NewString(), Name: name, Email: email}

	s.mu.Lock()
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		return User{}, "", ErrEmailTaken
	}
	s.users[email] = record{user: user, hash: hash}
	s.mu.Unlock()

	token, err := s.issue(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Login checks the credentials and returns the identity with a fresh
// token. Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(email, password string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	rec, ok := s.users[email]
	s.mu.RUnlock()

	if !ok {
		return User{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := s.issue(rec.user)
	if err != nil {
		return User{}, "", err
	}
	return rec.user, token, nil
}

// Verify parses a bearer token and returns the identity it carries.
func (s *Service) Verify(token string) (User, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return User{}, ErrInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return User{}, ErrInvalidToken
	}

	return User{ID: c.Subject, Name: c.Name, Email: c.Email}, nil
}

type claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Service) issue(user User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
