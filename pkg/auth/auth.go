package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lendkit/creditledger/pkg/config"
	"github.com/lendkit/creditledger/pkg/models"
	"github.com/lendkit/creditledger/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials hides whether the username or the password was
// wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims carried in an issued token.
type Claims struct {
	Role       string `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and verifies bearer tokens for API users.
type Service struct {
	storage store.Storage
	log     *logrus.Logger
	config  *config.Config
}

// NewService initializes a new auth service
func NewService(storage store.Storage, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{storage: storage, log: log, config: cfg}
}

// Login authenticates a user and returns a signed JWT token.
func (s *Service) Login(username, password string) (string, error) {
	user, err := s.storage.GetUserByUsername(username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	if user.CustomerID != nil {
		claims.CustomerID = user.CustomerID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Username)
	return tokenString, nil
}

// Register creates a new API user with a hashed password. A customer id
// binds the user to a single customer record; without one the user must
// hold the ADMIN role.
func (s *Service) Register(username, password, role string, customerID *uuid.UUID) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hashedPassword),
		Role:         role,
		CustomerID:   customerID,
	}

	if err := s.storage.CreateUser(user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s (%s)", user.Username, user.Role)
	return user, nil
}

// EnsureAdmin seeds the configured admin user on first start.
func (s *Service) EnsureAdmin() error {
	_, err := s.storage.GetUserByUsername(s.config.AdminUser)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}
	if _, err := s.Register(s.config.AdminUser, s.config.AdminPassword, models.RoleAdmin, nil); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	return nil
}

// VerifyToken parses and validates a bearer token.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// CanAccessCustomer reports whether the token holder may act for the given
// customer: admins always, customers only for their own record.
func (c *Claims) CanAccessCustomer(customerID uuid.UUID) bool {
	if c.Role == models.RoleAdmin {
		return true
	}
	return c.CustomerID == customerID.String()
}
