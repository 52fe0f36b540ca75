package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chessduel/internal/server/storage"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked or expired")
)

// User represents a registered user account
type User struct {
	UserID    string
	Username  string
	Email     string
	CreatedAt time.Time
}

// Claims are the identity fields carried by a validated token
type Claims struct {
	UserID    string
	Username  string
	SessionID string
}

func userFromRecord(r *storage.UserRecord) *User {
	return &User{
		UserID:    r.UserID,
		Username:  r.Username,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
	}
}

// CreateUser registers a permanent account
func (s *Service) CreateUser(username, email, password string) (*User, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.generateUniqueUserID()
	if err != nil {
		return nil, err
	}

	record := storage.UserRecord{
		UserID:       userID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		AccountType:  "permanent",
		CreatedAt:    time.Now().UTC(),
	}
	if err = s.store.CreateUser(record); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user", userID), zap.String("username", username))
	return userFromRecord(&record), nil
}

// AuthenticateUser verifies credentials given a username or email
func (s *Service) AuthenticateUser(identifier, password string) (*User, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	var record *storage.UserRecord
	var err error
	if strings.Contains(identifier, "@") {
		record, err = s.store.GetUserByEmail(identifier)
	} else {
		record, err = s.store.GetUserByUsername(identifier)
	}

	if err != nil {
		// Hash anyway so unknown users take as long as wrong passwords
		auth.HashPassword(password)
		return nil, ErrInvalidCredentials
	}

	if err := auth.VerifyPassword(password, record.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	return userFromRecord(record), nil
}

// UpdateLastLogin updates the last login timestamp for a user
func (s *Service) UpdateLastLogin(userID string) error {
	if s.store == nil {
		return ErrStorageDisabled
	}
	return s.store.UpdateUserLastLoginSync(userID, time.Now().UTC())
}

// GetUserByID retrieves user information by user ID
func (s *Service) GetUserByID(userID string) (*User, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}

	record, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return userFromRecord(record), nil
}

// GenerateUserToken opens an auth session for the user, replacing any older
// one, and issues a token bound to it
func (s *Service) GenerateUserToken(userID string) (string, time.Time, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now().UTC()
	sessionID := uuid.New().String()
	expiresAt := now.Add(SessionTTL)
	if err := s.store.OpenLogin(storage.LoginRecord{
		LoginID:   sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", time.Time{}, err
	}

	claims := map[string]any{
		"username": user.Username,
		"email":    user.Email,
		"sid":      sessionID,
	}

	token, err := auth.GenerateHS256Token(s.jwtSecret, userID, claims, SessionTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateToken verifies the token signature and that its auth session is live
func (s *Service) ValidateToken(token string) (string, map[string]any, error) {
	userID, claims, err := auth.ValidateHS256Token(s.jwtSecret, token)
	if err != nil {
		return "", nil, err
	}

	if s.store != nil {
		sid, _ := claims["sid"].(string)
		if sid == "" {
			return "", nil, ErrSessionRevoked
		}
		owner, err := s.store.ActiveLogin(sid, time.Now().UTC())
		if err != nil || owner != userID {
			return "", nil, ErrSessionRevoked
		}
	}
	return userID, claims, nil
}

// Identify validates a token and extracts the identity claims
func (s *Service) Identify(token string) (*Claims, error) {
	userID, claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	c := &Claims{UserID: userID}
	c.Username, _ = claims["username"].(string)
	c.SessionID, _ = claims["sid"].(string)
	return c, nil
}

// Logout revokes the auth session behind a token
func (s *Service) Logout(sessionID string) error {
	if s.store == nil {
		return ErrStorageDisabled
	}
	return s.store.CloseLogin(sessionID)
}

func (s *Service) generateUniqueUserID() (string, error) {
	const maxAttempts = 10

	for i := 0; i < maxAttempts; i++ {
		id := uuid.New().String()
		if _, err := s.store.GetUserByID(id); err != nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique ID after %d attempts", maxAttempts)
}
