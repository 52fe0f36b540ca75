package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrLoginNotFound covers unknown, revoked and expired logins alike
var ErrLoginNotFound = errors.New("login not found")

// OpenLogin stores a login for its user. A user holds at most one login, so
// an older one is overwritten and every token bound to it stops validating.
func (s *Store) OpenLogin(rec LoginRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO logins (login_id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			login_id = excluded.login_id,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		rec.LoginID, rec.UserID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("open login for %s: %w", rec.UserID, err)
	}
	return nil
}

// ActiveLogin returns the owner of a login that is still live at now
func (s *Store) ActiveLogin(loginID string, now time.Time) (string, error) {
	var userID string
	err := s.db.QueryRow(`SELECT user_id FROM logins WHERE login_id = ? AND expires_at > ?`,
		loginID, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLoginNotFound
	}
	if err != nil {
		return "", fmt.Errorf("look up login: %w", err)
	}
	return userID, nil
}

// CloseLogin revokes a login; closing an unknown login is not an error
func (s *Store) CloseLogin(loginID string) error {
	_, err := s.db.Exec(`DELETE FROM logins WHERE login_id = ?`, loginID)
	return err
}

func (s *Store) PurgeExpiredLogins(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM logins WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
