package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrUserExists = errors.New("username or email already exists")

const userColumns = `user_id, username, email, password_hash, account_type, created_at, expires_at, last_login_at`

// CreateUser inserts a user, checking uniqueness inside the same transaction
func (s *Store) CreateUser(record UserRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := s.userExists(tx, record.Username, record.Email)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}

	if record.AccountType == "" {
		record.AccountType = "permanent"
	}

	query := `INSERT INTO users (
		user_id, username, email, password_hash, account_type, created_at, expires_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.Exec(query,
		record.UserID, record.Username, record.Email,
		record.PasswordHash, record.AccountType, record.CreatedAt, record.ExpiresAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) userExists(tx *sql.Tx, username, email string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE username = ? COLLATE NOCASE`
	args := []any{username}

	if email != "" {
		query = `SELECT COUNT(*) FROM users WHERE username = ? COLLATE NOCASE OR email = ? COLLATE NOCASE`
		args = append(args, email)
	}

	if err := tx.QueryRow(query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteExpiredTempUsers removes temporary users past their expiry
func (s *Store) DeleteExpiredTempUsers() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM users WHERE account_type = 'temp' AND expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteUser removes a user and, through the foreign key, their auth session
func (s *Store) DeleteUser(userID string) error {
	result, err := s.db.Exec(`DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateUserPassword(userID string, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE user_id = ?`, passwordHash, userID)
	return err
}

func (s *Store) UpdateUserEmail(userID string, email string) error {
	_, err := s.db.Exec(`UPDATE users SET email = ? WHERE user_id = ?`, email, userID)
	return err
}

func (s *Store) UpdateUserUsername(userID string, username string) error {
	_, err := s.db.Exec(`UPDATE users SET username = ? WHERE user_id = ?`, username, userID)
	return err
}

// UpdateUserLastLoginSync updates user last login time
func (s *Store) UpdateUserLastLoginSync(userID string, loginTime time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET last_login_at = ? WHERE user_id = ?`, loginTime, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login for user %s: %w", userID, err)
	}
	return nil
}

// GetAllUsers retrieves all users, newest first
func (s *Store) GetAllUsers() ([]UserRecord, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserRecord
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// GetUserByUsername retrieves user by username with case-insensitive matching
func (s *Store) GetUserByUsername(username string) (*UserRecord, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username))
}

// GetUserByEmail retrieves user by email with case-insensitive matching
func (s *Store) GetUserByEmail(email string) (*UserRecord, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
}

// GetUserByID retrieves user by unique user ID
func (s *Store) GetUserByID(userID string) (*UserRecord, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*UserRecord, error) {
	var user UserRecord
	var email sql.NullString
	err := row.Scan(
		&user.UserID, &user.Username, &email,
		&user.PasswordHash, &user.AccountType, &user.CreatedAt,
		&user.ExpiresAt, &user.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	return &user, nil
}
