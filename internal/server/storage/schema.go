package storage

import "time"

// UserRecord represents a user account in the database
type UserRecord struct {
	UserID       string     `db:"user_id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	AccountType  string     `db:"account_type"` // "permanent" or "temp"
	CreatedAt    time.Time  `db:"created_at"`
	ExpiresAt    *time.Time `db:"expires_at"` // nil for permanent
	LastLoginAt  *time.Time `db:"last_login_at"`
}

// LoginRecord is an authenticated login; tokens carry its ID in the sid claim
type LoginRecord struct {
	LoginID   string    `db:"login_id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// GameRecord is a game session against a broker opponent
type GameRecord struct {
	GameID       string    `db:"game_id"`
	OwnerID      string    `db:"owner_id"` // empty for anonymous games
	InitialFEN   string    `db:"initial_fen"`
	PlayerColor  string    `db:"player_color"`
	OpponentKind string    `db:"opponent_kind"`
	SearchDepth  int       `db:"search_depth"`
	Result       string    `db:"result"`
	StartTimeUTC time.Time `db:"start_time_utc"`
}

// MoveRecord is one applied move. Evaluation is in pawns, White positive.
type MoveRecord struct {
	MoveID       int64     `db:"move_id"`
	GameID       string    `db:"game_id"`
	MoveNumber   int       `db:"move_number"`
	MoveUCI      string    `db:"move_uci"`
	MoveSAN      string    `db:"move_san"`
	FENAfterMove string    `db:"fen_after_move"`
	PlayerColor  string    `db:"player_color"`
	MovedBy      string    `db:"moved_by"`
	Evaluation   float64   `db:"evaluation"`
	MoveTimeUTC  time.Time `db:"move_time_utc"`
}

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL COLLATE NOCASE,
	email TEXT COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	account_type TEXT NOT NULL DEFAULT 'permanent' CHECK(account_type IN ('permanent', 'temp')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME,
	last_login_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_users_expires_at ON users(expires_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_unique ON users(email) WHERE email IS NOT NULL AND email != '';

CREATE TABLE IF NOT EXISTS logins (
	login_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	expires_at DATETIME NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_logins_expires_at ON logins(expires_at);

CREATE TABLE IF NOT EXISTS games (
	game_id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '',
	initial_fen TEXT NOT NULL,
	player_color TEXT NOT NULL CHECK(player_color IN ('w', 'b')),
	opponent_kind TEXT NOT NULL DEFAULT '',
	search_depth INTEGER NOT NULL,
	result TEXT NOT NULL DEFAULT '',
	start_time_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_games_owner ON games(owner_id);

CREATE TABLE IF NOT EXISTS moves (
	move_id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id TEXT NOT NULL,
	move_number INTEGER NOT NULL,
	move_uci TEXT NOT NULL,
	move_san TEXT NOT NULL DEFAULT '',
	fen_after_move TEXT NOT NULL,
	player_color TEXT NOT NULL CHECK(player_color IN ('w', 'b')),
	moved_by TEXT NOT NULL CHECK(moved_by IN ('player', 'opponent')),
	evaluation REAL NOT NULL DEFAULT 0,
	move_time_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (game_id) REFERENCES games(game_id) ON DELETE CASCADE,
	UNIQUE(game_id, move_number)
);

CREATE INDEX IF NOT EXISTS idx_moves_game_id ON moves(game_id);
`
