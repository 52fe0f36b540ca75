package storage

import (
	"database/sql"
	"fmt"
)

// RecordNewGame asynchronously records a new game session
func (s *Store) RecordNewGame(record GameRecord) {
	s.enqueue("record game", func(tx *sql.Tx) error {
		query := `INSERT INTO games (
			game_id, owner_id, initial_fen, player_color, opponent_kind, search_depth, start_time_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

		_, err := tx.Exec(query,
			record.GameID, record.OwnerID, record.InitialFEN, record.PlayerColor,
			record.OpponentKind, record.SearchDepth, record.StartTimeUTC,
		)
		return err
	})
}

// UpdateGameConfig asynchronously records an opponent or depth change
func (s *Store) UpdateGameConfig(gameID, opponentKind string, depth int) {
	s.enqueue("update game config", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE games SET opponent_kind = ?, search_depth = ? WHERE game_id = ?`,
			opponentKind, depth, gameID)
		return err
	})
}

// RecordResult asynchronously stores the final result; an empty result reopens the game
func (s *Store) RecordResult(gameID, result string) {
	s.enqueue("record result", func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE games SET result = ? WHERE game_id = ?`, result, gameID)
		return err
	})
}

// RecordMove asynchronously records a move
func (s *Store) RecordMove(record MoveRecord) {
	s.enqueue("record move", func(tx *sql.Tx) error {
		query := `INSERT INTO moves (
			game_id, move_number, move_uci, move_san, fen_after_move,
			player_color, moved_by, evaluation, move_time_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

		_, err := tx.Exec(query,
			record.GameID, record.MoveNumber, record.MoveUCI, record.MoveSAN, record.FENAfterMove,
			record.PlayerColor, record.MovedBy, record.Evaluation, record.MoveTimeUTC,
		)
		return err
	})
}

// DeleteUndoneMoves asynchronously deletes moves after undo
func (s *Store) DeleteUndoneMoves(gameID string, afterMoveNumber int) {
	s.enqueue("delete undone moves", func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM moves WHERE game_id = ? AND move_number > ?`, gameID, afterMoveNumber)
		return err
	})
}

// QueryGames retrieves games with optional filtering, "*" or "" matching all
func (s *Store) QueryGames(gameID, ownerID string) ([]GameRecord, error) {
	query := `SELECT
		game_id, owner_id, initial_fen, player_color, opponent_kind, search_depth, result, start_time_utc
	FROM games WHERE 1=1`

	var args []any

	if gameID != "" && gameID != "*" {
		query += " AND game_id = ?"
		args = append(args, gameID)
	}
	if ownerID != "" && ownerID != "*" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}

	query += " ORDER BY start_time_utc DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var games []GameRecord
	for rows.Next() {
		var g GameRecord
		err := rows.Scan(
			&g.GameID, &g.OwnerID, &g.InitialFEN, &g.PlayerColor,
			&g.OpponentKind, &g.SearchDepth, &g.Result, &g.StartTimeUTC,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		games = append(games, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return games, nil
}

// GameMoves returns the recorded moves of a game in order
func (s *Store) GameMoves(gameID string) ([]MoveRecord, error) {
	rows, err := s.db.Query(`SELECT
		move_id, game_id, move_number, move_uci, move_san, fen_after_move,
		player_color, moved_by, evaluation, move_time_utc
	FROM moves WHERE game_id = ? ORDER BY move_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var moves []MoveRecord
	for rows.Next() {
		var m MoveRecord
		if err := rows.Scan(
			&m.MoveID, &m.GameID, &m.MoveNumber, &m.MoveUCI, &m.MoveSAN, &m.FENAfterMove,
			&m.PlayerColor, &m.MovedBy, &m.Evaluation, &m.MoveTimeUTC,
		); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}
