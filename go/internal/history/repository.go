// Package history stores finished games in Postgres.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/wordgame/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Record is one stored game as seen by one player.
type Record struct {
	ID        int64
	SessionID string
	Username  string
	Winner    string
	Tie       bool
	Players   []string
	Tally     map[string]int
	Reason    string
	Rounds    int
	EndedAt   time.Time
}

// Repository implements game history data access
type Repository struct {
	db DBTX
}

// NewRepository creates a new history repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to history database")
	return db, nil
}

// Migrate creates the history table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply history schema: %w", err)
	}
	return nil
}

const insertGame = `
INSERT INTO game_history (session_id, username, winner, tie, players, tally, reason, rounds, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id, username) DO NOTHING
`

// RecordGame stores the outcome of a finished game. Recording the same
// session twice for a player is a no-op.
func (r *Repository) RecordGame(ctx context.Context, username string, outcome models.GameOutcome) error {
	tally, err := encodeTally(outcome.Tally)
	if err != nil {
		return err
	}

	endedAt := outcome.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, insertGame,
		outcome.SessionID,
		username,
		outcome.Winner,
		outcome.Tie,
		pq.Array(playersOf(outcome.Tally)),
		tally,
		outcome.Reason,
		outcome.Rounds,
		endedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record game: %w", err)
	}

	log.Debug().Str("session_id", outcome.SessionID).Str("username", username).Msg("game recorded")
	return nil
}

const listGames = `
SELECT id, session_id, username, winner, tie, players, tally, reason, rounds, ended_at
FROM game_history
WHERE username = $1
ORDER BY ended_at DESC
LIMIT $2
`

// ListGames returns the most recent games of a player, newest first.
func (r *Repository) ListGames(ctx context.Context, username string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, listGames, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec   Record
			tally pqtype.NullRawMessage
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Username,
			&rec.Winner,
			&rec.Tie,
			pq.Array(&rec.Players),
			&tally,
			&rec.Reason,
			&rec.Rounds,
			&rec.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		if rec.Tally, err = decodeTally(tally); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return out, nil
}

func encodeTally(tally map[string]int) (pqtype.NullRawMessage, error) {
	if len(tally) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(tally)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to encode tally: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func decodeTally(msg pqtype.NullRawMessage) (map[string]int, error) {
	tally := map[string]int{}
	if !msg.Valid || len(msg.RawMessage) == 0 {
		return tally, nil
	}
	if err := json.Unmarshal(msg.RawMessage, &tally); err != nil {
		return nil, fmt.Errorf("failed to decode tally: %w", err)
	}
	return tally, nil
}

func playersOf(tally map[string]int) []string {
	players := make([]string, 0, len(tally))
	for name := range tally {
		players = append(players, name)
	}
	sort.Strings(players)
	return players
}
