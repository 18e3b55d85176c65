package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/linebox-server/internal/board"
)

const gamesSchema = `CREATE TABLE IF NOT EXISTS line_games (
    session_id   TEXT PRIMARY KEY,
    grid_size    INTEGER NOT NULL,
    player1_id   TEXT,
    player1_name TEXT NOT NULL,
    player2_id   TEXT,
    player2_name TEXT NOT NULL,
    score1       INTEGER NOT NULL,
    score2       INTEGER NOT NULL,
    winner       INTEGER NOT NULL,
    reason       TEXT NOT NULL,
    lines        JSONB NOT NULL,
    regions      JSONB NOT NULL,
    started_at   TIMESTAMPTZ,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL
)`

const upsertGame = `INSERT INTO line_games (
    session_id, grid_size,
    player1_id, player1_name, player2_id, player2_name,
    score1, score2, winner, reason,
    lines, regions, started_at, ended_at, duration_ms
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
  ) ON CONFLICT (session_id) DO UPDATE SET
    grid_size=EXCLUDED.grid_size,
    player1_id=EXCLUDED.player1_id,
    player1_name=EXCLUDED.player1_name,
    player2_id=EXCLUDED.player2_id,
    player2_name=EXCLUDED.player2_name,
    score1=EXCLUDED.score1,
    score2=EXCLUDED.score2,
    winner=EXCLUDED.winner,
    reason=EXCLUDED.reason,
    lines=EXCLUDED.lines,
    regions=EXCLUDED.regions,
    started_at=EXCLUDED.started_at,
    ended_at=EXCLUDED.ended_at,
    duration_ms=EXCLUDED.duration_ms`

// GameRepository writes finished games to Postgres.
type GameRepository struct {
	db *sql.DB
}

func NewGameRepository(databaseURL string) (*GameRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, gamesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure line_games: %w", err)
	}
	return &GameRepository{db: db}, nil
}

func (r *GameRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// RecordFinishedGame upserts by session id, so a repeated write is harmless.
func (r *GameRepository) RecordFinishedGame(ctx context.Context, rec GameRecord) error {
	if r == nil || r.db == nil {
		return nil
	}
	args, err := gameArgs(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsertGame, args...)
	return err
}

func gameArgs(rec GameRecord) ([]any, error) {
	if rec.Lines == nil {
		rec.Lines = []board.Line{}
	}
	if rec.Regions == nil {
		rec.Regions = []board.Region{}
	}
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return nil, fmt.Errorf("marshal lines: %w", err)
	}
	regions, err := json.Marshal(rec.Regions)
	if err != nil {
		return nil, fmt.Errorf("marshal regions: %w", err)
	}
	var started any
	if !rec.StartedAt.IsZero() {
		started = rec.StartedAt
	}
	return []any{
		rec.SessionID, rec.GridSize,
		nullable(rec.Players[0].ID), rec.Players[0].Name,
		nullable(rec.Players[1].ID), rec.Players[1].Name,
		rec.Score[0], rec.Score[1], rec.Winner, rec.Reason,
		string(lines), string(regions),
		started, rec.EndedAt, rec.Duration().Milliseconds(),
	}, nil
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
