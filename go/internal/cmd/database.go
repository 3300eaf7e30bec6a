package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mcdev12/wordgame/go/internal/history"
	"github.com/rs/zerolog/log"
)

// setupHistory opens the match history database and ensures its schema.
func setupHistory(ctx context.Context, cfg history.Config) (*history.Repository, *sql.DB, error) {
	db, err := history.Open(cfg)
	if err != nil {
		return nil, nil, err
	}

	repo := history.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("match history enabled")
	return repo, db, nil
}
