package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/config"
	"github.com/codewars-bot/internal/domain"
	"github.com/codewars-bot/internal/state"
)

// Repository provides PostgreSQL-backed bot state and profile snapshots
type Repository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger zerolog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger.With().Str("comp", "postgres").Logger(),
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS bot_users (
			username VARCHAR(255) PRIMARY KEY,
			added_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_schedule (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			weekday VARCHAR(9) NOT NULL,
			at_time VARCHAR(5) NOT NULL,
			notify BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS profile_snapshots (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			honor BIGINT NOT NULL,
			score BIGINT NOT NULL,
			completed BIGINT NOT NULL,
			leaderboard_position BIGINT NOT NULL DEFAULT 0,
			rank_value INT NOT NULL,
			rank_name VARCHAR(16) NOT NULL,
			profile JSONB,
			fetched_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profile_snapshots_user_time ON profile_snapshots(username, fetched_at)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info().Msg("database migrations completed")
	return nil
}

// Load reads the roster and schedule. It returns (nil, nil) when nothing
// has been stored yet.
func (r *Repository) Load(ctx context.Context) (*state.Document, error) {
	var doc state.Document
	err := r.pool.QueryRow(ctx,
		`SELECT weekday, at_time, notify FROM bot_schedule WHERE id = 1`,
	).Scan(&doc.Schedule.Weekday, &doc.Schedule.Time, &doc.Notify)
	found := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("loading schedule: %w", err)
		}
		found = false
	}

	rows, err := r.pool.Query(ctx, `SELECT username FROM bot_users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning users: %w", err)
	}
	doc.Users = users

	if !found && len(users) == 0 {
		return nil, nil
	}
	return &doc, nil
}

// Save replaces the stored roster and schedule in one transaction
func (r *Repository) Save(ctx context.Context, doc state.Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	users := doc.Users
	if users == nil {
		users = []string{}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bot_users WHERE NOT (username = ANY($1))`, users); err != nil {
		return fmt.Errorf("pruning users: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO bot_users (username) SELECT unnest($1::text[]) ON CONFLICT (username) DO NOTHING`,
		users,
	); err != nil {
		return fmt.Errorf("inserting users: %w", err)
	}

	query := `
		INSERT INTO bot_schedule (id, weekday, at_time, notify, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET weekday = $1, at_time = $2, notify = $3, updated_at = $4
	`
	if _, err := tx.Exec(ctx, query, doc.Schedule.Weekday, doc.Schedule.Time, doc.Notify, time.Now()); err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}

// Record stores a profile snapshot. A second snapshot of the same user with
// the same fetch time is dropped.
func (r *Repository) Record(ctx context.Context, p domain.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	query := `
		INSERT INTO profile_snapshots
			(username, honor, score, completed, leaderboard_position, rank_value, rank_name, profile, fetched_at)
		SELECT $1::varchar, $2::bigint, $3::bigint, $4::bigint, $5::bigint, $6::int, $7::varchar, $8::jsonb, $9::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM profile_snapshots WHERE username = $1::varchar AND fetched_at = $9::timestamptz
		)
	`
	_, err = r.pool.Exec(ctx, query,
		p.Username,
		p.Honor,
		p.Score,
		p.Completed,
		p.LeaderboardPosition,
		p.Rank.Value,
		p.Rank.Name,
		raw,
		p.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	return nil
}

// Lookup returns the earliest snapshot of username taken at or after since
func (r *Repository) Lookup(ctx context.Context, username string, since time.Time) (domain.Profile, error) {
	query := `
		SELECT username, honor, score, completed, leaderboard_position, rank_value, rank_name, fetched_at
		FROM profile_snapshots
		WHERE username = $1 AND fetched_at >= $2
		ORDER BY fetched_at ASC
		LIMIT 1
	`
	var p domain.Profile
	err := r.pool.QueryRow(ctx, query, username, since).Scan(
		&p.Username,
		&p.Honor,
		&p.Score,
		&p.Completed,
		&p.LeaderboardPosition,
		&p.Rank.Value,
		&p.Rank.Name,
		&p.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, domain.ErrBaselineNotFound
		}
		return domain.Profile{}, fmt.Errorf("looking up baseline: %w", err)
	}
	return p, nil
}

// PruneSnapshots deletes snapshots older than the retention window
func (r *Repository) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM profile_snapshots WHERE fetched_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	if n := result.RowsAffected(); n > 0 {
		r.logger.Info().Int64("deleted", n).Msg("pruned old snapshots")
	}
	return result.RowsAffected(), nil
}
