package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "idlebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log.With(logx.String("path", path))}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (map[string]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	out := map[string]time.Time{}
	rows, err := s.db.QueryContext(ctx, `SELECT key, last_run FROM job_runs`)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("job history unreadable; starting fresh", logx.Err(err))
		return out, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			ts  float64
		)
		if err := rows.Scan(&key, &ts); err != nil {
			s.log.Warn("skipping unreadable job history row", logx.Err(err))
			continue
		}
		out[key] = fromUnixSeconds(ts)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("job history read interrupted; starting fresh", logx.Err(err))
		return map[string]time.Time{}, nil
	}
	return out, nil
}

func (s *sqliteStore) Save(ctx context.Context, key string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return errors.New("empty job key")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs(key, last_run) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET last_run=excluded.last_run`,
		key, toUnixSeconds(at),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(keys) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM job_runs`)
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_runs WHERE key = ?`, k); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
