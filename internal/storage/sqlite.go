//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "agentsched/pkg/logx"

	_ "modernc.org/sqlite"

	"agentsched/internal/schedule"
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
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
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

func (s *sqliteStore) SaveTasks(ctx context.Context, tasks []TaskRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return err
	}
	for pos, r := range tasks {
		serversJSON, err := json.Marshal(emptyIfNilBindings(r.Servers))
		if err != nil {
			return err
		}
		allowJSON, err := json.Marshal(emptyIfNil(r.Allow))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (position, mode, hour, minute, period_seconds, prompt, dir, model, servers_json, allow_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos, r.Mode, r.Hour, r.Minute, r.PeriodSeconds,
			r.Prompt, r.Dir, r.Model, string(serversJSON), string(allowJSON))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadTasks(ctx context.Context) ([]TaskRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, hour, minute, period_seconds, prompt, dir, model, servers_json, allow_json
		FROM tasks ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var serversJSON, allowJSON string
		if err := rows.Scan(&r.Mode, &r.Hour, &r.Minute, &r.PeriodSeconds,
			&r.Prompt, &r.Dir, &r.Model, &serversJSON, &allowJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(serversJSON), &r.Servers); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(allowJSON), &r.Allow); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilBindings(s []schedule.ServerBinding) []schedule.ServerBinding {
	if s == nil {
		return []schedule.ServerBinding{}
	}
	return s
}
