/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sqlite.go
Description: SQLite storage for learning runs and for the catalogue of deduplicated
models used by identification. Automata are stored in their canonical text form.
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Version is an implementation release a model was learned from
type Version struct {
	Implementation string `json:"implementation" yaml:"implementation"`
	Version        string `json:"version" yaml:"version"`
}

func (v Version) String() string {
	return v.Implementation + " " + v.Version
}

// Model is a deduplicated automaton of the catalogue
type Model struct {
	Name      string               `json:"name" yaml:"name"`
	Protocol  string               `json:"protocol" yaml:"protocol"`
	Hash      string               `json:"hash" yaml:"hash"`
	Versions  []Version            `json:"versions" yaml:"versions"`
	Automaton *automaton.Automaton `json:"-" yaml:"-"`
}

// SQLiteStore persists hypotheses, final automata and the model catalogue
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logging.OrDiscard(logger)}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS hypotheses (
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			hash TEXT NOT NULL,
			automaton TEXT NOT NULL,
			created_ts_unix_ns INTEGER NOT NULL,
			PRIMARY KEY(run_id, iteration)
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			automaton TEXT NOT NULL,
			created_ts_unix_ns INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS models (
			protocol TEXT NOT NULL,
			name TEXT NOT NULL,
			hash TEXT NOT NULL,
			automaton TEXT NOT NULL,
			PRIMARY KEY(protocol, name),
			UNIQUE(protocol, hash)
		);`,
		`CREATE TABLE IF NOT EXISTS model_versions (
			protocol TEXT NOT NULL,
			name TEXT NOT NULL,
			implementation TEXT NOT NULL,
			version TEXT NOT NULL,
			UNIQUE(protocol, name, implementation, version)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_model_versions_model ON model_versions(protocol, name);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// SaveHypothesis stores the hypothesis of one learning iteration, replacing any
// previous one for the same run and iteration
func (s *SQLiteStore) SaveHypothesis(ctx context.Context, runID string, iteration int, a *automaton.Automaton) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO hypotheses (run_id, iteration, hash, automaton, created_ts_unix_ns) VALUES (?, ?, ?, ?, ?)`,
		runID, iteration, a.HashHex(), a.Reorder().String(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert hypothesis: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"run_id": runID, "iteration": iteration}).Debug("Hypothesis stored")
	return nil
}

// SaveFinal stores the final automaton of a run
func (s *SQLiteStore) SaveFinal(ctx context.Context, runID string, a *automaton.Automaton) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, hash, automaton, created_ts_unix_ns) VALUES (?, ?, ?, ?)`,
		runID, a.HashHex(), a.Reorder().String(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert final automaton: %w", err)
	}
	s.logger.WithField("run_id", runID).Debug("Final automaton stored")
	return nil
}

// Hypotheses returns the hypotheses of a run in iteration order
func (s *SQLiteStore) Hypotheses(ctx context.Context, runID string) ([]*automaton.Automaton, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT automaton FROM hypotheses WHERE run_id = ? ORDER BY iteration ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query hypotheses: %w", err)
	}
	defer rows.Close()

	var out []*automaton.Automaton
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		a, err := automaton.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("stored hypothesis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Final returns the final automaton of a run, or false when the run never finished
func (s *SQLiteStore) Final(ctx context.Context, runID string) (*automaton.Automaton, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT automaton FROM runs WHERE run_id = ?`, runID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query final automaton: %w", err)
	}
	a, err := automaton.Parse(text)
	if err != nil {
		return nil, false, fmt.Errorf("stored final automaton: %w", err)
	}
	return a, true, nil
}

// PutModel adds a learned automaton to the catalogue of protocol. Automata with the
// same hash share one model, named model-1, model-2, ... in insertion order, which
// accumulates the implementation versions it was learned from.
func (s *SQLiteStore) PutModel(ctx context.Context, protocol string, a *automaton.Automaton, implementation, version string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hash := a.HashHex()
	var name string
	err = tx.QueryRowContext(ctx, `SELECT name FROM models WHERE protocol = ? AND hash = ?`, protocol, hash).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM models WHERE protocol = ?`, protocol).Scan(&count); err != nil {
			return "", fmt.Errorf("count models: %w", err)
		}
		name = fmt.Sprintf("model-%d", count+1)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO models (protocol, name, hash, automaton) VALUES (?, ?, ?, ?)`,
			protocol, name, hash, a.Reorder().String()); err != nil {
			return "", fmt.Errorf("insert model: %w", err)
		}
		s.logger.WithFields(logrus.Fields{"protocol": protocol, "model": name, "hash": hash}).Info("New model")
	case err != nil:
		return "", fmt.Errorf("query model: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO model_versions (protocol, name, implementation, version) VALUES (?, ?, ?, ?)`,
		protocol, name, implementation, version); err != nil {
		return "", fmt.Errorf("insert model version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return name, nil
}

// Models returns the catalogue of protocol in insertion order
func (s *SQLiteStore) Models(ctx context.Context, protocol string) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, hash, automaton FROM models WHERE protocol = ? ORDER BY rowid ASC`, protocol)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	var models []Model
	for rows.Next() {
		m := Model{Protocol: protocol}
		var text string
		if err := rows.Scan(&m.Name, &m.Hash, &text); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan model: %w", err)
		}
		if m.Automaton, err = automaton.Parse(text); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("stored model %s: %w", m.Name, err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range models {
		if models[i].Versions, err = s.versions(ctx, protocol, models[i].Name); err != nil {
			return nil, err
		}
	}
	return models, nil
}

func (s *SQLiteStore) versions(ctx context.Context, protocol, name string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT implementation, version FROM model_versions WHERE protocol = ? AND name = ? ORDER BY implementation, version`,
		protocol, name)
	if err != nil {
		return nil, fmt.Errorf("query model versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.Implementation, &v.Version); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Protocols lists the protocols having at least one model
func (s *SQLiteStore) Protocols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT protocol FROM models ORDER BY protocol`)
	if err != nil {
		return nil, fmt.Errorf("query protocols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan protocol: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
