// Package store keeps notable deviations and report snapshots in a SQLite
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/domino14/bjsim/sim"
	"github.com/domino14/bjsim/stats"
)

const schema = `
CREATE TABLE IF NOT EXISTS deviations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at       TEXT    NOT NULL,
	category         TEXT    NOT NULL,
	upcard           TEXT    NOT NULL,
	hand             TEXT    NOT NULL,
	hands            INTEGER NOT NULL,
	unseen           TEXT    NOT NULL,
	exact_action     TEXT    NOT NULL,
	reference_action TEXT    NOT NULL,
	exact_ev         REAL    NOT NULL,
	reference_ev     REAL    NOT NULL,
	gain             REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS deviations_by_gain ON deviations (gain DESC);
CREATE TABLE IF NOT EXISTS snapshots (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at     TEXT    NOT NULL,
	rules          TEXT    NOT NULL,
	method         TEXT    NOT NULL,
	rounds         INTEGER NOT NULL,
	units_returned REAL    NOT NULL,
	edge           REAL    NOT NULL,
	body           TEXT    NOT NULL
);
`

var ErrNoSnapshots = errors.New("no snapshots stored")

// Store is safe for concurrent use; writes are serialized on one
// connection.
type Store struct {
	db *sql.DB
}

// Record is a stored deviation.
type Record struct {
	ID        int64
	Time      time.Time
	Category  string
	Upcard    string
	Hand      string
	Hands     int
	Unseen    string
	Exact     string
	Reference string
	ExactEV   float64
	RefEV     float64
	Gain      float64
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("store-opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordDeviation(ctx context.Context, d sim.Deviation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO deviations
		(created_at, category, upcard, hand, hands, unseen, exact_action,
		 reference_action, exact_ev, reference_ev, gain)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Time.UTC().Format(time.RFC3339Nano), d.Category.String(), d.Upcard.String(),
		d.Hand, d.Hands, d.Unseen.String(), d.Exact.String(), d.Reference.String(),
		d.ExactEV, d.RefEV, d.Gain)
	return err
}

// TopDeviations returns the n deviations with the largest gain.
func (s *Store) TopDeviations(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, category, upcard,
		hand, hands, unseen, exact_action, reference_action, exact_ev,
		reference_ev, gain FROM deviations ORDER BY gain DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Category, &r.Upcard, &r.Hand, &r.Hands,
			&r.Unseen, &r.Exact, &r.Reference, &r.ExactEV, &r.RefEV, &r.Gain); err != nil {
			return nil, err
		}
		if r.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) CountDeviations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deviations").Scan(&n)
	return n, err
}

// RecordSnapshot stores snap, with its full YAML form as the body.
func (s *Store) RecordSnapshot(ctx context.Context, snap stats.Snapshot) error {
	body, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO snapshots
		(created_at, rules, method, rounds, units_returned, edge, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), snap.Rules, snap.Method, snap.Rounds,
		snap.UnitsReturned, snap.Edge(), string(body))
	return err
}

// LatestSnapshot decodes the most recently stored snapshot. Fields that are
// not part of the YAML form (the grids and gains) come back empty.
func (s *Store) LatestSnapshot(ctx context.Context) (stats.Snapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM snapshots ORDER BY id DESC LIMIT 1").Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.Snapshot{}, ErrNoSnapshots
	}
	if err != nil {
		return stats.Snapshot{}, err
	}
	var snap stats.Snapshot
	err = yaml.Unmarshal([]byte(body), &snap)
	return snap, err
}
