// Package storage persists run snapshots - the live genome census and the
// phylogeny arena - to a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/strata/grid"
	"github.com/pthm-cable/strata/phylo"
)

// SnapshotStore writes genome and lineage snapshots for one or more runs.
type SnapshotStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSnapshotStore returns a store backed by the database at path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Init opens the database and creates the schema.
func (s *SnapshotStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id   TEXT PRIMARY KEY,
			seed INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS genomes (
			run_id     TEXT    NOT NULL,
			iteration  INTEGER NOT NULL,
			x          INTEGER NOT NULL,
			y          INTEGER NOT NULL,
			slot       INTEGER NOT NULL,
			genome     INTEGER NOT NULL,
			species_id INTEGER NOT NULL,
			age        INTEGER NOT NULL,
			energy     INTEGER NOT NULL,
			fitness    INTEGER NOT NULL,
			PRIMARY KEY (run_id, iteration, x, y, slot)
		);
		CREATE TABLE IF NOT EXISTS lineage (
			run_id     TEXT    NOT NULL,
			species_id INTEGER NOT NULL,
			parent_id  INTEGER NOT NULL,
			t_first    INTEGER NOT NULL,
			t_last     INTEGER NOT NULL,
			max_size   INTEGER NOT NULL,
			PRIMARY KEY (run_id, species_id)
		);
	`)
	return err
}

func (s *SnapshotStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("store not initialized")
	}
	return s.db, nil
}

// SaveRun registers a run id with its seed.
func (s *SnapshotStore) SaveRun(ctx context.Context, runID string, seed int64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, seed) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET seed = excluded.seed
	`, runID, seed)
	return err
}

// SaveGenomes snapshots every live critter at the given iteration.
func (s *SnapshotStore) SaveGenomes(ctx context.Context, runID string, iteration uint64, g *grid.Grid) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO genomes
			(run_id, iteration, x, y, slot, genome, species_id, age, energy, fitness)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for y := 0; y < g.Y; y++ {
		for x := 0; x < g.X; x++ {
			for slot, c := range g.CellSlots(x, y) {
				if c.Age == 0 {
					continue
				}
				if _, err := stmt.ExecContext(ctx, runID, int64(iteration), x, y, slot,
					int64(c.Genome), int64(c.SpeciesID), c.Age, c.Energy, c.Fitness); err != nil {
					return fmt.Errorf("saving genome at (%d,%d,%d): %w", x, y, slot, err)
				}
			}
		}
	}
	return tx.Commit()
}

// SaveLineage snapshots the phylogeny arena, replacing any prior lineage
// rows for the run.
func (s *SnapshotStore) SaveLineage(ctx context.Context, runID string, tree *phylo.Tree) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lineage WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lineage (run_id, species_id, parent_id, t_first, t_last, max_size)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < tree.Len(); i++ {
		n := tree.Node(i)
		var parentID uint64
		if n.Parent != -1 {
			parentID = tree.Node(n.Parent).ID
		}
		if _, err := stmt.ExecContext(ctx, runID, int64(n.ID), int64(parentID),
			int64(n.TFirst), int64(n.TLast), int64(n.MaxSize)); err != nil {
			return fmt.Errorf("saving lineage node %d: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// LineageRecord is one persisted phylogeny node.
type LineageRecord struct {
	SpeciesID uint64
	ParentID  uint64
	TFirst    uint64
	TLast     uint64
	MaxSize   uint32
}

// LoadLineage reads a run's lineage snapshot back, ordered by species id.
func (s *SnapshotStore) LoadLineage(ctx context.Context, runID string) ([]LineageRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT species_id, parent_id, t_first, t_last, max_size
		FROM lineage WHERE run_id = ? ORDER BY species_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineageRecord
	for rows.Next() {
		var r LineageRecord
		var sid, pid, tf, tl, ms int64
		if err := rows.Scan(&sid, &pid, &tf, &tl, &ms); err != nil {
			return nil, err
		}
		r.SpeciesID = uint64(sid)
		r.ParentID = uint64(pid)
		r.TFirst = uint64(tf)
		r.TLast = uint64(tl)
		r.MaxSize = uint32(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountGenomes returns the number of genome rows stored for a run at one
// iteration.
func (s *SnapshotStore) CountGenomes(ctx context.Context, runID string, iteration uint64) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM genomes WHERE run_id = ? AND iteration = ?
	`, runID, int64(iteration)).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
