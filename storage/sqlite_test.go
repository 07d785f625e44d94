package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/strata/grid"
	"github.com/pthm-cable/strata/phylo"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s := NewSnapshotStore(filepath.Join(t.TempDir(), "snap.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitRequiresPath(t *testing.T) {
	s := NewSnapshotStore("")
	if err := s.Init(context.Background()); err == nil {
		t.Error("empty path accepted")
	}
}

func TestUninitializedStoreErrors(t *testing.T) {
	s := NewSnapshotStore("unused.db")
	if err := s.SaveRun(context.Background(), "r", 1); err == nil {
		t.Error("write on uninitialized store succeeded")
	}
}

func TestSaveAndCountGenomes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveRun(ctx, "run-1", 42); err != nil {
		t.Fatal(err)
	}

	g, err := grid.New(4, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	*g.Critter(0, 0, 0) = grid.Critter{Genome: 0xabc, Age: 5, Energy: 100, Fitness: 7, SpeciesID: 1}
	*g.Critter(3, 2, 1) = grid.Critter{Genome: 0xdef, Age: 2, Energy: 50, Fitness: 3, SpeciesID: 2}

	if err := s.SaveGenomes(ctx, "run-1", 100, g); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountGenomes(ctx, "run-1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("genome rows = %d, want 2 (only live slots)", n)
	}

	// Re-saving the same iteration replaces rather than duplicates.
	if err := s.SaveGenomes(ctx, "run-1", 100, g); err != nil {
		t.Fatal(err)
	}
	n, err = s.CountGenomes(ctx, "run-1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("genome rows after re-save = %d, want 2", n)
	}
}

func TestSaveAndLoadLineage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tree := phylo.NewTree()
	root, err := tree.CreateRoot(1, 0, phylo.DataItem{Size: 100})
	if err != nil {
		t.Fatal(err)
	}
	tree.RegisterChild(root, 2, 50, phylo.DataItem{Size: 20})
	tree.Touch(root, 80, phylo.DataItem{Iteration: 80, Size: 120})

	if err := s.SaveLineage(ctx, "run-1", tree); err != nil {
		t.Fatal(err)
	}

	records, err := s.LoadLineage(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("lineage rows = %d, want 2", len(records))
	}
	if records[0].SpeciesID != 1 || records[0].ParentID != 0 {
		t.Errorf("root record = %+v", records[0])
	}
	if records[0].TLast != 80 || records[0].MaxSize != 120 {
		t.Errorf("root lifetime/max = %d/%d", records[0].TLast, records[0].MaxSize)
	}
	if records[1].SpeciesID != 2 || records[1].ParentID != 1 {
		t.Errorf("child record = %+v", records[1])
	}

	// A second save replaces the lineage wholesale.
	if err := s.SaveLineage(ctx, "run-1", tree); err != nil {
		t.Fatal(err)
	}
	records, err = s.LoadLineage(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("lineage rows after re-save = %d, want 2", len(records))
	}
}
