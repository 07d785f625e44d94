package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/strata/phylo"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("", 1)
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("empty dir should disable output")
	}
	// All writes must be safe no-ops on the nil manager.
	if err := om.WriteGeneration(GenStats{}); err != nil {
		t.Error(err)
	}
	if err := om.WriteSpeciesLog([]SpeciesLogRow{{}}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, 99)
	if err != nil {
		t.Fatal(err)
	}
	if om.RunID() == "" {
		t.Error("missing run id")
	}

	if err := om.WriteGeneration(GenStats{Iteration: 100, AliveCount: 10}); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteGeneration(GenStats{Iteration: 200, AliveCount: 20}); err != nil {
		t.Fatal(err)
	}

	rows := []SpeciesLogRow{
		{Time: 100, SpeciesID: 1, CurrentSize: 10, CurrentGenome: "00000000000000ff"},
		{Time: 100, SpeciesID: 2, ParentID: 1, CurrentSize: 3, CurrentGenome: "ff00000000000000"},
	}
	if err := om.WriteSpeciesLog(rows); err != nil {
		t.Fatal(err)
	}

	tree := phylo.NewTree()
	if _, err := tree.CreateRoot(1, 0, phylo.DataItem{Size: 10}); err != nil {
		t.Fatal(err)
	}
	if err := om.WritePhylogeny(tree, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	gen, err := os.ReadFile(filepath.Join(dir, "generations.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(gen)), "\n")
	if len(lines) != 3 {
		t.Errorf("generations.csv lines = %d, want header + 2", len(lines))
	}
	if !strings.Contains(lines[0], "iteration") {
		t.Errorf("missing header: %s", lines[0])
	}
	if strings.Contains(lines[2], "iteration") {
		t.Error("repeated header on append")
	}

	sl, err := os.ReadFile(filepath.Join(dir, "specieslog.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(sl), "species_id") || !strings.Contains(string(sl), "ff00000000000000") {
		t.Errorf("species log content wrong:\n%s", sl)
	}

	nwk, err := os.ReadFile(filepath.Join(dir, "phylogeny.nwk"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(nwk), "1:0;") {
		t.Errorf("newick = %q", nwk)
	}

	if _, err := os.Stat(filepath.Join(dir, "run.json")); err != nil {
		t.Errorf("run.json missing: %v", err)
	}
}
