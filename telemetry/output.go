package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/pthm-cable/strata/phylo"
)

// SpeciesLogRow is one per-generation species record, the log analysed by
// external tooling. Rows are appended in time order.
type SpeciesLogRow struct {
	Time          uint64 `csv:"time"`
	SpeciesID     uint64 `csv:"species_id"`
	OriginTime    uint64 `csv:"origin_time"`
	ParentID      uint64 `csv:"parent_id"`
	CurrentSize   int32  `csv:"current_size"`
	CurrentGenome string `csv:"current_genome"`
}

// RunMeta identifies one run in the output directory.
type RunMeta struct {
	RunID string `json:"run_id"`
	Seed  int64  `json:"seed"`
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir   string
	runID string

	generationsFile *os.File
	speciesLogFile  *os.File

	generationsHeaderWritten bool
	speciesLogHeaderWritten  bool
}

// NewOutputManager creates an output manager rooted at dir, stamping a fresh
// run id. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string, seed int64) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, runID: uuid.NewString()}

	meta, err := json.MarshalIndent(RunMeta{RunID: om.runID, Seed: seed}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling run meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), meta, 0644); err != nil {
		return nil, fmt.Errorf("writing run.json: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "generations.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating generations.csv: %w", err)
	}
	om.generationsFile = f

	f, err = os.Create(filepath.Join(dir, "specieslog.csv"))
	if err != nil {
		om.generationsFile.Close()
		return nil, fmt.Errorf("creating specieslog.csv: %w", err)
	}
	om.speciesLogFile = f

	return om, nil
}

// RunID returns the run identifier, or "" when output is disabled.
func (om *OutputManager) RunID() string {
	if om == nil {
		return ""
	}
	return om.runID
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteGeneration appends a window stats record to generations.csv.
func (om *OutputManager) WriteGeneration(stats GenStats) error {
	if om == nil {
		return nil
	}

	records := []GenStats{stats}
	if !om.generationsHeaderWritten {
		if err := gocsv.Marshal(records, om.generationsFile); err != nil {
			return fmt.Errorf("writing generations: %w", err)
		}
		om.generationsHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.generationsFile); err != nil {
			return fmt.Errorf("writing generations: %w", err)
		}
	}
	return nil
}

// WriteSpeciesLog appends the per-generation species records.
func (om *OutputManager) WriteSpeciesLog(rows []SpeciesLogRow) error {
	if om == nil || len(rows) == 0 {
		return nil
	}

	if !om.speciesLogHeaderWritten {
		if err := gocsv.Marshal(rows, om.speciesLogFile); err != nil {
			return fmt.Errorf("writing species log: %w", err)
		}
		om.speciesLogHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(rows, om.speciesLogFile); err != nil {
			return fmt.Errorf("writing species log: %w", err)
		}
	}
	return nil
}

// WritePhylogeny dumps the tree as a Newick file and a data-item CSV.
func (om *OutputManager) WritePhylogeny(tree *phylo.Tree, minSize uint32, allowExclude bool) error {
	if om == nil || tree == nil {
		return nil
	}

	nwk := tree.Newick(minSize, allowExclude)
	if err := os.WriteFile(filepath.Join(om.dir, "phylogeny.nwk"), []byte(nwk+"\n"), 0644); err != nil {
		return fmt.Errorf("writing phylogeny.nwk: %w", err)
	}

	f, err := os.Create(filepath.Join(om.dir, "phylogeny.csv"))
	if err != nil {
		return fmt.Errorf("creating phylogeny.csv: %w", err)
	}
	defer f.Close()
	if err := tree.WriteCSV(f); err != nil {
		return err
	}
	return nil
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	if om.generationsFile != nil {
		if err := om.generationsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if om.speciesLogFile != nil {
		if err := om.speciesLogFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
