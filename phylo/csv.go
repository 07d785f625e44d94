package phylo

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// DataItemRow is the flat CSV form of one (species, snapshot) pair.
type DataItemRow struct {
	ID                 uint64 `csv:"ID"`
	ParentID           uint64 `csv:"ParentID"`
	Generation         uint64 `csv:"generation"`
	Size               uint32 `csv:"size"`
	SampleGenome       string `csv:"sample_genome"`
	SampleGenomeBinary string `csv:"sample_genome_binary"`
	Diversity          uint32 `csv:"diversity"`
	CellsOccupied      uint16 `csv:"cells_occupied"`
	GeogRange          uint8  `csv:"geog_range"`
	CentroidX          uint8  `csv:"centroid_x"`
	CentroidY          uint8  `csv:"centroid_y"`
	MeanFit            uint16 `csv:"mean_fit"`
	MinEnvR            uint8  `csv:"min_env_r"`
	MinEnvG            uint8  `csv:"min_env_g"`
	MinEnvB            uint8  `csv:"min_env_b"`
	MaxEnvR            uint8  `csv:"max_env_r"`
	MaxEnvG            uint8  `csv:"max_env_g"`
	MaxEnvB            uint8  `csv:"max_env_b"`
	MeanEnvR           uint8  `csv:"mean_env_r"`
	MeanEnvG           uint8  `csv:"mean_env_g"`
	MeanEnvB           uint8  `csv:"mean_env_b"`
}

// Rows flattens the whole arena into CSV rows, one per data item, walking
// depth-first from the root.
func (t *Tree) Rows() []DataItemRow {
	root := t.Root()
	if root == -1 {
		return nil
	}
	var rows []DataItemRow
	t.appendRows(root, &rows)
	return rows
}

func (t *Tree) appendRows(idx int, rows *[]DataItemRow) {
	n := t.Node(idx)
	var parentID uint64
	if n.Parent != -1 {
		parentID = t.Node(n.Parent).ID
	}
	for _, d := range n.Data {
		*rows = append(*rows, DataItemRow{
			ID:                 n.ID,
			ParentID:           parentID,
			Generation:         d.Iteration,
			Size:               d.Size,
			SampleGenome:       fmt.Sprintf("%016x", uint64(d.SampleGenome)),
			SampleGenomeBinary: fmt.Sprintf("%064b", uint64(d.SampleGenome)),
			Diversity:          d.GenomicDiversity,
			CellsOccupied:      d.CellsOccupied,
			GeogRange:          d.GeographicalRange,
			CentroidX:          d.CentroidX,
			CentroidY:          d.CentroidY,
			MeanFit:            d.MeanFitness,
			MinEnvR:            d.MinEnv[0],
			MinEnvG:            d.MinEnv[1],
			MinEnvB:            d.MinEnv[2],
			MaxEnvR:            d.MaxEnv[0],
			MaxEnvG:            d.MaxEnv[1],
			MaxEnvB:            d.MaxEnv[2],
			MeanEnvR:           d.MeanEnv[0],
			MeanEnvG:           d.MeanEnv[1],
			MeanEnvB:           d.MeanEnv[2],
		})
	}
	for _, c := range n.Children {
		t.appendRows(c, rows)
	}
}

// WriteCSV dumps every data item row to w.
func (t *Tree) WriteCSV(w io.Writer) error {
	rows := t.Rows()
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing phylogeny csv: %w", err)
	}
	return nil
}
