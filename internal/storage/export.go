package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/san-kum/adinf/internal/stats"
)

// ExportData is a run with its trace inlined. Non-finite trace values are
// exported as null.
type ExportData struct {
	RunMetadata
	Series map[string][]*float64 `json:"series,omitempty"`
}

// ExportJSON writes a stored run to path, or to stdout when path is "-".
func (s *Store) ExportJSON(path, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	data := ExportData{RunMetadata: *meta}

	if series, err := s.LoadSeries(runID); err == nil {
		data.Series = make(map[string][]*float64, len(series))
		for name, xs := range series {
			col := make([]*float64, len(xs))
			for i := range xs {
				if !math.IsNaN(xs[i]) && !math.IsInf(xs[i], 0) {
					col[i] = &xs[i]
				}
			}
			data.Series[name] = col
		}
	}

	var out io.Writer = os.Stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV writes one row of averages per run.
func ExportCSV(out io.Writer, runs []RunMetadata) error {
	w := csv.NewWriter(out)
	header := append([]string{"id", "label", "setting", "value", "rep", "seed"}, stats.Keys...)
	header = append(header, "error")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range runs {
		row := []string{
			r.ID,
			r.Label,
			r.Setting,
			strconv.FormatFloat(r.Value, 'g', -1, 64),
			strconv.Itoa(r.Rep),
			strconv.FormatInt(r.Seed, 10),
		}
		for _, k := range stats.Keys {
			row = append(row, strconv.FormatFloat(r.Average(k), 'g', 6, 64))
		}
		row = append(row, r.Error)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
