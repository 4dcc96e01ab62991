package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/dynamo"
	"github.com/san-kum/adinf/internal/stats"
)

const (
	metadataFile = "metadata.json"
	statsFile    = "stats.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunMetadata describes one stored run. Averages omits keys whose value is
// not finite; use Average to read them back.
type RunMetadata struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Setting   string             `json:"setting"`
	Value     float64            `json:"value"`
	Rep       int                `json:"rep"`
	Filter    config.Filter      `json:"filter"`
	Suite     *config.Suite      `json:"suite,omitempty"`
	Averages  map[string]float64 `json:"averages"`
	Error     string             `json:"error,omitempty"`
}

// Average returns the stored average for key, or NaN.
func (m *RunMetadata) Average(key string) float64 {
	if v, ok := m.Averages[key]; ok {
		return v
	}
	return math.NaN()
}

// FiniteAverages drops the non-finite entries of avg.
func FiniteAverages(avg stats.Averages) map[string]float64 {
	out := make(map[string]float64, len(stats.Keys))
	for k, v := range avg.Map() {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9.=-]+`)

// Save writes meta and, when acc is not nil, its per-cycle trace. ID and
// Timestamp are assigned here.
func (s *Store) Save(meta RunMetadata, acc *stats.Accumulator) (string, error) {
	meta.Timestamp = time.Now()
	base := unsafeID.ReplaceAllString(fmt.Sprintf("%s_%s=%g_r%d", meta.Filter.Method, meta.Setting, meta.Value, meta.Rep), "_")
	meta.ID = fmt.Sprintf("%s_%d", base, meta.Timestamp.UnixNano())
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if acc == nil {
		return meta.ID, nil
	}

	csvFile, err := os.Create(filepath.Join(runDir, statsFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteSeries(csvFile, acc); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// WriteSeries writes one CSV row per recorded cycle, columns as stats.Fields.
func WriteSeries(out io.Writer, acc *stats.Accumulator) error {
	w := csv.NewWriter(out)
	if err := w.Write(stats.Fields); err != nil {
		return err
	}

	cols := make([][]float64, len(stats.Fields))
	for i, f := range stats.Fields {
		series, err := acc.Series(f)
		if err != nil {
			return err
		}
		cols[i] = series
	}

	for r := 0; r < acc.Len(); r++ {
		row := make([]string, len(cols))
		for i := range cols {
			row[i] = strconv.FormatFloat(cols[i][r], 'g', 8, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadSeries reads the per-cycle trace of a run, keyed by column name.
func (s *Store) LoadSeries(runID string) (map[string][]float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, statsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: run %s has no trace", dynamo.ErrInsufficientData, runID)
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: run %s has an empty trace", dynamo.ErrInsufficientData, runID)
	}

	header := records[0]
	series := make(map[string][]float64, len(header))
	for _, rec := range records[1:] {
		for j, name := range header {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("run %s, column %s: %w", runID, name, err)
			}
			series[name] = append(series[name], v)
		}
	}
	return series, nil
}
