package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/flowlab/internal/document"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "recorders.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID      string             `json:"id"`
	Title   string             `json:"title"`
	File    string             `json:"file,omitempty"`
	Start   string             `json:"start"`
	End     string             `json:"end"`
	Steps   int                `json:"steps"`
	Outcome string             `json:"outcome"`
	Error   string             `json:"error,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Created time.Time          `json:"created"`
}

// Series holds recorder values by period. Every column has one value per
// period.
type Series struct {
	Periods []time.Time
	Values  map[string][]float64
}

func (s Series) Names() []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes a new run directory and returns the generated run id.
func (s *Store) Save(meta RunMetadata, series Series) (string, error) {
	for name, values := range series.Values {
		if len(values) != len(series.Periods) {
			return "", fmt.Errorf("recorder %q has %d values for %d periods", name, len(values), len(series.Periods))
		}
	}

	meta.ID = uuid.NewString()
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}
	meta.Steps = len(series.Periods)

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

	csvFile, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, series); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// WriteCSV writes series as a date column followed by one column per recorder.
func WriteCSV(w io.Writer, series Series) error {
	cw := csv.NewWriter(w)
	names := series.Names()

	header := append([]string{"date"}, names...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, p := range series.Periods {
		row := make([]string, 0, len(header))
		row = append(row, p.Format(document.DateLayout))
		for _, name := range names {
			row = append(row, strconv.FormatFloat(series.Values[name][i], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// List returns the stored runs, newest first. Unreadable entries are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(entries))
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

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Created.After(runs[j].Created)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSeries(runID string) (Series, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Series{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return Series{}, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return Series{}, fmt.Errorf("run %s: %w", runID, err)
	}

	series := Series{Values: map[string][]float64{}}
	if len(records) == 0 {
		return series, nil
	}

	names := records[0][1:]
	for _, name := range names {
		series.Values[name] = make([]float64, 0, len(records)-1)
	}
	for line, record := range records[1:] {
		period, err := time.Parse(document.DateLayout, record[0])
		if err != nil {
			return Series{}, fmt.Errorf("run %s line %d: %w", runID, line+2, err)
		}
		series.Periods = append(series.Periods, period)
		for j, name := range names {
			v, err := strconv.ParseFloat(record[j+1], 64)
			if err != nil {
				return Series{}, fmt.Errorf("run %s line %d: %w", runID, line+2, err)
			}
			series.Values[name] = append(series.Values[name], v)
		}
	}
	return series, nil
}

// Export copies a run's recorder CSV to w.
func (s *Store) Export(runID string, w io.Writer) error {
	series, err := s.LoadSeries(runID)
	if err != nil {
		return err
	}
	return WriteCSV(w, series)
}
