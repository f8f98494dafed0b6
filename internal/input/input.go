// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package input loads the city table and the city reference mapping and
// builds the prioritized processing queue.
package input

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// Required CSV columns.
const (
	ColumnCity        = "City"
	ColumnCafesNeeded = "Cafes Needed"
)

// CityRow is one row of the city table.
type CityRow struct {
	Line        int
	City        string
	CafesNeeded int
}

// LoadCities reads the city table at path. A missing file is a fatal
// configuration error; a row with an empty city or a non-positive count is
// an error naming the line.
func LoadCities(path string) ([]CityRow, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: input file %s not found", types.ErrFatalConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	rows, err := ParseCities(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ParseCities reads CSV with a header row holding City and Cafes Needed.
// Other columns are ignored.
func ParseCities(r io.Reader) ([]CityRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty city table")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cityCol, countCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case ColumnCity:
			cityCol = i
		case ColumnCafesNeeded:
			countCol = i
		}
	}
	if cityCol < 0 || countCol < 0 {
		return nil, fmt.Errorf("city table must contain columns %q and %q", ColumnCity, ColumnCafesNeeded)
	}

	var rows []CityRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(rec) {
			continue
		}
		city := field(rec, cityCol)
		if city == "" {
			return nil, fmt.Errorf("line %d: empty %s", line, ColumnCity)
		}
		raw := field(rec, countCol)
		n, err := parseCount(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s %q: %w", line, ColumnCafesNeeded, raw, err)
		}
		rows = append(rows, CityRow{Line: line, City: city, CafesNeeded: n})
	}
	return rows, nil
}

// parseCount accepts positive integers, including spreadsheet exports
// such as "5.0".
func parseCount(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, errors.New("not an integer")
	}
	if f <= 0 {
		return 0, errors.New("must be positive")
	}
	return int(f), nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// LoadMapping reads the JSON object mapping city name to Contentful entry ID.
func LoadMapping(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: city mapping %s not found", types.ErrFatalConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing city mapping %s: %w", path, err)
	}
	return m, nil
}

// BuildQueue orders rows by cafes needed, highest first, keeping input
// order among equal counts. Cities without a mapping entry are skipped with
// a warning and returned in skipped.
func BuildQueue(rows []CityRow, mapping map[string]string) (queue []types.QueueItem, skipped []string) {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b CityRow) int {
		return b.CafesNeeded - a.CafesNeeded
	})
	for _, r := range sorted {
		id := mapping[r.City]
		if id == "" {
			slog.Warn("no mapping found for city", "city", r.City)
			skipped = append(skipped, r.City)
			continue
		}
		queue = append(queue, types.QueueItem{City: r.City, CafesNeeded: r.CafesNeeded, CityID: id})
	}
	return queue, skipped
}

// FilterCity keeps only the queue item for city (case-insensitive).
func FilterCity(queue []types.QueueItem, city string) []types.QueueItem {
	var out []types.QueueItem
	for _, item := range queue {
		if strings.EqualFold(item.City, strings.TrimSpace(city)) {
			out = append(out, item)
		}
	}
	return out
}

// WriteQueueSnapshot writes the queue as YAML for review.
func WriteQueueSnapshot(path string, queue []types.QueueItem) error {
	data, err := yaml.Marshal(struct {
		Queue []types.QueueItem `yaml:"queue"`
	}{queue})
	if err != nil {
		return fmt.Errorf("marshaling queue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing queue snapshot: %w", err)
	}
	return nil
}
