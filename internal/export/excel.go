// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// SheetName is the worksheet holding the reviews.
const SheetName = "Cafe Reviews"

// Columns is the workbook column order.
var Columns = []string{
	"Cafe Name",
	"Address",
	"City ID",
	"Place ID",
	"Latitude",
	"Longitude",
	"Slug",
	"Author",
	"Publish Date",
	"Excerpt",
	"Instagram Link",
	"Facebook Link",
	"Overall Score",
	"Coffee Score",
	"Food Score",
	"Vibe Score",
	"Atmosphere Score",
	"Service Score",
	"Value Score",
	"Vibe Description",
	"The Story",
	"Craft & Expertise",
	"Sets Apart",
}

const maxColumnWidth = 50

// DefaultWorkbookPath is output/cafe_reviews_<timestamp>.xlsx under dir.
func DefaultWorkbookPath(dir string, now time.Time) string {
	return filepath.Join(dir, "cafe_reviews_"+now.Format("20060102_150405")+".xlsx")
}

func row(r types.CafeReview) []any {
	var lat, lon any = "", ""
	if r.Location != nil {
		lat, lon = r.Location.Lat, r.Location.Lon
	}
	return []any{
		r.CafeName,
		r.CafeAddress,
		r.CityID,
		r.PlaceID,
		lat,
		lon,
		r.Slug,
		r.AuthorName,
		r.PublishDate.Format(time.DateOnly),
		r.Excerpt,
		r.InstagramURL,
		r.FacebookURL,
		r.Scores.Overall,
		r.Scores.Coffee,
		r.Scores.Food,
		r.Scores.Vibe,
		r.Scores.Atmosphere,
		r.Scores.Service,
		r.Scores.Value,
		r.Narrative.VibeDescription,
		r.Narrative.TheStory,
		r.Narrative.CraftExpertise,
		r.Narrative.SetsApart,
	}
}

// WriteWorkbook writes reviews to an .xlsx file, one row per review.
func WriteWorkbook(path string, reviews []types.CafeReview) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	widths := make([]int, len(Columns))
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
		widths[i] = len(c)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, r := range reviews {
		values := row(r)
		for j, v := range values {
			widths[j] = max(widths[j], len(fmt.Sprint(v)))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, float64(min(w+2, maxColumnWidth))); err != nil {
			return fmt.Errorf("sizing column %s: %w", col, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// WorkbookRow is one data row read back from a workbook. Err is set when a
// cell could not be parsed; Review then holds what was parsed.
type WorkbookRow struct {
	Line   int
	Review types.CafeReview
	Err    error
}

// ReadWorkbook reads an audited workbook. Columns are located by header
// name so auditors may reorder them; every column of Columns must be present.
// Fully empty rows are skipped.
func ReadWorkbook(path string) ([]WorkbookRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("workbook %s: sheet %s is empty", path, sheet)
	}

	index := map[string]int{}
	for i, h := range rows[0] {
		index[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range Columns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("workbook %s: missing columns %s", path, strings.Join(missing, ", "))
	}

	var out []WorkbookRow
	for i, cells := range rows[1:] {
		get := func(col string) string {
			j := index[col]
			if j >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[j])
		}
		if blank(cells) {
			continue
		}
		review, err := parseRow(get)
		out = append(out, WorkbookRow{Line: i + 2, Review: review, Err: err})
	}
	return out, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(get func(string) string) (types.CafeReview, error) {
	r := types.CafeReview{
		CafeName:     get("Cafe Name"),
		CafeAddress:  get("Address"),
		CityID:       get("City ID"),
		PlaceID:      get("Place ID"),
		Slug:         get("Slug"),
		AuthorName:   get("Author"),
		Excerpt:      get("Excerpt"),
		InstagramURL: get("Instagram Link"),
		FacebookURL:  get("Facebook Link"),
		Narrative: types.Narrative{
			VibeDescription: get("Vibe Description"),
			TheStory:        get("The Story"),
			CraftExpertise:  get("Craft & Expertise"),
			SetsApart:       get("Sets Apart"),
		},
	}
	r.CafeKey = types.CafeKey(r.CityID, r.CafeName, r.CafeAddress)

	var errs []error
	num := func(col string, dst *float64) {
		s := get(col)
		if s == "" {
			errs = append(errs, fmt.Errorf("%s is empty", col))
			return
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a number", col, s))
			return
		}
		*dst = v
	}
	num("Overall Score", &r.Scores.Overall)
	num("Coffee Score", &r.Scores.Coffee)
	num("Food Score", &r.Scores.Food)
	num("Vibe Score", &r.Scores.Vibe)
	num("Atmosphere Score", &r.Scores.Atmosphere)
	num("Service Score", &r.Scores.Service)
	num("Value Score", &r.Scores.Value)

	if get("Latitude") != "" || get("Longitude") != "" {
		var loc types.Location
		num("Latitude", &loc.Lat)
		num("Longitude", &loc.Lon)
		r.Location = &loc
	}

	if s := get("Publish Date"); s != "" {
		d, err := parseDate(s)
		if err != nil {
			errs = append(errs, err)
		}
		r.PublishDate = d
	}
	return r, errors.Join(errs...)
}

// parseDate accepts an ISO date or a spreadsheet serial date number.
func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("invalid Publish Date %q", s)
}
