// Package standards loads benchmark tier cutoffs from the curated
// spreadsheet feed. Each input row carries a category, discipline, event,
// and one time column per tier; each non-empty tier cell becomes one
// BenchmarkStandard. Cells that fail to parse are skipped and counted,
// never fatal.
package standards

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/timeparse"
)

// Tier names in ladder order, most elite first. Column headers in the feed
// must match these exactly.
var TierOrder = []string{
	"World Leading",
	"Internationally Ranked",
	"Nationally Competitive",
	"Development Potential",
}

// TierColors maps each tier to its display color.
var TierColors = map[string]string{
	"World Leading":          "#006400",
	"Internationally Ranked": "#32CD32",
	"Nationally Competitive": "#FFD700",
	"Development Potential":  "#FF6347",
}

// LoadStats counts what the loader saw.
type LoadStats struct {
	Rows      int
	Standards int
	Skipped   int
}

// Load reads the feed at path, dispatching on extension (.csv or .xlsx).
func Load(path string, side timeparse.DualSide) ([]model.BenchmarkStandard, LoadStats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, LoadStats{}, eris.Wrap(err, "standards: open csv")
		}
		defer func() { _ = f.Close() }()
		return LoadCSV(f, side)
	case ".xlsx":
		return LoadXLSX(path, side)
	default:
		return nil, LoadStats{}, eris.Errorf("standards: unsupported feed format %q", filepath.Ext(path))
	}
}

// LoadCSV reads the wide CSV form: Category, Discipline, Event, then one
// column per tier.
func LoadCSV(r io.Reader, side timeparse.DualSide) ([]model.BenchmarkStandard, LoadStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, LoadStats{}, eris.Wrap(err, "standards: read header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, LoadStats{}, err
	}

	var (
		out   []model.BenchmarkStandard
		stats LoadStats
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, eris.Wrap(err, "standards: read row")
		}
		stats.Rows++
		out = append(out, parseRow(row, cols, side, &stats)...)
	}
	return out, stats, nil
}

// LoadXLSX reads the same wide form from the first sheet of a workbook.
func LoadXLSX(path string, side timeparse.DualSide) ([]model.BenchmarkStandard, LoadStats, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, LoadStats{}, eris.Wrap(err, "standards: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, LoadStats{}, eris.New("standards: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, LoadStats{}, eris.New("standards: sheet is empty")
	}

	cols, err := mapColumns(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, LoadStats{}, err
	}

	var (
		out   []model.BenchmarkStandard
		stats LoadStats
	)
	for _, row := range sheet.Rows[1:] {
		stats.Rows++
		out = append(out, parseRow(rowToStrings(row), cols, side, &stats)...)
	}
	return out, stats, nil
}

// columnMap locates the fixed columns and each tier column in the header.
type columnMap struct {
	category   int
	discipline int
	event      int
	tiers      map[string]int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{category: -1, discipline: -1, event: -1, tiers: make(map[string]int)}
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "Category":
			cols.category = i
		case "Discipline":
			cols.discipline = i
		case "Event":
			cols.event = i
		default:
			for _, tier := range TierOrder {
				if strings.EqualFold(strings.TrimSpace(h), tier) {
					cols.tiers[tier] = i
				}
			}
		}
	}
	if cols.category < 0 || cols.discipline < 0 || cols.event < 0 {
		return cols, eris.New("standards: header missing Category, Discipline, or Event")
	}
	if len(cols.tiers) == 0 {
		return cols, eris.New("standards: header has no tier columns")
	}
	return cols, nil
}

func parseRow(row []string, cols columnMap, side timeparse.DualSide, stats *LoadStats) []model.BenchmarkStandard {
	category := cell(row, cols.category)
	discipline := cell(row, cols.discipline)
	event := cell(row, cols.event)
	if category == "" || discipline == "" || event == "" {
		stats.Skipped++
		return nil
	}

	gender := genderFromCategory(category)
	ageGroup := ageGroupFromCategory(category)
	eventKey := EventKey(discipline, event)

	var out []model.BenchmarkStandard
	for rank, tier := range TierOrder {
		idx, ok := cols.tiers[tier]
		if !ok {
			continue
		}
		raw := cell(row, idx)
		if raw == "" {
			continue
		}
		secs, err := timeparse.ParseSeconds(raw, side)
		if err != nil {
			zap.L().Warn("standards: unparseable cutoff",
				zap.String("event", eventKey),
				zap.String("tier", tier),
				zap.String("value", raw),
			)
			stats.Skipped++
			continue
		}
		out = append(out, model.BenchmarkStandard{
			Gender:        gender,
			AgeGroup:      ageGroup,
			EventKey:      eventKey,
			Tier:          tier,
			CutoffSeconds: secs,
			ColorCode:     TierColors[tier],
			DisplayRank:   rank + 1,
		})
		stats.Standards++
	}
	return out
}

// EventKey canonicalizes a (discipline, event) pair. Run events collapse to
// the bare distance form used by extracted source records; swim events keep
// their course suffix with underscores.
func EventKey(discipline, event string) string {
	key := strings.Join(strings.Fields(event), "_")
	switch strings.ToLower(strings.TrimSpace(discipline)) {
	case "run", "running", "track":
		return strings.ToLower(key)
	case "swim", "swimming":
		return key
	default:
		return strings.Join(strings.Fields(discipline), "_") + "_" + key
	}
}

func genderFromCategory(category string) model.Gender {
	switch {
	case strings.Contains(category, "Girls") || strings.Contains(category, "Women"):
		return model.GenderFemale
	case strings.Contains(category, "Boys") || strings.Contains(category, "Men"):
		return model.GenderMale
	}
	return model.GenderUnknown
}

func ageGroupFromCategory(category string) string {
	if strings.Contains(category, "Junior") {
		return "Junior"
	}
	return "Senior"
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = c.String()
	}
	return cells
}
