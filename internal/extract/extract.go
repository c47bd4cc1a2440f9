// Package extract turns scraped result-list markup into athlete performance
// rows. Two passes run over each document: a strict pass keyed to the
// performance-list layout the source site renders today, and a lenient pass
// over generic tables that survives markup redesigns. Malformed rows are
// dropped silently and counted, never fatal.
package extract

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/timeparse"
)

// ErrNoRows is returned when neither pass recognizes a single valid row.
// The pipeline treats it as a page skip, not a failure.
var ErrNoRows = eris.New("extract: no rows recognized")

// Row is one extracted performance entry, pre-normalization of identity but
// post-parse of the mark. FirstName/LastName are already case-folded.
type Row struct {
	Rank        int
	FirstName   string
	LastName    string
	Affiliation string
	EventKey    string
	Gender      model.Gender
	Seconds     float64
	RawTime     string
	ClassYear   string
	MeetName    string
	MeetDate    string
}

// Stats counts what each pass saw. Dropped covers rows that failed
// validation; Deduped covers rows discarded as duplicates; Capped covers
// rows beyond the per-event limit.
type Stats struct {
	StrictRows  int
	LenientRows int
	Dropped     int
	Deduped     int
	Capped      int
}

type Extractor struct {
	side        timeparse.DualSide
	maxPerEvent int
}

func New(cfg config.ExtractConfig) *Extractor {
	return &Extractor{
		side:        timeparse.SideFromString(cfg.DualTimeSide),
		maxPerEvent: cfg.MaxPerEvent,
	}
}

// Extract parses markup and returns every valid, deduplicated row. The
// strict pass runs first; the lenient pass runs only when the strict pass
// yields nothing, so a well-formed page is never double-read.
func (e *Extractor) Extract(markup string) ([]Row, Stats, error) {
	var stats Stats

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, stats, eris.Wrap(err, "extract: parse markup")
	}

	rows := e.strictPass(doc, &stats)
	stats.StrictRows = len(rows)
	if len(rows) == 0 {
		rows = e.lenientPass(doc, &stats)
		stats.LenientRows = len(rows)
	}

	rows = dedupe(rows, &stats)
	rows = e.capPerEvent(rows, &stats)

	if len(rows) == 0 {
		return nil, stats, ErrNoRows
	}
	return rows, stats, nil
}

// strictPass reads performance-list blocks. Each block's event and gender
// come from the nearest enclosing section that contains a
// custom-table-title heading.
func (e *Extractor) strictPass(doc *html.Node, stats *Stats) []Row {
	var rows []Row
	lists := findAll(doc, func(n *html.Node) bool { return hasClass(n, "performance-list") })
	for _, list := range lists {
		eventKey, gender := resolveContext(list)
		rowNodes := findAll(list, func(n *html.Node) bool { return hasClass(n, "performance-list-row") })
		for _, rn := range rowNodes {
			row, ok := e.strictRow(rn, eventKey, gender)
			if !ok {
				stats.Dropped++
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func (e *Extractor) strictRow(rn *html.Node, eventKey string, gender model.Gender) (Row, bool) {
	row := Row{EventKey: eventKey, Gender: gender}

	place := findFirst(rn, func(n *html.Node) bool { return hasClass(n, "col-place") })
	athlete := findFirst(rn, func(n *html.Node) bool { return hasClass(n, "col-athlete") })
	team := findFirst(rn, func(n *html.Node) bool { return hasClass(n, "col-team") })
	if place == nil || athlete == nil {
		return Row{}, false
	}

	row.Rank = parseRank(textContent(place))
	row.FirstName, row.LastName = model.SplitName(linkOrText(athlete))
	row.Affiliation = strings.TrimSpace(linkOrText(team))

	// Narrow columns carry labeled values; which labels appear varies by
	// list flavor, so read whatever is present.
	for _, col := range findAll(rn, func(n *html.Node) bool { return hasClass(n, "col-narrow") }) {
		val := strings.TrimSpace(linkOrText(col))
		switch strings.ToLower(attrVal(col, "data-label")) {
		case "time", "mark":
			row.RawTime = val
		case "year":
			row.ClassYear = val
		case "meet date":
			row.MeetDate = val
		case "meet":
			row.MeetName = val
		}
	}
	if row.MeetName == "" {
		if meet := findFirst(rn, func(n *html.Node) bool { return hasClass(n, "col-meet") }); meet != nil {
			row.MeetName = strings.TrimSpace(linkOrText(meet))
		}
	}

	return e.finishRow(row)
}

// lenientPass reads any table whose rows look like (rank, name, affiliation,
// time) regardless of class names or column order.
func (e *Extractor) lenientPass(doc *html.Node, stats *Stats) []Row {
	var rows []Row
	tables := findAll(doc, func(n *html.Node) bool { return isElement(n, "table") })
	for _, table := range tables {
		eventKey, gender := resolveContext(table)
		trs := findAll(table, func(n *html.Node) bool { return isElement(n, "tr") })
		for _, tr := range trs {
			cells := findAll(tr, func(n *html.Node) bool { return isElement(n, "td") })
			if len(cells) < 3 {
				continue // header or spacer
			}
			row, ok := e.lenientRow(cells, eventKey, gender)
			if !ok {
				stats.Dropped++
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func (e *Extractor) lenientRow(cells []*html.Node, eventKey string, gender model.Gender) (Row, bool) {
	row := Row{EventKey: eventKey, Gender: gender}

	// First cell must be a rank. The name is the first lettered cell of at
	// least three characters after it; the time is the first later cell
	// that parses as a mark. Whatever sits between name and time is taken
	// as the affiliation.
	row.Rank = parseRank(textContent(cells[0]))
	if row.Rank <= 0 {
		return Row{}, false
	}

	nameIdx := -1
	for i := 1; i < len(cells); i++ {
		t := strings.TrimSpace(linkOrText(cells[i]))
		if looksLikeName(t) {
			nameIdx = i
			row.FirstName, row.LastName = model.SplitName(t)
			break
		}
	}
	if nameIdx < 0 {
		return Row{}, false
	}

	timeIdx := -1
	for i := nameIdx + 1; i < len(cells); i++ {
		t := strings.TrimSpace(textContent(cells[i]))
		if t == "" {
			continue
		}
		if _, err := timeparse.ParseSeconds(t, e.side); err == nil {
			timeIdx = i
			row.RawTime = t
			break
		}
	}
	if timeIdx < 0 {
		return Row{}, false
	}

	for i := nameIdx + 1; i < timeIdx; i++ {
		if t := strings.TrimSpace(linkOrText(cells[i])); t != "" && !isNumeric(t) {
			row.Affiliation = t
			break
		}
	}

	return e.finishRow(row)
}

// finishRow parses the mark and applies row validation: positive rank, a
// name of at least two tokens, and a parseable time.
func (e *Extractor) finishRow(row Row) (Row, bool) {
	if row.Rank <= 0 || row.FirstName == "" || row.LastName == "" {
		return Row{}, false
	}
	secs, err := timeparse.ParseSeconds(row.RawTime, e.side)
	if err != nil {
		return Row{}, false
	}
	row.Seconds = secs
	return row, true
}

// resolveContext walks ancestors of n; the first ancestor subtree holding a
// custom-table-title heading (or, failing that, any h2/h3) names the
// section. Unresolvable context yields the unknown sentinel.
func resolveContext(n *html.Node) (string, model.Gender) {
	for anc := n.Parent; anc != nil; anc = anc.Parent {
		title := findFirst(anc, func(c *html.Node) bool { return hasClass(c, "custom-table-title") })
		if title != nil {
			if h := findFirst(title, func(c *html.Node) bool { return isElement(c, "h3") }); h != nil {
				return parseSectionTitle(textContent(h))
			}
			return parseSectionTitle(textContent(title))
		}
	}
	for anc := n.Parent; anc != nil; anc = anc.Parent {
		h := findFirst(anc, func(c *html.Node) bool { return isElement(c, "h2") || isElement(c, "h3") })
		if h != nil {
			return parseSectionTitle(textContent(h))
		}
	}
	return EventUnknown, model.GenderUnknown
}

func dedupe(rows []Row, stats *Stats) []Row {
	type key struct {
		first, last string
		secs        float64
	}
	seen := make(map[key]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := key{r.FirstName, r.LastName, r.Seconds}
		if _, dup := seen[k]; dup {
			stats.Deduped++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (e *Extractor) capPerEvent(rows []Row, stats *Stats) []Row {
	if e.maxPerEvent <= 0 {
		return rows
	}
	counts := make(map[string]int)
	out := rows[:0]
	for _, r := range rows {
		if counts[r.EventKey] >= e.maxPerEvent {
			stats.Capped++
			continue
		}
		counts[r.EventKey]++
		out = append(out, r)
	}
	return out
}

func parseRank(s string) int {
	s = strings.TrimSpace(s)
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func looksLikeName(s string) bool {
	if len(s) < 3 || len(strings.Fields(s)) < 2 {
		return false
	}
	letters := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	return letters >= 3
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}
