package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/timeparse"
)

// ErrNoProfile is returned when a page carries no recognizable athlete
// profile, typically an interstitial or a deleted account.
var ErrNoProfile = eris.New("extract: no athlete profile found")

var profilePathRe = regexp.MustCompile(`/swimmer/(\d+)`)

// ldPerson is the subset of the schema.org Person block candidate profile
// pages embed.
type ldPerson struct {
	Type         string `json:"@type"`
	Name         string `json:"name"`
	BirthDate    string `json:"birthDate"`
	HomeLocation struct {
		Name    string `json:"name"`
		Address struct {
			AddressLocality string `json:"addressLocality"`
			AddressRegion   string `json:"addressRegion"`
		} `json:"address"`
	} `json:"homeLocation"`
}

// ParseProfile reads a candidate profile page into a CandidateRecord. The
// structured JSON-LD block is authoritative when present; visible markup
// fills whatever it omits. The external ID comes from the profile URL path
// and is required for the record to be linkable.
func ParseProfile(markup, pageURL string, side timeparse.DualSide) (model.CandidateRecord, error) {
	rec := model.CandidateRecord{
		SourceURL: pageURL,
		ScrapedAt: time.Now().UTC(),
	}
	rec.ExternalID = externalIDFromURL(pageURL)

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return rec, eris.Wrap(err, "extract: parse profile markup")
	}

	if p, ok := findPersonLD(doc); ok {
		rec.Name = model.NormalizeName(p.Name)
		rec.Hometown = joinLocality(p.HomeLocation.Address.AddressLocality, p.HomeLocation.Address.AddressRegion)
		if rec.Hometown == "" {
			rec.Hometown = strings.TrimSpace(p.HomeLocation.Name)
		}
		if y := yearFromDate(p.BirthDate); y != 0 {
			rec.BirthYear = &y
		}
	}

	if rec.Name == "" {
		if h := findFirst(doc, func(n *html.Node) bool { return isElement(n, "h1") }); h != nil {
			rec.Name = model.NormalizeName(textContent(h))
		}
	}
	if rec.Name == "" {
		return rec, ErrNoProfile
	}

	if team := findFirst(doc, func(n *html.Node) bool { return hasClass(n, "team-name") }); team != nil {
		rec.Affiliation = strings.TrimSpace(linkOrText(team))
	}

	rec.BestTimes = parseBestTimes(doc, side)
	return rec, nil
}

// externalIDFromURL extracts the numeric profile identifier from a
// /swimmer/{id}/ path. An empty return means the candidate is unlinkable.
func externalIDFromURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	if m := profilePathRe.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// findPersonLD scans ld+json script blocks for the first Person entry.
func findPersonLD(doc *html.Node) (ldPerson, bool) {
	scripts := findAll(doc, func(n *html.Node) bool {
		return isElement(n, "script") && attrVal(n, "type") == "application/ld+json"
	})
	for _, s := range scripts {
		raw := strings.TrimSpace(textContent(s))
		if raw == "" && s.FirstChild != nil {
			raw = strings.TrimSpace(s.FirstChild.Data)
		}
		if raw == "" {
			continue
		}
		var p ldPerson
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.Type == "Person" && p.Name != "" {
			return p, true
		}
		// Some pages wrap entries in a top-level array.
		var many []ldPerson
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			for _, p := range many {
				if p.Type == "Person" && p.Name != "" {
					return p, true
				}
			}
		}
	}
	return ldPerson{}, false
}

// parseBestTimes reads the best-times table into event key -> seconds.
// Rows whose marks fail to parse are skipped.
func parseBestTimes(doc *html.Node, side timeparse.DualSide) map[string]float64 {
	table := findFirst(doc, func(n *html.Node) bool { return hasClass(n, "times-table") })
	if table == nil {
		return nil
	}
	times := make(map[string]float64)
	for _, tr := range findAll(table, func(n *html.Node) bool { return isElement(n, "tr") }) {
		cells := findAll(tr, func(n *html.Node) bool { return isElement(n, "td") })
		if len(cells) < 2 {
			continue
		}
		key := NormalizeSwimEvent(linkOrText(cells[0]))
		if key == "" {
			continue
		}
		secs, err := timeparse.ParseSeconds(textContent(cells[1]), side)
		if err != nil {
			continue
		}
		times[key] = secs
	}
	if len(times) == 0 {
		return nil
	}
	return times
}

func joinLocality(city, region string) string {
	city = strings.TrimSpace(city)
	region = strings.TrimSpace(region)
	switch {
	case city != "" && region != "":
		return city + ", " + region
	case city != "":
		return city
	default:
		return region
	}
}

func yearFromDate(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil || y < 1900 || y > 2100 {
		return 0
	}
	return y
}
