package extract

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// ParseSearchResults returns candidate profile URLs found on a search
// results page, in page order, deduplicated by profile ID. Relative hrefs
// resolve against pageURL.
func ParseSearchResults(markup, pageURL string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse search markup")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: bad search url %q", pageURL)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, a := range findAll(doc, func(n *html.Node) bool { return isElement(n, "a") }) {
		href := attrVal(a, "href")
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		m := profilePathRe.FindStringSubmatch(resolved.Path)
		if m == nil {
			continue
		}
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, resolved.String())
	}
	return out, nil
}
