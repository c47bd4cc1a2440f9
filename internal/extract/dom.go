package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// dom helpers over x/net/html nodes. The scraped markup changes often, so
// everything here is tolerant: missing nodes yield zero values, never panics.

func hasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attrVal(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// findAll collects descendants of n (excluding n) matching pred, in
// document order.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if pred(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// findFirst returns the first descendant matching pred, or nil.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var walk func(*html.Node) *html.Node
	walk = func(cur *html.Node) *html.Node {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if pred(c) {
				return c
			}
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	if n == nil {
		return nil
	}
	return walk(n)
}

// textContent concatenates all text descendants with whitespace collapsed.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			sb.WriteString(cur.Data)
			sb.WriteString(" ")
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// linkOrText prefers the text of the first <a> descendant, falling back to
// the node's own text. List cells wrap their values in profile links.
func linkOrText(n *html.Node) string {
	if a := findFirst(n, func(c *html.Node) bool { return isElement(c, "a") }); a != nil {
		if t := textContent(a); t != "" {
			return t
		}
	}
	return textContent(n)
}
