package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// firstText returns the first non-blank text node directly under sel
func firstText(sel *goquery.Selection) string {
	if sel == nil || len(sel.Nodes) == 0 {
		return ""
	}
	for c := sel.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(c.Data); t != "" {
			return t
		}
	}
	return ""
}

// scoped returns the first match of selector inside scope, or scope itself
// when selector is empty
func scoped(scope *goquery.Selection, selector string) *goquery.Selection {
	if scope == nil || scope.Length() == 0 {
		return nil
	}
	if selector == "" {
		return scope.First()
	}
	found := scope.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

// text is the trimmed text content of sel
func text(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

// attr reads an attribute, empty when sel or the attribute is missing
func attr(sel *goquery.Selection, name string) string {
	if sel == nil || name == "" {
		return ""
	}
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}
