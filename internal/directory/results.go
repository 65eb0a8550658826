package directory

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseResults extracts one Entry per result name element in html.
// The link is the href of the closest enclosing anchor, made absolute against base.
// Elements with blank text, and elements hidden by markup on themselves or an
// ancestor, are skipped.
func ParseResults(html, nameSelector, base string) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	var entries []Entry
	doc.Find(nameSelector).Each(func(_ int, sel *goquery.Selection) {
		name := strings.Join(strings.Fields(sel.Text()), " ")
		if name == "" || hidden(sel) {
			return
		}
		href, _ := sel.Closest("a").Attr("href")
		entries = append(entries, Entry{Name: name, Link: ResolveLink(base, href)})
	})
	return entries, nil
}

// HasNoResults reports whether any element matching selector carries phrase in its own text.
func HasNoResults(html, selector, phrase string) (bool, error) {
	if selector == "" || phrase == "" {
		return false, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse result page: %w", err)
	}
	found := doc.Find(selector).FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return strings.Contains(ownText(sel), phrase)
	})
	return found.Length() > 0, nil
}

// hidden reports whether sel or an ancestor is hidden by the hidden or
// aria-hidden attributes or an inline display:none / visibility:hidden style.
// Stylesheet rules are not evaluated.
func hidden(sel *goquery.Selection) bool {
	for node := sel; node.Length() > 0; node = node.Parent() {
		if _, ok := node.Attr("hidden"); ok {
			return true
		}
		if v, _ := node.Attr("aria-hidden"); strings.EqualFold(strings.TrimSpace(v), "true") {
			return true
		}
		style, _ := node.Attr("style")
		style = strings.ToLower(strings.Join(strings.Fields(style), ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			b.WriteString(child.Text())
		}
	})
	return b.String()
}

// ResolveLink returns href as an absolute URL. Blank input yields "".
func ResolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
	}
	return baseURL.ResolveReference(ref).String()
}
