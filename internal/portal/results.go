package portal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// match is one visible row of the member search list.
type match struct {
	Name string
	Href string
}

// visibleMatches returns the search result rows the portal currently shows.
// The portal filters client side by toggling the inline display style, so hidden
// rows stay in the DOM and must be ignored.
func visibleMatches(html string) ([]match, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []match
	doc.Find("div.user_item").Each(func(_ int, row *goquery.Selection) {
		if !isTableRow(row.AttrOr("style", "")) {
			return
		}
		link := row.Find("a").First()
		href, _ := link.Attr("href")
		out = append(out, match{
			Name: strings.Join(strings.Fields(link.Text()), " "),
			Href: href,
		})
	})
	return out, nil
}

// isTableRow reports whether an inline style sets display to table-row.
func isTableRow(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(prop), "display") &&
			strings.EqualFold(strings.TrimSpace(value), "table-row") {
			return true
		}
	}
	return false
}

// singleMatch applies the search rule: exactly one visible row identifies the entity.
func singleMatch(name string, matches []match) (match, error) {
	if len(matches) != 1 {
		return match{}, &EntityNotFoundError{Name: name, Matches: len(matches)}
	}
	return matches[0], nil
}

// resolveHref returns the absolute address of a result row link relative to the page it was read from.
func resolveHref(page, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", errors.New("result row has no profile link")
	}
	base, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("invalid page address %q: %w", page, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid profile link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
