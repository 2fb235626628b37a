package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// firstMatch walks the selector list in order and returns the selection
// produced by the first selector that both compiles and matches at least
// one node. Invalid selectors are skipped so a bad entry in config never
// masks the working fallbacks behind it. Returns an empty selection when
// nothing matches.
func firstMatch(scope *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		m, err := cascadia.Compile(sel)
		if err != nil {
			continue
		}
		if found := scope.FindMatcher(m); found.Length() > 0 {
			return found
		}
	}
	return scope.Slice(0, 0)
}

// firstText returns the trimmed text of the first node matched by the
// selector list, or "" when nothing matches.
func firstText(scope *goquery.Selection, selectors []string) string {
	return strings.TrimSpace(firstMatch(scope, selectors).First().Text())
}

// firstAttr returns the named attribute from the first node matched by
// the selector list, or "" when nothing matches or the attribute is unset.
func firstAttr(scope *goquery.Selection, selectors []string, attr string) string {
	val, _ := firstMatch(scope, selectors).First().Attr(attr)
	return strings.TrimSpace(val)
}
