package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	totalCountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([\d,]+)\s+products`),
		regexp.MustCompile(`(?i)([\d,]+)\s+results`),
		regexp.MustCompile(`(?i)out of\s+([\d,]+)`),
	}
	pageParamPattern = regexp.MustCompile(`[?&]page=(\d+)`)
	numberPattern    = regexp.MustCompile(`\d+`)
)

// EstimatePages derives the page count of a category listing. It prefers
// an explicit total item count in the page text, falls back to the highest
// page parameter found in link hrefs, then to the largest number printed
// inside the pagination controls. A page with no usable signal counts as
// a single page.
func EstimatePages(doc *goquery.Document, paginationSelectors []string, pageSize int) int {
	if pageSize <= 0 {
		pageSize = 40
	}

	if total := totalItemCount(doc); total > 0 {
		return (total + pageSize - 1) / pageSize
	}

	if max := maxPageParam(doc); max > 0 {
		return max
	}

	if max := maxPaginationNumber(doc, paginationSelectors); max > 0 {
		return max
	}

	return 1
}

func totalItemCount(doc *goquery.Document) int {
	text := doc.Find("body").Text()
	for _, pat := range totalCountPatterns {
		m := pat.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func maxPageParam(doc *goquery.Document) int {
	max := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := pageParamPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	})
	return max
}

func maxPaginationNumber(doc *goquery.Document, selectors []string) int {
	max := 0
	scan := func(_ int, s *goquery.Selection) {
		for _, raw := range numberPattern.FindAllString(s.Text(), -1) {
			if n, err := strconv.Atoi(raw); err == nil && n > max {
				max = n
			}
		}
	}
	// Numbers are parsed per item so adjacent entries like "1", "2", "3"
	// never run together into one large value.
	firstMatch(doc.Selection, selectors).Each(func(_ int, s *goquery.Selection) {
		items := s.Find("a, li, span, button")
		if items.Length() == 0 {
			scan(0, s)
			return
		}
		items.Each(scan)
	})
	return max
}
