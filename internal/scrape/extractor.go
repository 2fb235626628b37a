package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
)

const (
	maxSpecKeyLen = 50
	maxReviews    = 5
	maxRelated    = 4
)

var priceDigits = regexp.MustCompile(`[\d.]+`)

// Extractor maps catalog DOM into domain records using the configured
// selector fallback chains.
type Extractor struct {
	sel    Selectors
	base   *url.URL
	logger *zap.Logger
}

// NewExtractor builds an Extractor. baseURL anchors relative links.
func NewExtractor(sel Selectors, baseURL string, logger *zap.Logger) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Extractor{sel: sel, base: base, logger: logger}, nil
}

// Products extracts the product cards of a category listing page. Cards
// missing a title or link are dropped rather than persisted half-empty.
func (e *Extractor) Products(doc *goquery.Document) []catalog.Product {
	cards := firstMatch(doc.Selection, e.sel.ProductCard)
	products := make([]catalog.Product, 0, cards.Length())

	cards.Each(func(i int, card *goquery.Selection) {
		title := firstText(card, e.sel.ProductTitle)
		if title == "" {
			title = firstAttr(card, e.sel.ProductTitle, "title")
		}
		link := firstAttr(card, e.sel.ProductLink, "href")
		if title == "" || link == "" {
			e.logger.Debug("dropping incomplete product card", zap.Int("index", i))
			return
		}

		sourceURL := e.absoluteURL(link)
		p := catalog.Product{
			SourceID:      SourceIDFromURL(sourceURL),
			Title:         title,
			Author:        firstText(card, e.sel.ProductAuthor),
			Price:         ParsePrice(firstText(card, e.sel.ProductPrice)),
			OriginalPrice: ParsePrice(firstText(card, e.sel.ProductOriginalPrice)),
			ImageURL:      e.extractImage(card),
			SourceURL:     sourceURL,
		}
		if !p.Valid() {
			e.logger.Debug("dropping invalid product", zap.String("title", title))
			return
		}
		products = append(products, p)
	})
	return products
}

// Navigation extracts the category tree from the site navigation.
func (e *Extractor) Navigation(doc *goquery.Document) catalog.Navigation {
	var nav catalog.Navigation
	firstMatch(doc.Selection, e.sel.NavigationItem).Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		cat := catalog.Category{
			Title: title,
			Slug:  Slugify(title),
			URL:   e.absoluteURL(href),
		}
		firstMatch(item, e.sel.NavigationChildren).Each(func(_ int, child *goquery.Selection) {
			childLink := child.Find("a").First()
			if childLink.Length() == 0 {
				childLink = child
			}
			childTitle := strings.TrimSpace(childLink.Text())
			childHref, _ := childLink.Attr("href")
			if childTitle == "" || childHref == "" {
				return
			}
			cat.Children = append(cat.Children, catalog.Category{
				Title: childTitle,
				Slug:  Slugify(childTitle),
				URL:   e.absoluteURL(childHref),
			})
		})
		nav.Categories = append(nav.Categories, cat)
	})
	return nav
}

// Detail extracts a product detail page.
func (e *Extractor) Detail(doc *goquery.Document) catalog.ProductDetail {
	detail := catalog.ProductDetail{
		Description: firstText(doc.Selection, e.sel.DetailDescription),
		ImageURL:    e.absoluteURL(firstAttr(doc.Selection, e.sel.DetailImage, "src")),
		Specs:       map[string]string{},
	}

	firstMatch(doc.Selection, e.sel.DetailSpecRows).Each(func(_ int, row *goquery.Selection) {
		key, value := splitSpecRow(row)
		if key == "" || len(key) > maxSpecKeyLen {
			return
		}
		detail.Specs[key] = value
	})

	firstMatch(doc.Selection, e.sel.DetailReviews).EachWithBreak(func(i int, review *goquery.Selection) bool {
		if i >= maxReviews {
			return false
		}
		if text := strings.TrimSpace(review.Text()); text != "" {
			detail.Reviews = append(detail.Reviews, text)
		}
		return true
	})

	firstMatch(doc.Selection, e.sel.DetailRelated).EachWithBreak(func(i int, rel *goquery.Selection) bool {
		if i >= maxRelated {
			return false
		}
		href := firstAttr(rel, e.sel.ProductLink, "href")
		if href == "" {
			href, _ = rel.Find("a").First().Attr("href")
		}
		if href != "" {
			detail.Related = append(detail.Related, e.absoluteURL(href))
		}
		return true
	})

	return detail
}

func (e *Extractor) extractImage(card *goquery.Selection) string {
	src := firstAttr(card, e.sel.ProductImage, "src")
	if src == "" || strings.HasPrefix(src, "data:") {
		for _, attr := range e.sel.LazyImageAttrs {
			if lazy := firstAttr(card, e.sel.ProductImage, attr); lazy != "" {
				src = lazy
				break
			}
		}
	}
	return e.absoluteURL(src)
}

func (e *Extractor) absoluteURL(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(ref).String()
}

// SourceIDFromURL derives the stable catalog identity of a product from
// the last meaningful path segment of its URL.
func SourceIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := strings.TrimSuffix(segments[len(segments)-1], ".html")
	if last == "index" && len(segments) > 1 {
		last = segments[len(segments)-2]
	}
	return last
}

// ParsePrice strips currency symbols and grouping characters and parses
// the remaining number. Unparseable prices come back as 0.
func ParsePrice(raw string) float64 {
	cleaned := strings.ReplaceAll(raw, ",", "")
	m := priceDigits.FindString(cleaned)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// Slugify lowercases a title and collapses non-alphanumerics to hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func splitSpecRow(row *goquery.Selection) (string, string) {
	th := row.Find("th").First()
	td := row.Find("td").First()
	if th.Length() > 0 && td.Length() > 0 {
		return strings.TrimSpace(th.Text()), strings.TrimSpace(td.Text())
	}
	text := strings.TrimSpace(row.Text())
	key, value, found := strings.Cut(text, ":")
	if !found {
		return "", ""
	}
	return strings.TrimSpace(key), strings.TrimSpace(value)
}
