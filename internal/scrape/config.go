package scrape

import (
	"fmt"
	"time"
)

// Selectors holds the ordered CSS fallback chains for every extracted
// field. Earlier entries are preferred; later ones cover site redesigns.
type Selectors struct {
	ProductCard          []string
	ProductTitle         []string
	ProductAuthor        []string
	ProductPrice         []string
	ProductOriginalPrice []string
	ProductImage         []string
	ProductLink          []string
	// LazyImageAttrs are attribute names probed when src is empty or a
	// placeholder, e.g. data-src for lazily loaded covers.
	LazyImageAttrs []string

	NavigationItem     []string
	NavigationChildren []string

	DetailDescription []string
	DetailSpecRows    []string
	DetailImage       []string
	DetailReviews     []string
	DetailRelated     []string

	Pagination []string
}

// DefaultSelectors returns the fallback chains tuned for the bookstore
// catalog markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ProductCard:          []string{"article.product_pod", ".product-card", "li.product"},
		ProductTitle:         []string{"h3 a", ".product-title", "h2 a"},
		ProductAuthor:        []string{".author", ".product-author", "p.author"},
		ProductPrice:         []string{".price_color", ".price", ".product-price"},
		ProductOriginalPrice: []string{".price-old", ".original-price", "del"},
		ProductImage:         []string{".image_container img", ".product-image img", "img.thumbnail"},
		ProductLink:          []string{"h3 a", ".product-title a", "a.product-link"},
		LazyImageAttrs:       []string{"data-src", "data-lazy-src", "data-original"},
		NavigationItem:       []string{".side_categories > ul > li", ".nav-categories > li"},
		NavigationChildren:   []string{"ul li", ".subcategories a"},
		DetailDescription:    []string{"#product_description ~ p", ".product-description", ".description"},
		DetailSpecRows:       []string{"table.table-striped tr", ".specs tr", ".product-specs li"},
		DetailImage:          []string{"#product_gallery img", ".carousel img", ".product-detail img"},
		DetailReviews:        []string{".review", ".product-review"},
		DetailRelated:        []string{".related .product_pod", ".related-products .product-card"},
		Pagination:           []string{"ul.pager", ".pagination", "nav.pages"},
	}
}

// Merge returns a copy of s with every non-empty chain from o replacing
// the corresponding chain in s. Fields left empty in o keep the chains
// of s, so a config file only needs to name the fields it changes.
func (s Selectors) Merge(o Selectors) Selectors {
	pick := func(override, base []string) []string {
		if len(override) > 0 {
			return override
		}
		return base
	}
	s.ProductCard = pick(o.ProductCard, s.ProductCard)
	s.ProductTitle = pick(o.ProductTitle, s.ProductTitle)
	s.ProductAuthor = pick(o.ProductAuthor, s.ProductAuthor)
	s.ProductPrice = pick(o.ProductPrice, s.ProductPrice)
	s.ProductOriginalPrice = pick(o.ProductOriginalPrice, s.ProductOriginalPrice)
	s.ProductImage = pick(o.ProductImage, s.ProductImage)
	s.ProductLink = pick(o.ProductLink, s.ProductLink)
	s.LazyImageAttrs = pick(o.LazyImageAttrs, s.LazyImageAttrs)
	s.NavigationItem = pick(o.NavigationItem, s.NavigationItem)
	s.NavigationChildren = pick(o.NavigationChildren, s.NavigationChildren)
	s.DetailDescription = pick(o.DetailDescription, s.DetailDescription)
	s.DetailSpecRows = pick(o.DetailSpecRows, s.DetailSpecRows)
	s.DetailImage = pick(o.DetailImage, s.DetailImage)
	s.DetailReviews = pick(o.DetailReviews, s.DetailReviews)
	s.DetailRelated = pick(o.DetailRelated, s.DetailRelated)
	s.Pagination = pick(o.Pagination, s.Pagination)
	return s
}

// Config drives the category crawl loop.
type Config struct {
	BaseURL      string
	UserAgent    string
	MaxPages     int
	PageSize     int
	WaitSelector string

	DelayMin time.Duration
	DelayMax time.Duration

	NavTimeout    time.Duration
	PageTimeout   time.Duration
	DetailTimeout time.Duration

	Retry     RetryConfig
	Selectors Selectors
}

// Validate enforces required crawl settings.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url must be set")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be > 0")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages must be >= 0")
	}
	if len(c.Selectors.ProductCard) == 0 {
		return fmt.Errorf("product card selectors must not be empty")
	}
	return nil
}
