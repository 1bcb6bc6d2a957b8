package article

import "strings"

// Category is one of the fixed site sections.
type Category struct {
	Slug string
	Name string
}

var categories = []Category{
	{"politika", "Politika"},
	{"ekonomika", "Ekonomika"},
	{"sport", "Šport"},
	{"kultura", "Kultúra"},
	{"technologie", "Technológie"},
	{"zdravie", "Zdravie"},
	{"veda", "Veda"},
}

// Categories returns the site sections in navigation order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func LookupCategory(slug string) (Category, bool) {
	for _, c := range categories {
		if c.Slug == slug {
			return c, true
		}
	}
	return Category{}, false
}

// InCategory returns the articles whose normalized category equals slug.
func InCategory(articles []Article, slug string) []Article {
	var out []Article
	for _, a := range articles {
		if NormalizeCategory(a.Category) == slug {
			out = append(out, a)
		}
	}
	return out
}

// Related picks up to limit articles from pool sharing a's category
// (case-insensitive), excluding a itself.
func Related(a Article, pool []Article, limit int) []Article {
	var out []Article
	for _, p := range pool {
		if len(out) >= limit {
			break
		}
		if p.Slug == a.Slug || !strings.EqualFold(p.Category, a.Category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Titles returns the non-empty titles of articles.
func Titles(articles []Article) []string {
	var out []string
	for _, a := range articles {
		if a.Title != "" {
			out = append(out, a.Title)
		}
	}
	return out
}
