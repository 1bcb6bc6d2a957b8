package article

import (
	"net/url"
	"strings"
)

// SourceGroup is the set of source URLs an article cites from one domain.
type SourceGroup struct {
	Domain string
	URLs   []string
}

// Multiple reports whether the group collapses several URLs.
func (g SourceGroup) Multiple() bool { return len(g.URLs) > 1 }

// Domain returns the hostname of raw without a leading "www.".
// Unparsable input is returned unchanged.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// GroupSources groups URLs by domain, keeping first-seen order.
func GroupSources(urls []string) []SourceGroup {
	var groups []SourceGroup
	index := make(map[string]int)
	for _, u := range urls {
		d := Domain(u)
		i, ok := index[d]
		if !ok {
			i = len(groups)
			index[d] = i
			groups = append(groups, SourceGroup{Domain: d})
		}
		groups[i].URLs = append(groups[i].URLs, u)
	}
	return groups
}

// PluralArticles returns the Slovak form of "article" for n.
func PluralArticles(n int) string {
	switch {
	case n == 1:
		return "článok"
	case n >= 2 && n <= 4:
		return "články"
	default:
		return "článkov"
	}
}
