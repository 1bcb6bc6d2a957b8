package site

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/ehrlich-b/newsroom/internal/article"
	"github.com/ehrlich-b/newsroom/internal/backend"
	"github.com/ehrlich-b/newsroom/internal/logger"
)

const feedExcerpt = 280

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        rssGUID  `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
	Enclosure   *rssEnc  `xml:"enclosure,omitempty"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

type rssEnc struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// handleFeed serves the newest articles as RSS 2.0.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	list, err := s.backend.Articles(r.Context(), backend.Page{Limit: s.cfg.Site.PageSize})
	if err != nil {
		logger.Warn("feed articles", "err", err)
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}

	base := strings.TrimRight(s.cfg.Server.BaseURL, "/")
	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:         "Pressence",
			Link:          base + "/",
			Description:   "Vaše denné AI spravodajstvo",
			Language:      "sk",
			LastBuildDate: s.now().UTC().Format(time.RFC1123Z),
		},
	}
	for _, a := range list {
		link := base + "/articles/" + a.Slug
		item := rssItem{
			Title:       a.Title,
			Link:        link,
			GUID:        rssGUID{Value: link, IsPermaLink: true},
			Description: article.Excerpt(firstNonEmpty(a.Intro, a.Content), feedExcerpt),
			PubDate:     a.ScrapedAt.UTC().Format(time.RFC1123Z),
		}
		if a.Category != "" {
			item.Categories = append(item.Categories, a.Category)
		}
		item.Categories = append(item.Categories, a.Tags...)
		if a.TopImage != "" {
			item.Enclosure = &rssEnc{URL: a.TopImage, Type: "image/jpeg"}
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		logger.Warn("encode feed", "err", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
