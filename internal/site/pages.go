package site

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/newsroom/internal/article"
	"github.com/ehrlich-b/newsroom/internal/backend"
	"github.com/ehrlich-b/newsroom/internal/coalesce"
	"github.com/ehrlich-b/newsroom/internal/logger"
)

const featureCount = 4

// layout is the data every page shares: header date, navigation, search box
// and whether the viewer holds an admin session.
type layout struct {
	Title      string
	Today      string
	Categories []article.Category
	Active     string
	Query      string
	Admin      bool
}

type homePage struct {
	layout
	Hero       *article.Article
	Features   []article.Article
	Cards      []article.Article
	HasMore    bool
	NextOffset int
	Jobs       []jobButton
}

type jobButton struct {
	Label   string
	Busy    string
	Path    string
	Payload any
	Style   string
}

type fragmentPage struct {
	Cards []article.Article
}

type categoryPage struct {
	layout
	Category article.Category
	Ticker   []string
	Articles []article.Article
}

type articlePage struct {
	layout
	Article       article.Article
	Sources       []sourceGroup
	Suggestions   []article.Article
	AISuggestions bool
	SimilarFailed bool
}

type sourceGroup struct {
	Domain string
	Count  int
	Links  []sourceLink
}

type sourceLink struct {
	URL         string
	Orientation *article.Orientation
}

type searchPage struct {
	layout
	TooShort bool
	Failed   bool
	Results  []article.Article
}

type adminPage struct {
	layout
	Configured bool
}

func (s *Server) layout(r *http.Request, title string) layout {
	return layout{
		Title:      title,
		Today:      article.FormatLongDate(s.now()),
		Categories: article.Categories(),
		Admin:      s.sessions.Authenticated(r),
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	size := s.cfg.Site.PageSize
	list, err := s.backend.Articles(r.Context(), backend.Page{Limit: size + 1})
	if err != nil {
		logger.Warn("home articles", "err", err)
	}

	data := homePage{layout: s.layout(r, "")}
	if data.Admin {
		data.Jobs = []jobButton{
			{
				Label:   "Spracovať 3 články z každého zdroja",
				Busy:    "Spracúvam 3 články zo zdrojov...",
				Path:    "/api/admin/scrape-per-source",
				Payload: backend.DefaultPerSource,
				Style:   "primary",
			},
			{
				Label:   "Spracovať 3 články celkovo + overiť fakty",
				Busy:    "Spracúvam 3 články + overenie faktov...",
				Path:    "/api/admin/scrape-with-fact-check",
				Payload: backend.DefaultFactCheck,
				Style:   "outline",
			},
		}
	}
	if len(list) > 0 {
		data.Hero = &list[0]
		rest := list[1:]
		n := min(featureCount, len(rest))
		data.Features = rest[:n]
		data.Cards = rest[n:]
		data.NextOffset = len(list)
		data.HasMore = len(list) == size+1
	}
	s.pages.render(w, http.StatusOK, "home", "base", data)
}

// handleMoreArticles renders the next page of cards for the home page's
// "load more" button. X-Has-More tells the script whether to keep the button.
func (s *Server) handleMoreArticles(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	size := s.cfg.Site.PageSize
	list, err := s.backend.Articles(r.Context(), backend.Page{Limit: size, Offset: offset, HasOffset: true})
	if err != nil {
		logger.Warn("more articles", "offset", offset, "err", err)
		w.Header().Set("X-Has-More", "false")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("X-Has-More", strconv.FormatBool(len(list) == size))
	w.Header().Set("X-Next-Offset", strconv.Itoa(offset+len(list)))
	s.pages.render(w, http.StatusOK, "fragment", "fragment", fragmentPage{Cards: list})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	cat, ok := article.LookupCategory(r.PathValue("slug"))
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	list, err := s.backend.Articles(r.Context(), backend.Page{})
	if err != nil {
		logger.Warn("category articles", "category", cat.Slug, "err", err)
	}

	data := categoryPage{
		layout:   s.layout(r, cat.Name),
		Category: cat,
		Articles: article.InCategory(list, cat.Slug),
	}
	data.Active = cat.Slug
	if len(list) > 5 {
		data.Ticker = article.Titles(list[5:])
	}
	s.pages.render(w, http.StatusOK, "category", "base", data)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var (
		a    article.Article
		pool []article.Article
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		a, err = s.backend.ArticleBySlug(ctx, slug)
		return err
	})
	g.Go(func() error {
		var err error
		if pool, err = s.backend.Articles(ctx, backend.Page{Limit: s.cfg.Site.RelatedPool}); err != nil {
			logger.Warn("related pool", "slug", slug, "err", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			logger.Warn("article lookup", "slug", slug, "err", err)
		}
		s.handleNotFound(w, r)
		return
	}

	data := articlePage{
		layout:  s.layout(r, a.Title),
		Article: a,
	}
	data.Active = article.NormalizeCategory(a.Category)

	var (
		similar    []article.Article
		similarErr error
		leanings   map[string]article.Orientation
	)
	lookups, lctx := errgroup.WithContext(r.Context())
	lookups.Go(func() error {
		similar, similarErr = s.similarArticles(lctx, a.ID)
		return nil
	})
	lookups.Go(func() error {
		leanings = s.sourceOrientations(lctx, a.URLs)
		return nil
	})
	lookups.Wait()

	limit := s.cfg.Site.MaxSuggestions
	if len(similar) > 0 {
		data.AISuggestions = true
		data.Suggestions = similar[:min(limit, len(similar))]
	} else {
		data.Suggestions = article.Related(a, pool, limit)
		data.SimilarFailed = similarErr != nil
	}

	for _, grp := range article.GroupSources(a.URLs) {
		sg := sourceGroup{Domain: grp.Domain, Count: len(grp.URLs)}
		for _, u := range grp.URLs {
			link := sourceLink{URL: u}
			if o, ok := leanings[u]; ok {
				link.Orientation = &o
			}
			sg.Links = append(sg.Links, link)
		}
		data.Sources = append(data.Sources, sg)
	}
	s.pages.render(w, http.StatusOK, "article", "base", data)
}

// similarArticles reads the backend's recommendations through the
// coalescing cache.
func (s *Server) similarArticles(ctx context.Context, id string) ([]article.Article, error) {
	if id == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, lookupWait)
	defer cancel()
	list, err := s.similar.Get(ctx, coalesce.SimilarKey(id), func(ctx context.Context) ([]article.Article, error) {
		return s.backend.Similar(ctx, id)
	})
	if err != nil {
		logger.Debug("similar articles unavailable", "id", id, "err", err)
	}
	return list, err
}

// sourceOrientations scores the article's source URLs through the
// coalescing cache. Failures only hide the labels.
func (s *Server) sourceOrientations(ctx context.Context, urls []string) map[string]article.Orientation {
	if len(urls) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, lookupWait)
	defer cancel()
	key := coalesce.OrientationKey(urls)
	res, err := s.orientations.Get(ctx, key, func(ctx context.Context) (map[string]article.Orientation, error) {
		return s.backend.URLOrientations(ctx, strings.Split(key, "\n"))
	})
	if err != nil {
		logger.Debug("url orientations unavailable", "err", err)
		return nil
	}
	return res
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := searchPage{layout: s.layout(r, "Vyhľadávanie")}
	data.Query = q
	if q != "" && len([]rune(q)) < 2 {
		data.TooShort = true
	} else if q != "" {
		res, err := s.backend.Search(r.Context(), q)
		if err != nil {
			logger.Warn("search", "q", q, "err", err)
			data.Failed = true
		}
		data.Results = res
	}
	s.pages.render(w, http.StatusOK, "search", "base", data)
}

func (s *Server) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	data := adminPage{
		layout:     s.layout(r, "Admin prístup"),
		Configured: s.sessions.Configured(),
	}
	s.pages.render(w, http.StatusOK, "admin", "base", data)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, http.StatusNotFound, "notfound", "base", s.layout(r, "Stránka nenájdená"))
}
