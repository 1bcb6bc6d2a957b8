// Package site serves the newspaper pages, the admin API and the backend
// proxy routes.
package site

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/ehrlich-b/newsroom/internal/admin"
	"github.com/ehrlich-b/newsroom/internal/article"
	"github.com/ehrlich-b/newsroom/internal/backend"
	"github.com/ehrlich-b/newsroom/internal/coalesce"
	"github.com/ehrlich-b/newsroom/internal/config"
	"github.com/ehrlich-b/newsroom/internal/proxy"
	"github.com/ehrlich-b/newsroom/internal/store"
)

// lookupWait bounds how long a page waits for cached side lookups (similar
// articles, source orientations). The shared fetch keeps running and fills
// the cache for the next view.
const lookupWait = 3 * time.Second

type Server struct {
	cfg      *config.Config
	store    *store.Store
	backend  *backend.Client
	proxy    *proxy.Proxy
	sessions *admin.Sessions
	limiter  *admin.LoginLimiter
	pages    *templates

	similar      *coalesce.Cache[[]article.Article]
	orientations *coalesce.Cache[map[string]article.Orientation]

	mux *http.ServeMux
	now func() time.Time
}

// New wires the server. The store must be open; the backend client is
// built from the config when nil.
func New(cfg *config.Config, st *store.Store, client *backend.Client) (*Server, error) {
	if client == nil {
		client = backend.New(cfg.Backend.URL, cfg.Backend.Timeout, cfg.Backend.Retries)
	}
	sessions, err := admin.NewSessions(cfg.Admin.Token, st, cfg.Admin.SessionTTL, cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("admin sessions: %w", err)
	}
	pages, err := loadTemplates(templateFS(cfg))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		store:        st,
		backend:      client,
		sessions:     sessions,
		limiter:      admin.NewLoginLimiter(cfg.Admin.LoginRate, cfg.Admin.LoginBurst),
		pages:        pages,
		similar:      coalesce.New[[]article.Article](cfg.Cache.TTL, cfg.Cache.MaxEntries),
		orientations: coalesce.New[map[string]article.Orientation](cfg.Cache.TTL, cfg.Cache.MaxEntries),
		mux:          http.NewServeMux(),
		now:          time.Now,
	}
	s.proxy, err = proxy.New(proxy.Options{
		BaseURL:      cfg.Backend.URL,
		Timeout:      cfg.Backend.Timeout,
		AdminTimeout: cfg.Backend.AdminTimeout,
		Token:        cfg.Admin.Token,
		Sessions:     sessions,
		OnJob:        s.jobFinished,
	})
	if err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	// pages
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /fragments/articles", s.handleMoreArticles)
	s.mux.HandleFunc("GET /category/{slug}", s.handleCategory)
	s.mux.HandleFunc("GET /articles/{slug}", s.handleArticle)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("GET /admin", s.handleAdminPage)
	s.mux.HandleFunc("GET /rss.xml", s.handleFeed)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /", s.handleNotFound)

	sub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))

	// admin
	s.mux.HandleFunc("POST /api/admin/login", s.handleAdminLogin)
	s.mux.HandleFunc("POST /api/admin/logout", s.handleAdminLogout)
	s.mux.HandleFunc("GET /api/admin/session", s.handleAdminSession)
	perSource := backend.PerSourceJob(backend.DefaultPerSource)
	factCheck := backend.FactCheckJob(backend.DefaultFactCheck)
	s.mux.Handle("POST /api/admin/scrape-per-source", s.proxy.AdminPost(perSource.Name, perSource.Path))
	s.mux.Handle("POST /api/admin/scrape-with-fact-check", s.proxy.AdminPost(factCheck.Name, factCheck.Path))

	// backend proxy
	s.mux.Handle("GET /api/articles", s.proxy.Forward(proxy.Path("/api/articles")))
	s.mux.Handle("GET /api/articles/search", s.proxy.Forward(proxy.Path("/api/articles/search")))
	s.mux.Handle("GET /api/articles/{articleId}/similar", s.proxy.Forward(func(r *http.Request) string {
		return "/api/articles/" + url.PathEscape(r.PathValue("articleId")) + "/similar"
	}))
	s.mux.Handle("POST /api/url-orientations", s.proxy.Forward(proxy.Path("/api/url-orientations")))

	// browser performance samples
	s.mux.HandleFunc("POST /api/perf-metrics", s.handlePerfSample)
	s.mux.HandleFunc("GET /api/perf-metrics", s.handlePerfReport)
}

// Handler returns the mux wrapped in request id, access log and panic
// recovery middleware.
func (s *Server) Handler() http.Handler {
	return withRequestID(withAccessLog(withRecover(s.mux)))
}

// Watch reloads templates from the template directory when they change. It
// returns when ctx ends. Only meaningful in dev mode.
func (s *Server) Watch(ctx context.Context) error {
	if !s.cfg.Server.Dev {
		return nil
	}
	return s.pages.watch(ctx, s.cfg.Server.TemplateDir)
}

// PurgeCaches drops cached similar-article and orientation lookups.
func (s *Server) PurgeCaches() {
	s.similar.Purge()
	s.orientations.Purge()
}
