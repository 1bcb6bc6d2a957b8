package site

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/newsroom/internal/article"
	"github.com/ehrlich-b/newsroom/internal/config"
	"github.com/ehrlich-b/newsroom/internal/logger"
)

//go:embed templates
var embeddedTemplates embed.FS

//go:embed static
var staticFS embed.FS

const placeholderImage = "/static/placeholder.svg"

// pages rendered inside base.html; fragment.html renders alone
var pageNames = []string{"home", "category", "article", "search", "admin", "notfound"}

var tmplFuncs = template.FuncMap{
	"longDate":  article.FormatLongDate,
	"shortDate": article.FormatShortDate,
	"dateTime":  article.FormatDateTime,
	"headline":  article.Headline,
	"domain":    article.Domain,
	"plural":    article.PluralArticles,
	"excerpt":   article.Excerpt,
	"plain":     article.PlainText,
	"add":       func(a, b int) int { return a + b },
	"image": func(src string) string {
		if src == "" {
			return placeholderImage
		}
		return src
	},
	"domains": func(urls []string) []string {
		var out []string
		for _, g := range article.GroupSources(urls) {
			out = append(out, g.Domain)
		}
		return out
	},
	"verdict":  func(f *article.FactCheckResults) string { return f.Verdict() },
	"verified": func(f *article.FactCheckResults) bool { return f.Verified() },
	"badgeAlt": func(f *article.FactCheckResults) string {
		if f.Verified() {
			return "Overené fakty"
		}
		return "Neoverené fakty"
	},
	"badgeTitle": func(f *article.FactCheckResults) string {
		if !f.Checked() {
			return "Článok nebol overený"
		}
		if f.Status != "" {
			return f.Status
		}
		if f.Verified() {
			return "Overené fakty"
		}
		return "Neoverené fakty"
	},
	"paragraphs": article.Paragraphs,
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// templates holds the parsed page sets. In dev mode they are re-parsed from
// disk when a file changes.
type templates struct {
	fsys fs.FS

	mu   sync.RWMutex
	sets map[string]*template.Template
}

func templateFS(cfg *config.Config) fs.FS {
	if cfg.Server.Dev && cfg.Server.TemplateDir != "" {
		return os.DirFS(cfg.Server.TemplateDir)
	}
	sub, _ := fs.Sub(embeddedTemplates, "templates")
	return sub
}

func loadTemplates(fsys fs.FS) (*templates, error) {
	t := &templates{fsys: fsys}
	if err := t.parse(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *templates) parse() error {
	sets := make(map[string]*template.Template, len(pageNames)+1)
	for _, name := range pageNames {
		set, err := template.New("base.html").Funcs(tmplFuncs).ParseFS(t.fsys, "base.html", "partials.html", name+".html")
		if err != nil {
			return fmt.Errorf("parse %s template: %w", name, err)
		}
		sets[name] = set
	}
	frag, err := template.New("fragment.html").Funcs(tmplFuncs).ParseFS(t.fsys, "partials.html", "fragment.html")
	if err != nil {
		return fmt.Errorf("parse fragment template: %w", err)
	}
	sets["fragment"] = frag

	t.mu.Lock()
	t.sets = sets
	t.mu.Unlock()
	return nil
}

// render executes a page set into a buffer first so template errors never
// produce half-written pages.
func (t *templates) render(w http.ResponseWriter, status int, page, entry string, data any) {
	t.mu.RLock()
	set := t.sets[page]
	t.mu.RUnlock()
	if set == nil {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, entry, data); err != nil {
		logger.Error("render failed", "page", page, "err", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (t *templates) watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("template watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching templates", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".html") || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			if err := t.parse(); err != nil {
				logger.Warn("template reload failed, keeping previous", "err", err)
				continue
			}
			logger.Info("templates reloaded", "file", ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("template watcher error", "err", err)
		}
	}
}
