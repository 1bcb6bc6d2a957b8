package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ehrlich-b/newsroom/internal/logger"
)

func init() { logger.Discard() }

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", 2*time.Second, 2)
	c.backoff = time.Millisecond
	return c
}

func TestArticlesPagination(t *testing.T) {
	var gotQuery string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/articles" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("accept = %q", r.Header.Get("Accept"))
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"id":"1","title":"Jeden"},{"id":"2","title":"Dva"}]`))
	})

	list, err := c.Articles(context.Background(), Page{Limit: 23})
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	if len(list) != 2 || list[1].Slug != "dva" {
		t.Fatalf("list = %+v", list)
	}
	if gotQuery != "limit=23" {
		t.Errorf("query = %q", gotQuery)
	}

	if _, err := c.Articles(context.Background(), Page{Limit: 22, Offset: 23}); err != nil {
		t.Fatalf("articles: %v", err)
	}
	if gotQuery != "limit=22&offset=23" {
		t.Errorf("query = %q", gotQuery)
	}

	if _, err := c.Articles(context.Background(), Page{Limit: 22, HasOffset: true}); err != nil {
		t.Fatalf("articles: %v", err)
	}
	if gotQuery != "limit=22&offset=0" {
		t.Errorf("query = %q, want explicit zero offset", gotQuery)
	}

	if _, err := c.Articles(context.Background(), Page{}); err != nil {
		t.Fatalf("articles: %v", err)
	}
	if gotQuery != "" {
		t.Errorf("query = %q, want none", gotQuery)
	}
}

func TestArticlesNotConfigured(t *testing.T) {
	c := New("", time.Second, 0)
	if c.Configured() {
		t.Fatal("empty base should not be configured")
	}
	_, err := c.Articles(context.Background(), Page{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestArticlesNonArray(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"boom"}`))
	})
	if _, err := c.Articles(context.Background(), Page{}); err == nil {
		t.Fatal("expected error for non-array response")
	}
}

func TestRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	})
	list, err := c.Articles(context.Background(), Page{})
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	if len(list) != 0 || calls.Load() != 3 {
		t.Errorf("list = %v calls = %d", list, calls.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := c.Articles(context.Background(), Page{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestArticleBySlugFromList(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/articles" {
			t.Errorf("unexpected request %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"1","title":"Prvý článok"}]`))
	})
	a, err := c.ArticleBySlug(context.Background(), "prvy-clanok")
	if err != nil {
		t.Fatalf("by slug: %v", err)
	}
	if a.ID != "1" {
		t.Errorf("id = %q", a.ID)
	}
}

func TestArticleBySlugDetailsFallback(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/articles":
			w.Write([]byte(`[]`))
		case "/api/articles/stary-clanok/details":
			w.Write([]byte(`{"id":"9","title":"Iný","summary":"zhrnutie"}`))
		default:
			http.NotFound(w, r)
		}
	})
	a, err := c.ArticleBySlug(context.Background(), "stary-clanok")
	if err != nil {
		t.Fatalf("by slug: %v", err)
	}
	if a.ID != "9" || a.Slug != "stary-clanok" || a.Content != "zhrnutie" {
		t.Errorf("article = %+v", a)
	}

	_, err = c.ArticleBySlug(context.Background(), "neexistuje")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearchShortQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("short query must not reach the backend")
	})
	res, err := c.Search(context.Background(), " a ")
	if err != nil || res != nil {
		t.Fatalf("res = %v err = %v", res, err)
	}
}

func TestSearch(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/articles/search" || r.URL.Query().Get("q") != "voľby 2026" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`[{"id":"1","title":"Voľby"}]`))
	})
	res, err := c.Search(context.Background(), "  voľby 2026 ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestSimilar(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/articles/a%2Fb/similar" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`[{"title":"Podobný"}]`))
	})
	res, err := c.Similar(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(res) != 1 || res[0].ID != "similar-0" {
		t.Errorf("res = %+v", res)
	}
}

func TestURLOrientations(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.URLs) != 2 {
			t.Errorf("urls = %v", body.URLs)
		}
		w.Write([]byte(`{
			"https://a": {"orientation": "left", "confidence": 0.7, "reasoning": "r"},
			"https://b": "broken"
		}`))
	})
	res, err := c.URLOrientations(context.Background(), []string{"https://a", "https://b"})
	if err != nil {
		t.Fatalf("orientations: %v", err)
	}
	if len(res) != 1 || res["https://a"].Orientation != "left" {
		t.Errorf("res = %+v", res)
	}

	empty, err := c.URLOrientations(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty = %v err = %v", empty, err)
	}
}

func TestTriggerSendsToken(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PerSourcePath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get(TokenHeader) != "tok" {
			t.Errorf("token header = %q", r.Header.Get(TokenHeader))
		}
		body, _ := io.ReadAll(r.Body)
		var p PerSourceParams
		if err := json.Unmarshal(body, &p); err != nil || p != DefaultPerSource {
			t.Errorf("payload = %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"started":true}`))
	})
	status, body, err := c.Trigger(context.Background(), PerSourceJob(DefaultPerSource), "tok")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if status != http.StatusAccepted || string(body) != `{"started":true}` {
		t.Errorf("status = %d body = %s", status, body)
	}
}
