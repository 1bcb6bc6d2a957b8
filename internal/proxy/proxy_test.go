package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/newsroom/internal/backend"
	"github.com/ehrlich-b/newsroom/internal/logger"
)

func init() { logger.Discard() }

type fakeAuth bool

func (f fakeAuth) Authenticated(*http.Request) bool { return bool(f) }

func testProxy(t *testing.T, h http.HandlerFunc, mod func(*Options)) *Proxy {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts := Options{
		BaseURL:      srv.URL + "/",
		Timeout:      2 * time.Second,
		AdminTimeout: 2 * time.Second,
		Token:        "tok",
		Sessions:     fakeAuth(true),
	}
	if mod != nil {
		mod(&opts)
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("new proxy: %v", err)
	}
	return p
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not a JSON object: %q", rec.Body.String())
	}
	return m
}

func TestForwardNotConfigured(t *testing.T) {
	p, err := New(Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.Forward(Path("/api/articles")).ServeHTTP(rec, httptest.NewRequest("GET", "/api/articles", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(decode(t, rec)["error"].(string), "BACKEND_API_URL") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestForwardGetStripsCredentials(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/articles/search" || r.URL.Query().Get("q") != "voľby" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		for _, h := range []string{"Cookie", "Authorization", "X-Processing-Token", "Content-Type"} {
			if r.Header.Get(h) != "" {
				t.Errorf("header %s leaked: %q", h, r.Header.Get(h))
			}
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Set-Cookie", "backend=1")
		w.Write([]byte(`[{"id":1}]`))
	}, nil)

	req := httptest.NewRequest("GET", "/api/articles/search?q="+url.QueryEscape("voľby"), nil)
	req.Header.Set("Cookie", "processing_admin_session=x")
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	p.Forward(Path("/api/articles/search")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != `[{"id":1}]` {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Error("backend cookies must not reach the browser")
	}
}

func TestForwardPostBody(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("method = %s content-type = %q", r.Method, r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}, nil)

	req := httptest.NewRequest("POST", "/api/url-orientations", strings.NewReader(`{"urls":["https://a"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	p.Forward(Path("/api/url-orientations")).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || rec.Body.String() != `{"urls":["https://a"]}` {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}
}

func TestForwardEmptyBodies(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			t.Errorf("empty body should not be sent, length %d", r.ContentLength)
		}
		w.WriteHeader(http.StatusAccepted)
	}, nil)
	rec := httptest.NewRecorder()
	p.Forward(Path("/api/url-orientations")).ServeHTTP(rec, httptest.NewRequest("POST", "/x", strings.NewReader("")))
	if rec.Code != http.StatusAccepted || rec.Body.String() != "{}" {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}
}

func TestForwardInvalidJSON(t *testing.T) {
	html := "<html>" + strings.Repeat("č", 600) + "</html>"
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(html))
	}, nil)
	rec := httptest.NewRecorder()
	p.Forward(Path("/api/articles")).ServeHTTP(rec, httptest.NewRequest("GET", "/api/articles", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want backend status kept", rec.Code)
	}
	m := decode(t, rec)
	if m["error"] != "Invalid JSON response from backend." {
		t.Errorf("error = %v", m["error"])
	}
	if raw := m["raw"].(string); len([]rune(raw)) != 500 || !strings.HasPrefix(raw, "<html>č") {
		t.Errorf("raw preview has %d runes", len([]rune(raw)))
	}
}

func TestForwardTimeout(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	rec := httptest.NewRecorder()
	p.Forward(Path("/api/articles")).ServeHTTP(rec, httptest.NewRequest("GET", "/api/articles", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode(t, rec)
	if m["error"] != "Backend request timed out." || m["details"] != "No response within 50ms." {
		t.Errorf("body = %v", m)
	}
}

func TestForwardUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	p, err := New(Options{BaseURL: base, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	p.Forward(Path("/api/articles")).ServeHTTP(rec, httptest.NewRequest("GET", "/api/articles", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if m := decode(t, rec); m["error"] != "Failed to contact backend." || m["details"] == "" {
		t.Errorf("body = %v", m)
	}
}

func TestForwardEscapedPath(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/articles/a%2Fb/similar" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`[]`))
	}, nil)
	mux := http.NewServeMux()
	mux.Handle("GET /api/articles/{articleId}/similar", p.Forward(func(r *http.Request) string {
		return "/api/articles/" + url.PathEscape(r.PathValue("articleId")) + "/similar"
	}))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/articles/a%2Fb/similar", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestAdminPostRequiresSession(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unauthenticated request reached the backend")
	}, func(o *Options) { o.Sessions = fakeAuth(false) })
	rec := httptest.NewRecorder()
	p.AdminPost("scrape-per-source", backend.PerSourcePath).ServeHTTP(rec, httptest.NewRequest("POST", "/api/admin/scrape-per-source", nil))
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["error"] != "Unauthorized" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestAdminPostRequiresToken(t *testing.T) {
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request without token reached the backend")
	}, func(o *Options) { o.Token = "" })
	rec := httptest.NewRecorder()
	p.AdminPost("scrape-per-source", backend.PerSourcePath).ServeHTTP(rec, httptest.NewRequest("POST", "/x", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAdminPostForwardsObjectWithToken(t *testing.T) {
	var jobs []JobResult
	var got []string
	p := testProxy(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != backend.FactCheckPath || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(backend.TokenHeader) != "tok" || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("headers = %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		got = append(got, string(body))
		w.Write([]byte(`{"started":true}`))
	}, func(o *Options) {
		o.OnJob = func(j JobResult) { jobs = append(jobs, j) }
	})
	h := p.AdminPost("scrape-with-fact-check", backend.FactCheckPath)

	for _, body := range []string{`{"max_total_articles":3}`, `[1,2]`, `"x"`, `not json`, ``} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/admin/scrape-with-fact-check", strings.NewReader(body)))
		if rec.Code != http.StatusOK || decode(t, rec)["started"] != true {
			t.Errorf("body %q: status = %d resp = %s", body, rec.Code, rec.Body)
		}
	}
	want := []string{`{"max_total_articles":3}`, `{}`, `{}`, `{}`, `{}`}
	if len(got) != len(want) {
		t.Fatalf("got %d backend calls", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("payload %d = %s, want %s", i, got[i], want[i])
		}
	}
	if len(jobs) != 5 || jobs[0].Job != "scrape-with-fact-check" || jobs[0].Status != http.StatusOK {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestNormalizeBody(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "{}"},
		{"  \n", "{}"},
		{`{"a":1}`, `{"a":1}`},
		{`[]`, `[]`},
		{`null`, `null`},
	}
	for _, tt := range tests {
		if got := string(NormalizeBody([]byte(tt.in))); got != tt.want {
			t.Errorf("NormalizeBody(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	var m map[string]string
	if err := json.Unmarshal(NormalizeBody([]byte("oops")), &m); err != nil || m["raw"] != "oops" {
		t.Errorf("invalid body = %v %v", m, err)
	}
}
