// Package proxy forwards browser API calls to the content backend, keeping
// browser credentials away from it and always answering with JSON.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/ehrlich-b/newsroom/internal/backend"
	"github.com/ehrlich-b/newsroom/internal/logger"
)

const (
	maxRequestBody  = 1 << 20
	maxResponseBody = 8 << 20
	rawPreview      = 500
)

const (
	msgNotConfigured = "Backend API URL is not configured. Set BACKEND_API_URL (or PUBLIC_API_URL)."
	msgTokenMissing  = "PROCESSING_ADMIN_TOKEN is not configured on frontend. Admin processing proxy is disabled."
)

// Authenticator reports whether a request carries a valid admin session.
type Authenticator interface {
	Authenticated(r *http.Request) bool
}

// JobResult describes a finished admin processing request.
type JobResult struct {
	Job    string
	Status int
	Remote *http.Request
}

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	AdminTimeout time.Duration
	Token        string
	Sessions     Authenticator
	Transport    http.RoundTripper
	// OnJob runs after every relayed admin processing request.
	OnJob func(JobResult)
}

type Proxy struct {
	base         *url.URL
	timeout      time.Duration
	adminTimeout time.Duration
	token        string
	sessions     Authenticator
	transport    http.RoundTripper
	onJob        func(JobResult)
}

func New(opts Options) (*Proxy, error) {
	p := &Proxy{
		timeout:      opts.Timeout,
		adminTimeout: opts.AdminTimeout,
		token:        opts.Token,
		sessions:     opts.Sessions,
		transport:    opts.Transport,
		onJob:        opts.OnJob,
	}
	if p.transport == nil {
		p.transport = http.DefaultTransport
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse backend url: %w", err)
		}
		p.base = u
	}
	return p, nil
}

// Path targets a fixed backend path.
func Path(p string) func(*http.Request) string {
	return func(*http.Request) string { return p }
}

// Forward relays the request to the backend path chosen by target, with the
// incoming query string. Only Accept and Content-Type reach the backend.
func (p *Proxy) Forward(target func(*http.Request) string) http.Handler {
	rp := p.reverseProxy(p.timeout, func(pr *httputil.ProxyRequest) {
		pr.Out.URL = p.targetURL(target(pr.In), pr.In.URL.RawQuery)
		pr.Out.Host = p.base.Host
		pr.Out.Header = http.Header{"Accept": {"application/json"}}
		if ct := pr.In.Header.Get("Content-Type"); ct != "" {
			pr.Out.Header.Set("Content-Type", ct)
		}
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.base == nil {
			writeError(w, http.StatusServiceUnavailable, msgNotConfigured, "")
			return
		}
		if err := bufferBody(r); err != nil {
			writeError(w, http.StatusBadRequest, "Could not read request body.", err.Error())
			return
		}
		p.serve(w, r, rp, p.timeout)
	})
}

// AdminPost relays a processing request for job to the backend path with
// the processing token. The caller must hold an admin session.
func (p *Proxy) AdminPost(job, path string) http.Handler {
	rp := p.reverseProxy(p.adminTimeout, func(pr *httputil.ProxyRequest) {
		pr.Out.URL = p.targetURL(path, "")
		pr.Out.Host = p.base.Host
		pr.Out.Method = http.MethodPost
		pr.Out.Header = http.Header{
			"Accept":            {"application/json"},
			"Content-Type":      {"application/json"},
			backend.TokenHeader: {p.token},
		}
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.sessions == nil || !p.sessions.Authenticated(r) {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		if p.token == "" {
			writeError(w, http.StatusServiceUnavailable, msgTokenMissing, "")
			return
		}
		if p.base == nil {
			writeError(w, http.StatusServiceUnavailable, msgNotConfigured, "")
			return
		}

		payload := objectPayload(http.MaxBytesReader(w, r.Body, maxRequestBody))
		r.Body = io.NopCloser(bytes.NewReader(payload))
		r.ContentLength = int64(len(payload))

		sw := &statusWriter{ResponseWriter: w}
		p.serve(sw, r, rp, p.adminTimeout)
		logger.Info("admin job relayed", "job", job, "status", sw.status)
		if p.onJob != nil {
			p.onJob(JobResult{Job: job, Status: sw.status, Remote: r})
		}
	})
}

func (p *Proxy) serve(w http.ResponseWriter, r *http.Request, rp *httputil.ReverseProxy, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	rp.ServeHTTP(w, r.WithContext(ctx))
}

// targetURL joins the backend base with an already escaped path.
func (p *Proxy) targetURL(path, rawQuery string) *url.URL {
	u, err := url.Parse(p.base.String() + path)
	if err != nil {
		u = p.base.JoinPath(path)
	}
	u.RawQuery = rawQuery
	return u
}

func (p *Proxy) reverseProxy(timeout time.Duration, rewrite func(*httputil.ProxyRequest)) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite:        rewrite,
		Transport:      p.transport,
		ModifyResponse: normalizeResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				logger.Warn("backend proxy timed out", "path", r.URL.Path, "timeout", timeout)
				writeError(w, http.StatusGatewayTimeout, "Backend request timed out.",
					fmt.Sprintf("No response within %dms.", timeout.Milliseconds()))
				return
			}
			logger.Warn("backend proxy failed", "path", r.URL.Path, "err", err)
			writeError(w, http.StatusBadGateway, "Failed to contact backend.", err.Error())
		},
	}
}

// normalizeResponse rewrites the backend body into JSON: empty becomes {},
// invalid JSON becomes an error object with a preview of the raw text. The
// status code is kept.
func normalizeResponse(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}
	body := NormalizeBody(data)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header = http.Header{
		"Content-Type":   {"application/json"},
		"Content-Length": {fmt.Sprint(len(body))},
	}
	resp.TransferEncoding = nil
	resp.Trailer = nil
	return nil
}

// NormalizeBody returns data when it is valid JSON, {} when it is empty and
// an error object otherwise.
func NormalizeBody(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []byte("{}")
	}
	if json.Valid(trimmed) {
		return data
	}
	raw := []rune(string(data))
	if len(raw) > rawPreview {
		raw = raw[:rawPreview]
	}
	out, _ := json.Marshal(map[string]string{
		"error": "Invalid JSON response from backend.",
		"raw":   string(raw),
	})
	return out
}

// bufferBody reads the request body so empty bodies are not sent and GET or
// HEAD never carry one.
func bufferBody(r *http.Request) error {
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Body == nil {
		r.Body = http.NoBody
		r.ContentLength = 0
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	r.Body.Close()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		r.Body = http.NoBody
		r.ContentLength = 0
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))
	return nil
}

// objectPayload decodes a JSON object from rd. Anything else becomes {}.
func objectPayload(rd io.Reader) []byte {
	var obj map[string]json.RawMessage
	if err := json.NewDecoder(rd).Decode(&obj); err != nil || obj == nil {
		return []byte("{}")
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return []byte("{}")
	}
	return out
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, details string) {
	body := map[string]string{"error": msg}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, code, body)
}
