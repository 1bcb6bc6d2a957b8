// Package article holds the article model served by the content backend and
// the display helpers the site templates use.
package article

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Fact-check statuses written by the backend.
const (
	StatusVerified = "Overene fakty"
	StatusPartial  = "Ciastocne overene fakty"
)

type FactCheckItem struct {
	Fact        string `json:"fact"`
	SourceURL   string `json:"source_url,omitempty"`
	SourceTitle string `json:"source_title,omitempty"`
	Status      string `json:"status,omitempty"` // "found", "not_found"
}

type FactCheckResults struct {
	Status    string          `json:"status,omitempty"`
	Facts     []FactCheckItem `json:"facts,omitempty"`
	CheckedAt string          `json:"checked_at,omitempty"`
	Model     string          `json:"model,omitempty"`
}

type SummaryAnnotations struct {
	Text        string           `json:"text,omitempty"`
	Annotations []map[string]any `json:"annotations,omitempty"`
}

// Article is a backend-produced content record.
type Article struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Intro       string              `json:"intro"`
	Summary     string              `json:"summary"`
	Content     string              `json:"content"`
	URLs        []string            `json:"url"`
	TopImage    string              `json:"top_image"`
	Category    string              `json:"category"`
	Tags        []string            `json:"tags"`
	ScrapedAt   time.Time           `json:"scraped_at"`
	Slug        string              `json:"slug"`
	FactCheck   *FactCheckResults   `json:"fact_check_results,omitempty"`
	Annotations *SummaryAnnotations `json:"summary_annotations,omitempty"`
}

// Orientation is the political leaning the backend assigns to a source URL.
type Orientation struct {
	Orientation string  `json:"orientation"` // left, right, neutral
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// Label returns the Slovak display label.
func (o Orientation) Label() string {
	switch o.Orientation {
	case "left":
		return "Ľavicové"
	case "right":
		return "Pravicové"
	case "neutral":
		return "Neutrálne"
	}
	return o.Orientation
}

// Percent returns the confidence as a 0-100 value.
func (o Orientation) Percent() string {
	return strconv.FormatFloat(o.Confidence*100, 'f', 1, 64)
}

// Verdict classifies the fact-check status: verified, partial or unverified.
func (f *FactCheckResults) Verdict() string {
	if f == nil {
		return "unverified"
	}
	switch f.Status {
	case StatusVerified:
		return "verified"
	case StatusPartial:
		return "partial"
	}
	return "unverified"
}

// Verified reports whether every extracted fact was confirmed.
func (f *FactCheckResults) Verified() bool {
	return f != nil && f.Status == StatusVerified
}

// Checked reports whether the backend ran a fact check at all.
func (f *FactCheckResults) Checked() bool {
	return f != nil && f.CheckedAt != ""
}

// ShowFactCheck reports whether the article page renders a fact-check section.
func (a Article) ShowFactCheck() bool {
	return a.FactCheck != nil && (a.FactCheck.Status != "" || len(a.FactCheck.Facts) > 0)
}

// Kind selects the defaults Decode applies. The backend returns slightly
// different shapes from the list, similar and details endpoints.
type Kind int

const (
	KindList Kind = iota
	KindSimilar
	KindDetail
)

// DecodeOptions controls defaults for a single record.
type DecodeOptions struct {
	Kind  Kind
	Index int       // position in the response, used by KindSimilar defaults
	Slug  string    // requested slug, used by KindDetail
	Now   time.Time // fallback scrape time
}

// Decode converts one backend record into an Article. The backend is lenient
// about shapes: url and tags may be a string or a list, and the fact-check
// blobs may arrive as objects or JSON-encoded strings.
func Decode(raw json.RawMessage, opts DecodeOptions) (Article, error) {
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Article{}, fmt.Errorf("decode article: %w", err)
	}
	if rec == nil {
		return Article{}, fmt.Errorf("decode article: not an object")
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	a := Article{
		ID:       flexString(rec["id"]),
		Title:    flexString(rec["title"]),
		Intro:    flexString(rec["intro"]),
		Summary:  flexString(rec["summary"]),
		Content:  flexString(rec["content"]),
		TopImage: flexString(rec["top_image"]),
		Category: flexString(rec["category"]),
		URLs:     flexList(rec["url"]),
		Tags:     flexList(rec["tags"]),
	}

	titleSeed := a.Title
	switch opts.Kind {
	case KindSimilar:
		if a.ID == "" {
			a.ID = fmt.Sprintf("similar-%d", opts.Index)
		}
		if titleSeed == "" {
			titleSeed = fmt.Sprintf("untitled-%d", opts.Index)
		}
		a.Content = a.Summary
	case KindDetail:
		a.Content = a.Summary
	default:
		if a.Content == "" {
			a.Content = a.Summary
		}
	}
	if titleSeed == "" {
		titleSeed = "untitled"
	}
	if opts.Kind == KindDetail && opts.Slug != "" {
		a.Slug = opts.Slug
	} else {
		a.Slug = Slug(titleSeed)
	}
	if a.Title == "" {
		a.Title = "Untitled"
	}
	if a.Category == "" {
		a.Category = "uncategorized"
	}

	a.ScrapedAt = parseTime(flexString(rec["scraped_at"]))
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = opts.Now
	}

	a.FactCheck = maybeJSON[FactCheckResults](rec["fact_check_results"])
	a.Annotations = maybeJSON[SummaryAnnotations](rec["summary_annotations"])
	return a, nil
}

// DecodeList decodes a JSON array of backend records.
func DecodeList(raw []byte, kind Kind) ([]Article, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("expected article array: %w", err)
	}
	now := time.Now()
	out := make([]Article, 0, len(items))
	for i, item := range items {
		a, err := Decode(item, DecodeOptions{Kind: kind, Index: i, Now: now})
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// flexString reads a JSON string, or the literal text of a number or bool.
func flexString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// flexList reads a list of strings or a single string. Empty entries are dropped.
func flexList(raw json.RawMessage) []string {
	if isNull(raw) {
		return []string{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := flexString(raw); s != "" {
			return []string{s}
		}
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := flexString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// maybeJSON decodes an object or a JSON-encoded string holding an object.
// Anything unparsable yields nil.
func maybeJSON[T any](raw json.RawMessage) *T {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	http.TimeFormat,
	time.RFC1123Z,
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
