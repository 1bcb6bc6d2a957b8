package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// PerfSample is one browser performance measurement: a web vital or a
// long-task summary. Extra fields sent by the browser are kept in Raw.
// Value and TBTEquivalent are kept undecoded; only JSON numbers count
// toward the summary.
type PerfSample struct {
	Type          string          `json:"type"`
	Name          string          `json:"name,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	TBTEquivalent json.RawMessage `json:"tbtEquivalent,omitempty"`
	Path          string          `json:"path,omitempty"`
	Timestamp     string          `json:"timestamp,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// PerfStat is the running average for one path and metric.
type PerfStat struct {
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// PerfReport is the stored sample window plus its summary.
type PerfReport struct {
	UpdatedAt time.Time           `json:"updatedAt"`
	Samples   []json.RawMessage   `json:"samples"`
	Summary   map[string]PerfStat `json:"summary"`
}

var ErrInvalidSample = errors.New("perf sample must be a JSON object")

// ParsePerfSample decodes a sample posted by the browser.
func ParsePerfSample(raw []byte) (PerfSample, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return PerfSample{}, ErrInvalidSample
	}
	var p PerfSample
	if err := json.Unmarshal(raw, &p); err != nil {
		return PerfSample{}, fmt.Errorf("decode perf sample: %w", err)
	}
	p.Raw = json.RawMessage(raw)
	return p, nil
}

// SummaryKey buckets a sample by page path and metric name.
func (p PerfSample) SummaryKey() string {
	path := p.Path
	if path == "" {
		path = "/"
	}
	name := p.Name
	if name == "" {
		name = p.Type
	}
	return path + ":" + name
}

// metric returns the value to average: value, else the long-task total.
func (p PerfSample) metric() (float64, bool) {
	if v, ok := number(p.Value); ok {
		return v, true
	}
	return number(p.TBTEquivalent)
}

func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// AddPerfSample stores a sample and trims the table to the newest keep rows.
func (s *Store) AddPerfSample(p PerfSample, keep int) error {
	payload := p.Raw
	if len(payload) == 0 {
		var err error
		if payload, err = json.Marshal(p); err != nil {
			return fmt.Errorf("encode perf sample: %w", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin perf tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO perf_samples (payload, received_at) VALUES (?, ?)",
		string(payload), s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert perf sample: %w", err)
	}
	if keep > 0 {
		if _, err := tx.Exec(
			`DELETE FROM perf_samples WHERE id NOT IN (
				SELECT id FROM perf_samples ORDER BY id DESC LIMIT ?
			)`, keep,
		); err != nil {
			return fmt.Errorf("trim perf samples: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit perf sample: %w", err)
	}
	return nil
}

// PerfReport returns the stored samples, oldest first, with per-key averages
// rounded to two decimals.
func (s *Store) PerfReport() (*PerfReport, error) {
	rows, err := s.db.Query("SELECT payload, received_at FROM perf_samples ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query perf samples: %w", err)
	}
	defer rows.Close()

	report := &PerfReport{
		Samples: []json.RawMessage{},
		Summary: map[string]PerfStat{},
	}
	type bucket struct {
		sum   float64
		count int
	}
	buckets := map[string]*bucket{}
	for rows.Next() {
		var payload string
		var receivedMs int64
		if err := rows.Scan(&payload, &receivedMs); err != nil {
			return nil, fmt.Errorf("scan perf sample: %w", err)
		}
		if received := time.UnixMilli(receivedMs).UTC(); received.After(report.UpdatedAt) {
			report.UpdatedAt = received
		}
		report.Samples = append(report.Samples, json.RawMessage(payload))

		var p PerfSample
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			continue
		}
		v, ok := p.metric()
		if !ok {
			continue
		}
		key := p.SummaryKey()
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += v
		b.count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if report.UpdatedAt.IsZero() {
		report.UpdatedAt = s.now().UTC()
	}
	for k, b := range buckets {
		report.Summary[k] = PerfStat{Avg: round2(b.sum / float64(b.count)), Count: b.count}
	}
	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
