package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"nerdemo/internal/audit"
)

type Stats struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Port          int             `json:"port"`
	Requests      RequestStats    `json:"requests"`
	Entities      EntityStats     `json:"entities"`
	Latency       LatencyStats    `json:"latency"`
	Sources       []SourceStats   `json:"sources"`
	Recent        []RecentRequest `json:"recent,omitempty"`
}

type RequestStats struct {
	Total       int     `json:"total"`
	Failed      int     `json:"failed"`
	Sessions    int     `json:"sessions"`
	PerMinute   float64 `json:"per_minute"`
	Last5Minute []int   `json:"last_5_minute"`
}

type EntityStats struct {
	Total       int            `json:"total"`
	Predictions int            `json:"predictions"`
	ByTag       map[string]int `json:"by_tag"`
}

type LatencyStats struct {
	AvgMs float64 `json:"avg_ms"`
	MaxMs float64 `json:"max_ms"`
}

type SourceStats struct {
	Source   string `json:"source"`
	Requests int    `json:"requests"`
}

type RecentRequest struct {
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	TextBytes int            `json:"text_bytes"`
	Emitted   int            `json:"emitted"`
	Tags      map[string]int `json:"tags"`
	LatencyMs float64        `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
}

type Options struct {
	Now     time.Time
	Status  string
	Uptime  time.Duration
	Port    int
	TopN    int
	RecentN int
}

func CollectFromEntries(entries []audit.Entry, opts Options) Stats {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = 5
	}
	recentN := opts.RecentN
	if recentN <= 0 {
		recentN = 20
	}

	out := Stats{
		Status:        opts.Status,
		UptimeSeconds: int64(opts.Uptime.Seconds()),
		Port:          opts.Port,
		Entities:      EntityStats{ByTag: map[string]int{}},
		Requests:      RequestStats{Last5Minute: make([]int, 5)},
	}
	if out.Status == "" {
		out.Status = "stopped"
	}

	sources := map[string]int{}
	out.Requests.Sessions = len(lo.Uniq(lo.FilterMap(entries, func(e audit.Entry, _ int) (string, bool) {
		return e.Session, e.Session != ""
	})))
	var latencySum float64
	var latencyCount int
	recent := make([]RecentRequest, 0, len(entries))

	for _, e := range entries {
		out.Requests.Total++
		if e.Error != "" {
			out.Requests.Failed++
		}
		if src := strings.TrimSpace(e.Source); src != "" {
			sources[src]++
		}

		out.Entities.Predictions += e.Predictions
		out.Entities.Total += e.Emitted
		for tag, n := range e.Tags {
			out.Entities.ByTag[tag] += n
		}

		if !opts.Now.IsZero() && e.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				delta := now.Sub(ts)
				if delta >= 0 && delta < 5*time.Minute {
					idx := int(delta / time.Minute)
					out.Requests.Last5Minute[4-idx]++
				}
			}
		}

		if e.LatencyMs > 0 {
			latencySum += e.LatencyMs
			latencyCount++
			if e.LatencyMs > out.Latency.MaxMs {
				out.Latency.MaxMs = e.LatencyMs
			}
		}

		recent = append(recent, RecentRequest{
			Timestamp: e.Timestamp,
			Source:    e.Source,
			TextBytes: e.TextBytes,
			Emitted:   e.Emitted,
			Tags:      e.Tags,
			LatencyMs: e.LatencyMs,
			Error:     e.Error,
		})
	}

	sum5 := 0
	for _, n := range out.Requests.Last5Minute {
		sum5 += n
	}
	out.Requests.PerMinute = float64(sum5) / 5

	if latencyCount > 0 {
		out.Latency.AvgMs = latencySum / float64(latencyCount)
	}

	for s, c := range sources {
		out.Sources = append(out.Sources, SourceStats{Source: s, Requests: c})
	}
	sort.Slice(out.Sources, func(i, j int) bool {
		if out.Sources[i].Requests == out.Sources[j].Requests {
			return out.Sources[i].Source < out.Sources[j].Source
		}
		return out.Sources[i].Requests > out.Sources[j].Requests
	})
	if len(out.Sources) > topN {
		out.Sources = out.Sources[:topN]
	}

	for i := len(recent) - 1; i >= 0 && len(out.Recent) < recentN; i-- {
		out.Recent = append(out.Recent, recent[i])
	}
	return out
}
