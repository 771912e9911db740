package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nerdemo/internal/stats"
)

func fixedStats() stats.Stats {
	return stats.Stats{
		Status:   "running",
		Port:     8501,
		Requests: stats.RequestStats{Total: 3, Failed: 1},
		Entities: stats.EntityStats{Total: 4, Predictions: 9, ByTag: map[string]int{"B-ORG": 3, "I-PER": 1}},
		Sources:  []stats.SourceStats{{Source: "web", Requests: 3}},
		Recent: []stats.RecentRequest{{
			Timestamp: "2024-01-01T00:00:00Z", Source: "web", TextBytes: 30, Emitted: 2,
			Tags: map[string]int{"B-ORG": 1, "I-PER": 1}, LatencyMs: 12.5,
		}},
	}
}

func staticSource(st stats.Stats) statsSource {
	return func() (stats.Stats, error) { return st, nil }
}

func TestExportRecentCSV(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, exportRecentCSV(&out, fixedStats().Recent))
	require.Contains(t, out.String(), "timestamp,source,text_bytes,entities,tags,latency_ms,error")
	require.Contains(t, out.String(), "B-ORG|I-PER")
}

func TestRenderStatsFormats(t *testing.T) {
	src := staticSource(fixedStats())

	var out bytes.Buffer
	require.NoError(t, renderStatsTo(&out, src, false, ""))
	require.Contains(t, out.String(), "Requests:    3 (1 failed")
	require.Contains(t, out.String(), "B-ORG")

	out.Reset()
	require.NoError(t, renderStatsTo(&out, src, true, ""))
	require.Contains(t, out.String(), "1 B-ORG, 1 I-PER")

	out.Reset()
	require.NoError(t, renderStatsTo(&out, src, false, "json"))
	var decoded stats.Stats
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, 4, decoded.Entities.Total)

	require.ErrorContains(t, renderStatsTo(&out, src, false, "csv"), "requires --recent")
	require.ErrorContains(t, renderStatsTo(&out, src, false, "xml"), "unsupported")

	boom := errors.New("boom")
	require.ErrorIs(t, renderStatsTo(&out, func() (stats.Stats, error) { return stats.Stats{}, boom }, false, ""), boom)
}

func TestWatchStatsLoopCancellation(t *testing.T) {
	ticks := make(chan time.Time, 1)
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM
	var out bytes.Buffer
	require.NoError(t, watchStatsLoop(&out, staticSource(fixedStats()), false, "", ticks, stop))
	require.Contains(t, out.String(), "nerdemo Statistics")
}

func TestFetchServerStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fixedStats())
	}))
	defer srv.Close()

	st, err := fetchServerStats(srv.URL)
	require.NoError(t, err)
	require.Equal(t, "running", st.Status)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	_, err = fetchServerStats(failing.URL)
	require.Error(t, err)
}
