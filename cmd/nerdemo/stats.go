package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nerdemo/internal/audit"
	"nerdemo/internal/config"
	"nerdemo/internal/stats"
)

type statsSource func() (stats.Stats, error)

func newStatsCmd(a *app) *cobra.Command {
	var (
		watch  bool
		recent bool
		export string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show annotation statistics from the running server or the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := func() (stats.Stats, error) { return getStats(a.cfg) }
			if watch {
				return watchStats(cmd.OutOrStdout(), src, recent, export)
			}
			return renderStatsTo(cmd.OutOrStdout(), src, recent, export)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh every 2 seconds")
	cmd.Flags().BoolVar(&recent, "recent", false, "show recent annotate calls")
	cmd.Flags().StringVar(&export, "export", "", "export format: json|csv")
	return cmd
}

func watchStats(w io.Writer, src statsSource, recent bool, export string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	if export == "" && isTerminal() {
		fmt.Fprint(w, "\033[?25l")
		defer fmt.Fprint(w, "\033[?25h")
	}
	return watchStatsLoop(w, src, recent, export, ticker.C, sigCh)
}

func watchStatsLoop(w io.Writer, src statsSource, recent bool, export string, ticks <-chan time.Time, stop <-chan os.Signal) error {
	for {
		var buf strings.Builder
		if err := renderStatsTo(&buf, src, recent, export); err != nil {
			return err
		}
		if export == "" && isTerminal() {
			fmt.Fprint(w, "\033[H\033[2J\033[3J")
		}
		fmt.Fprint(w, buf.String())
		select {
		case <-ticks:
		case <-stop:
			return nil
		}
	}
}

func renderStatsTo(w io.Writer, src statsSource, recent bool, export string) error {
	st, err := src()
	if err != nil {
		return err
	}
	switch strings.ToLower(export) {
	case "":
		if recent {
			printRecent(w, st)
			return nil
		}
		printSummary(w, st)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "csv":
		if !recent {
			return fmt.Errorf("csv export requires --recent")
		}
		return exportRecentCSV(w, st.Recent)
	default:
		return fmt.Errorf("unsupported export format %q", export)
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// getStats prefers the running server's view and falls back to reading the
// audit log directly.
func getStats(cfg config.Config) (stats.Stats, error) {
	if st, err := fetchServerStats(fmt.Sprintf("http://127.0.0.1:%d/api/stats", cfg.Server.Port)); err == nil {
		return st, nil
	}
	entries, err := audit.ParseFile(cfg.Audit.File)
	if err != nil {
		return stats.Stats{}, err
	}
	return stats.CollectFromEntries(entries, stats.Options{Now: time.Now().UTC(), Status: "stopped", Port: cfg.Server.Port}), nil
}

func fetchServerStats(url string) (stats.Stats, error) {
	client := &http.Client{Timeout: 700 * time.Millisecond}
	resp, err := client.Get(url)
	if err != nil {
		return stats.Stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats.Stats{}, fmt.Errorf("stats API status %d", resp.StatusCode)
	}
	var st stats.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return stats.Stats{}, err
	}
	return st, nil
}

func printSummary(w io.Writer, st stats.Stats) {
	fmt.Fprintln(w, "nerdemo Statistics")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Status:      %s\n", st.Status)
	fmt.Fprintf(w, "Uptime:      %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "Port:        %d\n", st.Port)
	fmt.Fprintf(w, "Requests:    %d (%d failed, %.1f/min last 5m)\n", st.Requests.Total, st.Requests.Failed, st.Requests.PerMinute)
	fmt.Fprintf(w, "Sessions:    %d web sessions\n", st.Requests.Sessions)
	fmt.Fprintf(w, "Latency:     avg %.1fms | max %.1fms\n", st.Latency.AvgMs, st.Latency.MaxMs)
	fmt.Fprintf(w, "Entities:    %d shown of %d predictions\n\n", st.Entities.Total, st.Entities.Predictions)

	tags := make([]string, 0, len(st.Entities.ByTag))
	for k := range st.Entities.ByTag {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Tag", "Count", ""})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for _, t := range tags {
		v := st.Entities.ByTag[t]
		table.Append([]string{t, strconv.Itoa(v), progress(v, st.Entities.Total)})
	}
	table.Render()

	if len(st.Sources) > 0 {
		fmt.Fprintln(w, "\nSources")
		fmt.Fprintln(w, strings.Repeat("-", 40))
		for _, s := range st.Sources {
			fmt.Fprintf(w, "%-24s %d\n", s.Source, s.Requests)
		}
	}
}

func printRecent(w io.Writer, st stats.Stats) {
	fmt.Fprintf(w, "Recent annotate calls (last %d)\n", len(st.Recent))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Source", "Bytes", "Entities", "Tags", "Latency", "Error"})
	table.SetAutoFormatHeaders(false)
	for _, r := range st.Recent {
		tm := r.Timestamp
		if ts, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
			tm = ts.Format("15:04:05")
		}
		table.Append([]string{tm, r.Source, strconv.Itoa(r.TextBytes), strconv.Itoa(r.Emitted), tagLabel(r.Tags), fmt.Sprintf("%.1fms", r.LatencyMs), r.Error})
	}
	table.Render()
	fmt.Fprintf(w, "Showing %d of %d total requests\n", len(st.Recent), st.Requests.Total)
}

func progress(v, total int) string {
	if total <= 0 {
		return ""
	}
	p := int(float64(v) / float64(total) * 20)
	if p > 20 {
		p = 20
	}
	return strings.Repeat("█", p) + strings.Repeat("░", 20-p)
}

func tagLabel(tags map[string]int) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(tags))
	for t, c := range tags {
		parts = append(parts, fmt.Sprintf("%d %s", c, t))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func exportRecentCSV(w io.Writer, rows []stats.RecentRequest) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"timestamp", "source", "text_bytes", "entities", "tags", "latency_ms", "error"}); err != nil {
		return err
	}
	for _, r := range rows {
		tags := make([]string, 0, len(r.Tags))
		for t := range r.Tags {
			tags = append(tags, t)
		}
		sort.Strings(tags)
		if err := cw.Write([]string{
			r.Timestamp,
			r.Source,
			strconv.Itoa(r.TextBytes),
			strconv.Itoa(r.Emitted),
			strings.Join(tags, "|"),
			fmt.Sprintf("%.3f", r.LatencyMs),
			r.Error,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
