// Command loadtest drives concurrent read traffic against a running
// Chronologicon server and reports latency percentiles per endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

// Target is one request shape in the rotation.
type Target struct {
	Name string
	Path string
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Targets     []Target
}

type endpointStats struct {
	latencies []time.Duration
	failures  int
}

// Stats collects results from all workers.
type Stats struct {
	mu        sync.Mutex
	requests  int
	failures  int
	codes     map[int]int
	endpoints map[string]*endpointStats
	elapsed   time.Duration
}

func NewStats(targets []Target) *Stats {
	s := &Stats{
		codes:     make(map[int]int),
		endpoints: make(map[string]*endpointStats, len(targets)),
	}
	for _, t := range targets {
		s.endpoints[t.Name] = &endpointStats{}
	}
	return s
}

// answered reports whether a response counts as served. Lookups of ids that
// do not exist legitimately return 404.
func answered(code int) bool {
	return code < 400 || code == http.StatusNotFound
}

// RecordRequest adds one result. A transport error has no status code and
// no latency sample.
func (s *Stats) RecordRequest(target string, latency time.Duration, code int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	ep := s.endpoints[target]
	if err != nil {
		s.failures++
		ep.failures++
		return
	}
	s.codes[code]++
	ep.latencies = append(ep.latencies, latency)
	if !answered(code) {
		s.failures++
		ep.failures++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "base URL of the Chronologicon API")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "how long to generate load")
	ids := flag.String("ids", "", "comma-separated event ids used for lookups, timelines and influence paths")
	window := flag.String("window", "2023-01-01T00:00:00Z,2023-12-31T23:59:59Z", "start,end of the temporal-gaps window")
	flag.Parse()

	targets, err := buildTargets(splitList(*ids), splitList(*window))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(2)
	}
	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: max(1, *concurrency),
		Duration:    *duration,
		Targets:     targets,
	}

	fmt.Printf("load testing %s with %d workers for %s across %d endpoints\n",
		cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Targets))
	stats := runLoadTest(cfg)
	if !printReport(os.Stdout, stats) {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildTargets(ids, window []string) ([]Target, error) {
	if len(window) != 2 {
		return nil, fmt.Errorf("-window needs exactly two dates, got %d", len(window))
	}
	gapQuery := url.Values{"startDate": {window[0]}, "endDate": {window[1]}}
	targets := []Target{
		{Name: "events", Path: "/api/events"},
		{Name: "search", Path: "/api/events/search?sortBy=start_date&limit=20"},
		{Name: "overlaps", Path: "/api/insights/overlapping-events"},
		{Name: "gaps", Path: "/api/insights/temporal-gaps?" + gapQuery.Encode()},
	}
	for i, id := range ids {
		esc := url.PathEscape(id)
		targets = append(targets,
			Target{Name: "event", Path: "/api/events/" + esc},
			Target{Name: "timeline", Path: "/api/timeline/" + esc},
		)
		if i+1 < len(ids) {
			q := url.Values{"from": {id}, "to": {ids[i+1]}}
			targets = append(targets, Target{Name: "influence", Path: "/api/insights/event-influence?" + q.Encode()})
		}
	}
	return targets, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats(cfg.Targets)
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.Concurrency,
		IdleConnTimeout:     30 * time.Second,
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Timeout: 10 * time.Second, Transport: transport}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	began := time.Now()
	var g errgroup.Group
	for w := range cfg.Concurrency {
		g.Go(func() error {
			// Workers start at different offsets so every endpoint is hit
			// from the first second.
			for i := w; ctx.Err() == nil; i++ {
				t := cfg.Targets[i%len(cfg.Targets)]
				latency, code, err := hit(ctx, client, cfg.BaseURL+t.Path)
				if ctx.Err() != nil {
					break
				}
				stats.RecordRequest(t.Name, latency, code, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	stats.elapsed = time.Since(began)
	return stats
}

func hit(ctx context.Context, client *http.Client, target string) (time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return time.Since(start), resp.StatusCode, nil
}

// printReport writes the summary to w and reports whether any request
// completed.
func printReport(w io.Writer, stats *Stats) bool {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	if stats.requests == 0 {
		fmt.Fprintln(w, "no requests completed; is the server running?")
		return false
	}
	secs := max(stats.elapsed.Seconds(), 1e-9)
	fmt.Fprintf(w, "\n%d requests, %d failed (%.2f%%), %.1f req/s\n\n",
		stats.requests, stats.failures, 100*float64(stats.failures)/float64(stats.requests),
		float64(stats.requests)/secs)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "endpoint\tcount\tfailed\tavg\tp50\tp95\tp99\tmax\t")
	for _, name := range slices.Sorted(maps.Keys(stats.endpoints)) {
		ep := stats.endpoints[name]
		lat := slices.Clone(ep.latencies)
		slices.Sort(lat)
		if len(lat) == 0 {
			fmt.Fprintf(tw, "%s\t0\t%d\t-\t-\t-\t-\t-\t\n", name, ep.failures)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n", name, len(lat), ep.failures,
			mean(lat), percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[len(lat)-1])
	}
	_ = tw.Flush()

	fmt.Fprint(w, "\nstatus codes:")
	for _, code := range slices.Sorted(maps.Keys(stats.codes)) {
		fmt.Fprintf(w, " %d=%d", code, stats.codes[code])
	}
	fmt.Fprintln(w)
	return true
}

func mean(latencies []time.Duration) time.Duration {
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	return sum / time.Duration(len(latencies))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
