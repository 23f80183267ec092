// Package report answers the questions asked by the MCP tools and the web
// API: the project usage table, the org usage chart and trace waterfalls.
// Usage results are memoized on the store generation and every input that
// shapes them.
package report

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tobert/tracestat/internal/memo"
	"github.com/tobert/tracestat/internal/storage"
	"github.com/tobert/tracestat/internal/tracetree"
	"github.com/tobert/tracestat/internal/usage"
	"github.com/tobert/tracestat/internal/waterfall"
)

// Options configures a Service.
type Options struct {
	Org         string // organization slug used in project links
	StatsPeriod string // default period, e.g. "14d"
	Verbose     bool

	// Now is the clock series windows end at. Defaults to time.Now.
	Now func() time.Time
}

// Service computes usage and waterfall views from a store.
type Service struct {
	store   *storage.Store
	org     string
	period  string
	verbose bool
	now     func() time.Time

	tables memo.Cache[tableKey, []usage.TableStat]
	charts memo.Cache[chartKey, chartData]
}

type tableKey struct {
	generation uint64
	category   usage.DataCategory
	sort       usage.SortSpec
	period     string
	window     int64
	projects   string
}

type chartKey struct {
	generation uint64
	category   usage.DataCategory
	transform  usage.ChartTransform
	period     string
	window     int64
}

// New creates a Service reading from store.
func New(store *storage.Store, opts Options) *Service {
	s := &Service{
		store:   store,
		org:     opts.Org,
		period:  opts.StatsPeriod,
		verbose: opts.Verbose,
		now:     opts.Now,
	}
	if s.org == "" {
		s.org = "default"
	}
	if s.period == "" {
		s.period = usage.DefaultStatsPeriod
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Org returns the organization slug used in project links.
func (s *Service) Org() string {
	return s.org
}

// TableView is the project usage table for one category.
type TableView struct {
	Org      string             `json:"org"`
	Category usage.DataCategory `json:"category"`
	Period   string             `json:"stats_period"`
	Sort     string             `json:"sort"`
	Headers  []usage.Header     `json:"headers"`
	Rows     []usage.TableStat  `json:"rows"`
	Warning  string             `json:"warning,omitempty"`
}

// Table aggregates the stored outcomes of category per project and sorts the
// rows by the sort descriptor. Invalid categories and periods are errors;
// failures to fetch or aggregate are reported in Warning with no rows.
func (s *Service) Table(category, sort, period string) (TableView, error) {
	cat, err := usage.ParseCategory(category)
	if err != nil {
		return TableView{}, err
	}
	if period == "" {
		period = s.period
	}
	q, err := usage.QueryForPeriod(period, true)
	if err != nil {
		return TableView{}, err
	}
	spec := usage.ParseSort(sort)

	view := TableView{
		Org:      s.org,
		Category: cat,
		Period:   q.StatsPeriod,
		Sort:     spec.String(),
		Headers:  usage.Headers(spec),
	}

	now := s.now()
	projects := s.store.Outcomes().Projects()
	key := tableKey{
		generation: s.store.Generation(),
		category:   cat,
		sort:       spec,
		period:     q.StatsPeriod,
		window:     now.Unix() / 60,
		projects:   fingerprint(projects),
	}

	rows, err := s.tables.Get(key, func() ([]usage.TableStat, error) {
		series, err := s.fetch(q, now)
		if err != nil {
			return nil, err
		}
		res := usage.Aggregate(series, cat, projects, spec)
		if res.Err != nil {
			return nil, res.Err
		}
		return usage.WithLinks(res.Rows, s.org, cat), nil
	})
	if err != nil {
		view.Rows = []usage.TableStat{}
		view.Warning = warning(err)
		return view, nil
	}
	view.Rows = rows
	return view, nil
}

// ChartView is the org usage chart for one category.
type ChartView struct {
	Org       string               `json:"org"`
	Category  usage.DataCategory   `json:"category"`
	Period    string               `json:"stats_period"`
	Interval  string               `json:"interval"`
	Transform usage.ChartTransform `json:"transform"`
	Stats     []usage.UsageStat    `json:"stats"`
	Total     *usage.TableStat     `json:"total,omitempty"`
	Warning   string               `json:"warning,omitempty"`
}

type chartData struct {
	stats []usage.UsageStat
	total usage.TableStat
}

// Chart sums the stored outcomes of category per interval across the org,
// with the org-wide outcome totals for the whole period.
func (s *Service) Chart(category, transform, period string) (ChartView, error) {
	cat, err := usage.ParseCategory(category)
	if err != nil {
		return ChartView{}, err
	}
	if period == "" {
		period = s.period
	}
	q, err := usage.QueryForPeriod(period, false)
	if err != nil {
		return ChartView{}, err
	}
	tr := usage.ParseTransform(transform)

	view := ChartView{
		Org:       s.org,
		Category:  cat,
		Period:    q.StatsPeriod,
		Interval:  q.Interval,
		Transform: tr,
	}

	now := s.now()
	key := chartKey{
		generation: s.store.Generation(),
		category:   cat,
		transform:  tr,
		period:     q.StatsPeriod,
		window:     now.Unix() / 60,
	}

	data, err := s.charts.Get(key, func() (chartData, error) {
		series, err := s.fetch(q, now)
		if err != nil {
			return chartData{}, err
		}
		res := usage.ChartSeries(series, cat, tr)
		if res.Err != nil {
			return chartData{}, res.Err
		}
		org := usage.AggregateOrg(series, cat)
		if org.Err != nil {
			return chartData{}, org.Err
		}
		return chartData{stats: res.Stats, total: org.Rows[0]}, nil
	})
	if err != nil {
		view.Stats = []usage.UsageStat{}
		view.Warning = warning(err)
		return view, nil
	}
	view.Stats = data.stats
	view.Total = &data.total
	return view, nil
}

// Toggle applies a header click to the current sort descriptor.
func Toggle(current, column string) (string, error) {
	key := usage.SortKey(column)
	if !key.Valid() {
		return "", fmt.Errorf("unknown sort column %q", column)
	}
	return usage.Toggle(usage.ParseSort(current), key).String(), nil
}

func (s *Service) fetch(q usage.StatsQuery, now time.Time) (*usage.UsageSeries, error) {
	series, err := s.store.Outcomes().Series(q, now)
	if err != nil {
		return nil, &usage.FetchError{Endpoint: fmt.Sprintf("/organizations/%s/stats_v2/", s.org), Err: err}
	}
	return series, nil
}

func warning(err error) string {
	log.Printf("⚠️  report: %v\n", err)
	var fe *usage.FetchError
	if errors.As(err, &fe) {
		return "There was an error loading usage stats"
	}
	return err.Error()
}

// fingerprint identifies a project list for cache keys.
func fingerprint(projects []usage.Project) string {
	var b strings.Builder
	for _, p := range projects {
		b.WriteString(p.ID)
		b.WriteByte('=')
		b.WriteString(p.Slug)
		b.WriteByte(';')
	}
	return b.String()
}

// CacheStats reports memo hits and misses for the usage views.
type CacheStats struct {
	TableHits   uint64 `json:"table_hits"`
	TableMisses uint64 `json:"table_misses"`
	ChartHits   uint64 `json:"chart_hits"`
	ChartMisses uint64 `json:"chart_misses"`
}

// CacheStats returns memo statistics.
func (s *Service) CacheStats() CacheStats {
	var cs CacheStats
	cs.TableHits, cs.TableMisses = s.tables.Stats()
	cs.ChartHits, cs.ChartMisses = s.charts.Stats()
	return cs
}

// Traces lists stored traces, newest first.
func (s *Service) Traces(service string, limit int) []storage.TraceSummary {
	return s.store.Traces().TraceSummaries(service, limit)
}

// WaterfallView is a laid out trace.
type WaterfallView struct {
	TraceID   string              `json:"trace_id"`
	Info      waterfall.TraceInfo `json:"info"`
	Rows      []waterfall.Row     `json:"rows"`
	Truncated bool                `json:"truncated,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Waterfall assembles the stored spans of traceID and lays out every row.
// Nodes listed in collapsed have their subtrees hidden.
func (s *Service) Waterfall(traceID string, collapsed []string) (WaterfallView, error) {
	tree, err := tracetree.Build(traceID, s.store.Traces().GetSpansByTraceID(traceID))
	if err != nil {
		return WaterfallView{}, err
	}

	set := make(map[string]bool, len(collapsed))
	for _, id := range collapsed {
		set[id] = true
	}

	if s.verbose && len(tree.Warnings) > 0 {
		log.Printf("🌊 report: trace %s built with %d warnings\n", traceID, len(tree.Warnings))
	}

	return WaterfallView{
		TraceID:   traceID,
		Info:      waterfall.ComputeTraceInfo(tree.Root),
		Rows:      waterfall.Flatten(tree.Root, set),
		Truncated: tree.Truncated,
		Warnings:  tree.Warnings,
	}, nil
}
