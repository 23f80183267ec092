package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"

	"github.com/tobert/tracestat/internal/usage"
)

// OutcomeMetricName is the metric carrying ingestion outcomes.
const OutcomeMetricName = "tracestat.outcomes"

// Attribute keys read from outcome data points.
const (
	attrCategory    = "category"
	attrOutcome     = "outcome"
	attrProject     = "project"
	attrProjectSlug = "project.slug"
	attrTimesSeen   = "times_seen"
)

// OutcomePoint is one outcome data point: how many items of a category
// ended with an outcome for a project at a point in time.
type OutcomePoint struct {
	Time      time.Time
	Category  string
	Outcome   string
	ProjectID string
	Quantity  float64
	TimesSeen float64
}

func (p OutcomePoint) dimension(name string) string {
	switch name {
	case usage.GroupByCategory:
		return p.Category
	case usage.GroupByOutcome:
		return p.Outcome
	case usage.GroupByProject:
		return p.ProjectID
	}
	return ""
}

func (p OutcomePoint) field(name string) float64 {
	if name == usage.FieldTimesSeen {
		return p.TimesSeen
	}
	return p.Quantity
}

// OutcomeStorage keeps outcome points in a ring buffer and answers stats
// queries by bucketing them into usage series.
type OutcomeStorage struct {
	points *RingBuffer[OutcomePoint]

	mu       sync.RWMutex
	projects map[string]string // id -> slug
}

// NewOutcomeStorage creates outcome storage holding at most capacity points.
func NewOutcomeStorage(capacity int) *OutcomeStorage {
	return &OutcomeStorage{
		points:   NewRingBuffer[OutcomePoint](capacity),
		projects: make(map[string]string),
	}
}

// ReceiveMetrics extracts outcome points from Sum and Gauge metrics named
// OutcomeMetricName. Other metrics are ignored. It returns the number of
// points stored.
func (os *OutcomeStorage) ReceiveMetrics(ctx context.Context, resourceMetrics []*metricspb.ResourceMetrics) (int, error) {
	added := 0
	for _, rm := range resourceMetrics {
		serviceName := extractServiceName(rm.Resource)

		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				if metric.Name != OutcomeMetricName {
					continue
				}
				for _, dp := range numberDataPoints(metric) {
					p, slug, ok := outcomePoint(dp)
					if !ok {
						continue
					}
					if slug == "" && serviceName != "unknown" {
						slug = serviceName
					}
					os.learnProject(p.ProjectID, slug)
					os.points.Add(p)
					added++
				}
			}
		}
	}
	return added, nil
}

func numberDataPoints(metric *metricspb.Metric) []*metricspb.NumberDataPoint {
	switch data := metric.Data.(type) {
	case *metricspb.Metric_Sum:
		return data.Sum.DataPoints
	case *metricspb.Metric_Gauge:
		return data.Gauge.DataPoints
	}
	return nil
}

// outcomePoint converts a data point. Points without a category or outcome
// are skipped.
func outcomePoint(dp *metricspb.NumberDataPoint) (OutcomePoint, string, bool) {
	p := OutcomePoint{
		Time:      time.Unix(0, int64(dp.TimeUnixNano)).UTC(),
		TimesSeen: 1,
	}
	switch v := dp.Value.(type) {
	case *metricspb.NumberDataPoint_AsInt:
		p.Quantity = float64(v.AsInt)
	case *metricspb.NumberDataPoint_AsDouble:
		p.Quantity = v.AsDouble
	}

	var slug string
	for _, attr := range dp.Attributes {
		switch attr.Key {
		case attrCategory:
			p.Category = attr.Value.GetStringValue()
		case attrOutcome:
			p.Outcome = attr.Value.GetStringValue()
		case attrProject:
			p.ProjectID = anyString(attr.Value)
		case attrProjectSlug:
			slug = attr.Value.GetStringValue()
		case attrTimesSeen:
			p.TimesSeen = anyNumber(attr.Value)
		}
	}

	if p.Category == "" || p.Outcome == "" {
		return OutcomePoint{}, "", false
	}
	return p, slug, true
}

// anyString reads string and integer attribute values, since project ids
// arrive as either.
func anyString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch x := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return fmt.Sprintf("%d", x.IntValue)
	}
	return ""
}

func anyNumber(v *commonpb.AnyValue) float64 {
	if v == nil {
		return 0
	}
	switch x := v.Value.(type) {
	case *commonpb.AnyValue_IntValue:
		return float64(x.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return x.DoubleValue
	}
	return 0
}

func (os *OutcomeStorage) learnProject(id, slug string) {
	if id == "" {
		return
	}
	os.mu.Lock()
	defer os.mu.Unlock()

	if slug == "" {
		slug = os.projects[id]
	}
	if slug == "" {
		slug = id
	}
	os.projects[id] = slug
}

// RegisterProjects records known projects ahead of any data, so they show
// up in the usage table with zero counts.
func (os *OutcomeStorage) RegisterProjects(projects []usage.Project) {
	os.mu.Lock()
	defer os.mu.Unlock()

	for _, p := range projects {
		if p.ID == "" {
			continue
		}
		slug := p.Slug
		if slug == "" {
			slug = p.ID
		}
		os.projects[p.ID] = slug
	}
}

// Projects returns every known project ordered by id.
func (os *OutcomeStorage) Projects() []usage.Project {
	os.mu.RLock()
	defer os.mu.RUnlock()

	projects := make([]usage.Project, 0, len(os.projects))
	for id, slug := range os.projects {
		projects = append(projects, usage.Project{ID: id, Slug: slug})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects
}

// Series answers a stats query over the points stored in the window ending
// at now. Buckets are aligned to the interval.
func (os *OutcomeStorage) Series(q usage.StatsQuery, now time.Time) (*usage.UsageSeries, error) {
	period, err := usage.ParsePeriod(q.StatsPeriod)
	if err != nil {
		return nil, fmt.Errorf("stats period: %w", err)
	}
	interval, err := usage.ParsePeriod(q.Interval)
	if err != nil {
		return nil, fmt.Errorf("interval: %w", err)
	}
	for _, f := range q.Field {
		if f != usage.FieldQuantity && f != usage.FieldTimesSeen {
			return nil, fmt.Errorf("unsupported field %q", f)
		}
	}
	for _, g := range q.GroupBy {
		if g != usage.GroupByCategory && g != usage.GroupByOutcome && g != usage.GroupByProject {
			return nil, fmt.Errorf("unsupported groupBy %q", g)
		}
	}

	now = now.UTC()
	end := now.Truncate(interval).Add(interval)
	start := now.Add(-period).Truncate(interval)
	n := int(end.Sub(start) / interval)
	if n <= 0 {
		return nil, fmt.Errorf("stats period %q gives no %s buckets", q.StatsPeriod, q.Interval)
	}

	series := &usage.UsageSeries{
		Start:     start.Format(time.RFC3339),
		End:       end.Format(time.RFC3339),
		Intervals: make([]string, n),
	}
	for i := range n {
		series.Intervals[i] = start.Add(time.Duration(i) * interval).Format(time.RFC3339)
	}

	groups := make(map[string]*usage.Group)
	for _, p := range os.points.GetAll() {
		if p.Time.Before(start) || !p.Time.Before(end) {
			continue
		}
		idx := int(p.Time.Sub(start) / interval)

		by := make(map[string]string, len(q.GroupBy))
		keyParts := make([]string, len(q.GroupBy))
		for i, dim := range q.GroupBy {
			by[dim] = p.dimension(dim)
			keyParts[i] = by[dim]
		}
		key := strings.Join(keyParts, "\x00")

		g, ok := groups[key]
		if !ok {
			g = &usage.Group{
				By:     by,
				Totals: make(map[string]float64, len(q.Field)),
				Series: make(map[string][]float64, len(q.Field)),
			}
			for _, f := range q.Field {
				g.Totals[f] = 0
				g.Series[f] = make([]float64, n)
			}
			groups[key] = g
		}
		for _, f := range q.Field {
			v := p.field(f)
			g.Totals[f] += v
			g.Series[f][idx] += v
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	series.Groups = make([]usage.Group, 0, len(keys))
	for _, k := range keys {
		series.Groups = append(series.Groups, *groups[k])
	}
	return series, nil
}

// OutcomeStats contains statistics about outcome storage.
type OutcomeStats struct {
	PointCount   int            `json:"point_count"`
	Capacity     int            `json:"capacity"`
	ProjectCount int            `json:"project_count"`
	Categories   map[string]int `json:"categories"`
}

// Stats returns current storage statistics.
func (os *OutcomeStorage) Stats() OutcomeStats {
	categories := make(map[string]int)
	for _, p := range os.points.GetAll() {
		categories[p.Category]++
	}

	os.mu.RLock()
	projects := len(os.projects)
	os.mu.RUnlock()

	return OutcomeStats{
		PointCount:   os.points.Size(),
		Capacity:     os.points.Capacity(),
		ProjectCount: projects,
		Categories:   categories,
	}
}

// Clear removes all points. Registered and learned projects are kept.
func (os *OutcomeStorage) Clear() {
	os.points.Clear()
}
