package usage

import (
	"errors"
	"fmt"
)

// ChartTransform selects how interval buckets are presented.
type ChartTransform string

const (
	TransformCumulative ChartTransform = "cumulative"
	TransformDaily      ChartTransform = "daily"
)

// ParseTransform returns the transform named by s, defaulting to cumulative.
func ParseTransform(s string) ChartTransform {
	if ChartTransform(s) == TransformDaily {
		return TransformDaily
	}
	return TransformCumulative
}

// ChartResult carries the org chart series or the reason it is missing.
type ChartResult struct {
	Stats []UsageStat
	Err   error
}

// ChartSeries sums the matching groups of series per interval. With the
// cumulative transform every point carries the running totals up to and
// including its interval.
func ChartSeries(series *UsageSeries, category DataCategory, transform ChartTransform) (res ChartResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ChartResult{Stats: []UsageStat{}, Err: &AggregationError{Category: category, Cause: fmt.Errorf("panic: %v", r)}}
		}
	}()

	fail := func(err error) ChartResult {
		return ChartResult{Stats: []UsageStat{}, Err: &AggregationError{Category: category, Cause: err}}
	}

	if series == nil {
		return fail(errors.New("no series"))
	}

	stats := make([]UsageStat, len(series.Intervals))
	for i, date := range series.Intervals {
		stats[i].Date = date
	}

	field := MetricField(category)
	for gi, g := range series.Groups {
		if DataCategory(g.By[GroupByCategory]) != category {
			continue
		}
		outcome := Outcome(g.By[GroupByOutcome])
		if !outcome.Known() {
			continue
		}

		points, ok := g.Series[field]
		if !ok {
			return fail(fmt.Errorf("group %d: missing %s in series", gi, field))
		}
		if len(points) != len(stats) {
			return fail(fmt.Errorf("group %d: %d points for %d intervals", gi, len(points), len(stats)))
		}

		for i, p := range points {
			v, err := countValue(p)
			if err != nil {
				return fail(fmt.Errorf("group %d interval %d: %w", gi, i, err))
			}
			stats[i].add(outcome, v)
		}
	}

	if ParseTransform(string(transform)) == TransformCumulative {
		for i := 1; i < len(stats); i++ {
			prev := stats[i-1]
			stats[i].Total += prev.Total
			stats[i].Accepted += prev.Accepted
			stats[i].Filtered += prev.Filtered
			stats[i].Dropped.Total += prev.Dropped.Total
			stats[i].Dropped.Other += prev.Dropped.Other
		}
	}

	return ChartResult{Stats: stats}
}

func (u *UsageStat) add(o Outcome, v int64) {
	switch o {
	case OutcomeAccepted:
		u.Accepted += v
	case OutcomeFiltered:
		u.Filtered += v
	case OutcomeDropped:
		u.Dropped.Total += v
	case OutcomeInvalid:
		u.Dropped.Total += v
		u.Dropped.Other += v
	}
	u.Total += v
}
