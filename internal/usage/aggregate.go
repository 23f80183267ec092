package usage

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Result is the outcome of Aggregate. Err is set, and Rows empty, when the
// series could not be aggregated.
type Result struct {
	Rows []TableStat
	Err  error
}

// metricFields maps categories to the field that measures them. Categories
// not listed read FieldQuantity.
var metricFields = map[DataCategory]string{
	CategoryAttachment:  FieldTimesSeen,
	CategoryTransaction: FieldTimesSeen,
}

// MetricField returns the series field that measures the given category.
func MetricField(category DataCategory) string {
	if f, ok := metricFields[category]; ok {
		return f
	}
	return FieldQuantity
}

// Aggregate builds one TableStat per entity from the groups of series that
// match category, then sorts the rows by spec. Entities without matching
// groups get all-zero rows, so len(Rows) == len(entities) on success.
func Aggregate(series *UsageSeries, category DataCategory, entities []Project, spec SortSpec) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(category, fmt.Errorf("panic: %v", r))
		}
	}()

	if series == nil {
		return failed(category, errors.New("no series"))
	}

	index := make(map[string]int, len(entities))
	rows := make([]TableStat, len(entities))
	for i, e := range entities {
		index[e.ID] = i
		rows[i] = TableStat{Project: e}
	}

	field := MetricField(category)
	for gi, g := range series.Groups {
		if DataCategory(g.By[GroupByCategory]) != category {
			continue
		}
		i, ok := index[g.By[GroupByProject]]
		if !ok {
			continue
		}

		v, err := groupValue(g.Totals, field)
		if err != nil {
			return failed(category, fmt.Errorf("group %d: %w", gi, err))
		}
		rows[i].add(Outcome(g.By[GroupByOutcome]), v)
	}

	sortRows(rows, spec)
	return Result{Rows: rows}
}

// AggregateOrg folds every matching group into the single org row.
func AggregateOrg(series *UsageSeries, category DataCategory) Result {
	if series == nil {
		return failed(category, errors.New("no series"))
	}

	flat := UsageSeries{
		Start:     series.Start,
		End:       series.End,
		Intervals: series.Intervals,
		Groups:    make([]Group, len(series.Groups)),
	}
	for i, g := range series.Groups {
		by := make(map[string]string, len(g.By)+1)
		for k, v := range g.By {
			by[k] = v
		}
		by[GroupByProject] = OrgEntity.ID
		flat.Groups[i] = Group{By: by, Totals: g.Totals, Series: g.Series}
	}
	return Aggregate(&flat, category, []Project{OrgEntity}, DefaultSort)
}

// add accumulates v into the bucket for o and into the total. Invalid items
// are reported as dropped; unknown outcomes are skipped so the row total
// always equals the sum of its buckets.
func (t *TableStat) add(o Outcome, v int64) {
	switch o {
	case OutcomeAccepted:
		t.Accepted += v
	case OutcomeFiltered:
		t.Filtered += v
	case OutcomeDropped, OutcomeInvalid:
		t.Dropped += v
	default:
		return
	}
	t.Total += v
}

func groupValue(totals map[string]float64, field string) (int64, error) {
	v, ok := totals[field]
	if !ok {
		return 0, fmt.Errorf("missing %s in totals", field)
	}
	return countValue(v)
}

// maxSafeCount is the largest count representable exactly in a float64.
const maxSafeCount = 1<<53 - 1

func countValue(v float64) (int64, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, fmt.Errorf("non-finite value %v", v)
	case v < 0:
		return 0, fmt.Errorf("negative value %v", v)
	case v > maxSafeCount:
		return 0, fmt.Errorf("value %v exceeds safe integer range", v)
	case v != math.Trunc(v):
		return 0, fmt.Errorf("fractional value %v", v)
	}
	return int64(v), nil
}

func sortRows(rows []TableStat, spec SortSpec) {
	if !spec.Key.Valid() {
		spec = DefaultSort
	}
	if spec.Direction != Ascending {
		spec.Direction = Descending
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(rows[i], rows[j], spec) < 0
	})
}

func failed(category DataCategory, cause error) Result {
	return Result{
		Rows: []TableStat{},
		Err:  &AggregationError{Category: category, Cause: cause},
	}
}
