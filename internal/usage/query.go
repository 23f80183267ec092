package usage

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultStatsPeriod is the window used when none is selected.
const DefaultStatsPeriod = "14d"

// StatsQuery is the request sent to the stats collaborator.
type StatsQuery struct {
	StatsPeriod string   `json:"statsPeriod"`
	Interval    string   `json:"interval"`
	GroupBy     []string `json:"groupBy"`
	Field       []string `json:"field"`
}

// QueryForPeriod builds the stats query for a period. The project table only
// needs daily buckets; the org chart picks finer buckets for shorter periods.
func QueryForPeriod(period string, byProject bool) (StatsQuery, error) {
	if period == "" {
		period = DefaultStatsPeriod
	}
	d, err := ParsePeriod(period)
	if err != nil {
		return StatsQuery{}, err
	}

	q := StatsQuery{
		StatsPeriod: period,
		GroupBy:     []string{GroupByCategory, GroupByOutcome},
		Field:       []string{FieldQuantity, FieldTimesSeen},
	}

	switch {
	case byProject:
		q.Interval = "1d"
		q.GroupBy = append(q.GroupBy, GroupByProject)
	case d <= 14*24*time.Hour:
		q.Interval = "1h"
	case d <= 30*24*time.Hour:
		q.Interval = "4h"
	default:
		q.Interval = "1d"
	}
	return q, nil
}

// ParsePeriod reads durations such as "30m", "24h", "14d" or "2w".
func ParsePeriod(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid period %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid period %q", s)
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid period unit in %q", s)
	}
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("period %q is too long", s)
	}
	return time.Duration(n) * unit, nil
}

// ProjectLink is where a table row points: the performance page for
// transactions, the issue stream for everything else.
func ProjectLink(org string, category DataCategory, projectID string) string {
	page := "issues"
	if category == CategoryTransaction {
		page = "performance"
	}
	return fmt.Sprintf("/organizations/%s/%s/?project=%s", org, page, projectID)
}

// WithLinks returns a copy of rows with ProjectLink filled in.
func WithLinks(rows []TableStat, org string, category DataCategory) []TableStat {
	out := make([]TableStat, len(rows))
	for i, r := range rows {
		r.ProjectLink = ProjectLink(org, category, r.Project.ID)
		out[i] = r
	}
	return out
}
