// Package usage turns raw outcome series into the per-project usage table and
// the per-interval org chart. Everything here is a pure function of its
// inputs; callers fetch the series and render the results.
package usage

import "fmt"

// DataCategory is a class of ingested data whose usage is tracked separately.
type DataCategory string

const (
	CategoryError       DataCategory = "error"
	CategoryTransaction DataCategory = "transaction"
	CategoryAttachment  DataCategory = "attachment"
	CategoryDefault     DataCategory = "default"
	CategorySecurity    DataCategory = "security"
	CategorySession     DataCategory = "session"
)

// Categories lists the categories usage can be shown for.
var Categories = []DataCategory{
	CategoryError,
	CategoryTransaction,
	CategoryAttachment,
	CategoryDefault,
	CategorySecurity,
	CategorySession,
}

// ParseCategory reads a category name. Empty selects errors.
func ParseCategory(s string) (DataCategory, error) {
	if s == "" {
		return CategoryError, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown data category %q", s)
}

// Outcome is the disposition of an ingested item.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeFiltered Outcome = "filtered"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeDropped  Outcome = "dropped"
)

// Known reports whether o is one of the four recognized outcomes.
func (o Outcome) Known() bool {
	switch o {
	case OutcomeAccepted, OutcomeFiltered, OutcomeInvalid, OutcomeDropped:
		return true
	}
	return false
}

// Field names requested from the stats endpoint.
const (
	FieldQuantity  = "sum(quantity)"
	FieldTimesSeen = "sum(times_seen)"
)

// Grouping dimensions understood by the stats endpoint.
const (
	GroupByCategory = "category"
	GroupByOutcome  = "outcome"
	GroupByProject  = "project"
)

// UsageSeries is the raw response of the stats endpoint.
type UsageSeries struct {
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Intervals []string `json:"intervals"`
	Groups    []Group  `json:"groups"`
}

// Group is one combination of grouping values with its totals and buckets.
type Group struct {
	By     map[string]string    `json:"by"`
	Totals map[string]float64   `json:"totals"`
	Series map[string][]float64 `json:"series"`
}

// Project identifies a row of the usage table.
type Project struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// OrgEntity is the synthetic identity used when stats are not split by project.
var OrgEntity = Project{ID: "org", Slug: "org"}

// TableStat is one row of the usage table.
type TableStat struct {
	Project     Project `json:"project"`
	ProjectLink string  `json:"projectLink,omitempty"`
	Total       int64   `json:"total"`
	Accepted    int64   `json:"accepted"`
	Filtered    int64   `json:"filtered"`
	Dropped     int64   `json:"dropped"`
}

// DroppedStat splits dropped items into the total and the invalid share.
type DroppedStat struct {
	Total int64 `json:"total"`
	Other int64 `json:"other,omitempty"`
}

// UsageStat is one interval of the org usage chart.
type UsageStat struct {
	Date     string      `json:"date"`
	Total    int64       `json:"total"`
	Accepted int64       `json:"accepted"`
	Filtered int64       `json:"filtered"`
	Dropped  DroppedStat `json:"dropped"`
}
