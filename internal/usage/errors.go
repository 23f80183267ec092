package usage

import (
	"errors"
	"fmt"
)

// ErrAggregation is the sentinel matched by every AggregationError.
var ErrAggregation = errors.New("usage aggregation failed")

// AggregationError reports malformed or mismatched input met while building
// a table or chart. It travels inside Result instead of being returned as a
// hard failure so the caller can render a warning panel.
type AggregationError struct {
	Category DataCategory
	Cause    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s usage: %v", e.Category, e.Cause)
}

func (e *AggregationError) Unwrap() []error {
	return []error{ErrAggregation, e.Cause}
}

// FetchError marks a failed upstream fetch of the stats series. Its presence
// suppresses tables and charts in favour of a warning indicator.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
