package usage

import (
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey names a usage table column.
type SortKey string

const (
	SortProject  SortKey = "project"
	SortTotal    SortKey = "total"
	SortAccepted SortKey = "accepted"
	SortFiltered SortKey = "filtered"
	SortDropped  SortKey = "dropped"
)

// Valid reports whether k names one of the five table columns.
func (k SortKey) Valid() bool {
	switch k {
	case SortProject, SortTotal, SortAccepted, SortFiltered, SortDropped:
		return true
	}
	return false
}

// Direction is applied as a sign on the primary comparison.
// Descending is +1 and Ascending is -1.
type Direction int

const (
	Descending Direction = 1
	Ascending  Direction = -1
)

func (d Direction) String() string {
	if d == Ascending {
		return "ascending"
	}
	return "descending"
}

// SortSpec selects the column and direction of the usage table.
type SortSpec struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// DefaultSort is used when the sort descriptor is empty or unrecognized.
var DefaultSort = SortSpec{Key: SortTotal, Direction: Descending}

// ParseSort reads a sort descriptor: "-key" is descending, "key" ascending.
func ParseSort(s string) SortSpec {
	if s == "" {
		return DefaultSort
	}

	dir := Ascending
	if strings.HasPrefix(s, "-") {
		s = s[1:]
		dir = Descending
	}

	key := SortKey(s)
	if !key.Valid() {
		return DefaultSort
	}
	return SortSpec{Key: key, Direction: dir}
}

// String renders the descriptor ParseSort reads back.
func (s SortSpec) String() string {
	if s.Direction == Ascending {
		return string(s.Key)
	}
	return "-" + string(s.Key)
}

// Toggle is the click policy of the table headers: clicking the active column
// flips its direction, clicking another column selects that column with its
// default direction (project ascending, numbers descending).
func Toggle(current SortSpec, next SortKey) SortSpec {
	if current.Key == next {
		if current.Direction == Ascending {
			return SortSpec{Key: next, Direction: Descending}
		}
		return SortSpec{Key: next, Direction: Ascending}
	}
	if next == SortProject {
		return SortSpec{Key: next, Direction: Ascending}
	}
	return SortSpec{Key: next, Direction: Descending}
}

// Header is the metadata a renderer needs for one column title.
type Header struct {
	Key   SortKey `json:"key"`
	Title string  `json:"title"`
	Align string  `json:"align"`
	Arrow string  `json:"arrow,omitempty"` // "down", "up", or empty
	Sort  string  `json:"sort"`            // descriptor applied when clicked
}

var columns = []struct {
	key   SortKey
	title string
}{
	{SortProject, "Project"},
	{SortTotal, "Total"},
	{SortAccepted, "Accepted"},
	{SortFiltered, "Filtered"},
	{SortDropped, "Dropped"},
}

// Headers returns the five column headers with the arrow on the active one.
func Headers(spec SortSpec) []Header {
	headers := make([]Header, 0, len(columns))
	for _, c := range columns {
		h := Header{
			Key:   c.key,
			Title: c.title,
			Align: "right",
			Sort:  Toggle(spec, c.key).String(),
		}
		if c.key == SortProject {
			h.Align = "left"
		}
		if c.key == spec.Key {
			if spec.Direction == Ascending {
				h.Arrow = "up"
			} else {
				h.Arrow = "down"
			}
		}
		headers = append(headers, h)
	}
	return headers
}

// collator is not safe for concurrent use, so access is serialized.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.English)
)

func compareSlugs(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// compareRows orders a before b when the result is negative.
//
// The project column compares b against a and then applies the direction,
// so a descending project sort runs Z to A. Numeric columns break ties by
// ascending slug regardless of direction.
func compareRows(a, b TableStat, spec SortSpec) int {
	dir := int64(spec.Direction)
	if spec.Key == SortProject {
		return compareSlugs(b.Project.Slug, a.Project.Slug) * int(dir)
	}

	av, bv := a.value(spec.Key), b.value(spec.Key)
	if av != bv {
		return sign((bv - av) * dir)
	}
	return compareSlugs(a.Project.Slug, b.Project.Slug)
}

func (t TableStat) value(key SortKey) int64 {
	switch key {
	case SortAccepted:
		return t.Accepted
	case SortFiltered:
		return t.Filtered
	case SortDropped:
		return t.Dropped
	default:
		return t.Total
	}
}

func sign(v int64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
