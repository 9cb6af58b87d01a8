package model

import (
	"net/url"
	"strings"
)

type StatusFilter string

const (
	StatusAny       StatusFilter = ""
	StatusPending   StatusFilter = "pending"
	StatusCompleted StatusFilter = "completed"
)

type PriorityFilter string

const (
	PriorityAny          PriorityFilter = ""
	PriorityFilterHigh   PriorityFilter = "high"
	PriorityFilterMedium PriorityFilter = "medium"
	PriorityFilterLow    PriorityFilter = "low"
)

type SortOrder string

const (
	SortRecency      SortOrder = "date"
	SortAlphabetical SortOrder = "alpha"
	SortPriority     SortOrder = "priority"
)

var (
	StatusFilters   = []StatusFilter{StatusAny, StatusPending, StatusCompleted}
	PriorityFilters = []PriorityFilter{PriorityAny, PriorityFilterHigh, PriorityFilterMedium, PriorityFilterLow}
	SortOrders      = []SortOrder{SortRecency, SortAlphabetical, SortPriority}
)

// Query is the client-held search, filter and sort state for a task listing.
// The zero value lists every task, newest first.
type Query struct {
	Search   string         `json:"search"`
	Status   StatusFilter   `json:"status"`
	Priority PriorityFilter `json:"priority"`
	Tag      string         `json:"tag"`
	Sort     SortOrder      `json:"sort"`
}

func (q Query) SortOrder() SortOrder {
	if q.Sort == "" {
		return SortRecency
	}
	return q.Sort
}

func (q Query) IsDefault() bool {
	return q.Normalize() == Query{}
}

// Normalize trims the search text and folds the recency sort into the zero
// value so equal queries compare equal.
func (q Query) Normalize() Query {
	q.Search = strings.TrimSpace(q.Search)
	q.Tag = strings.TrimSpace(q.Tag)
	if q.Sort == SortRecency {
		q.Sort = ""
	}
	return q
}

// Values serializes the non-default fields only.
func (q Query) Values() url.Values {
	q = q.Normalize()
	values := url.Values{}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Status != StatusAny {
		values.Set("status", string(q.Status))
	}
	if q.Priority != PriorityAny {
		values.Set("priority", string(q.Priority))
	}
	if q.Tag != "" {
		values.Set("tags", q.Tag)
	}
	if q.Sort != "" {
		values.Set("sort", string(q.Sort))
	}
	return values
}

// ParseQuery is the inverse of Values.
func ParseQuery(values url.Values) Query {
	q := Query{
		Search:   values.Get("search"),
		Status:   StatusFilter(values.Get("status")),
		Priority: PriorityFilter(values.Get("priority")),
		Tag:      values.Get("tags"),
		Sort:     SortOrder(values.Get("sort")),
	}
	if q.Status == "all" {
		q.Status = StatusAny
	}
	if q.Priority == "all" {
		q.Priority = PriorityAny
	}
	return q.Normalize()
}

func NextStatusFilter(current StatusFilter) StatusFilter {
	return cycle(StatusFilters, current)
}

func NextPriorityFilter(current PriorityFilter) PriorityFilter {
	return cycle(PriorityFilters, current)
}

func NextSortOrder(current SortOrder) SortOrder {
	if current == "" {
		current = SortRecency
	}
	return cycle(SortOrders, current)
}

func cycle[T comparable](values []T, current T) T {
	for i, value := range values {
		if value == current {
			return values[(i+1)%len(values)]
		}
	}
	return values[0]
}

func (s StatusFilter) Label() string {
	if s == StatusAny {
		return "all"
	}
	return string(s)
}

func (p PriorityFilter) Label() string {
	if p == PriorityAny {
		return "all"
	}
	return string(p)
}

func (s SortOrder) Label() string {
	switch s {
	case SortAlphabetical:
		return "alphabetical"
	case SortPriority:
		return "priority"
	default:
		return "recent"
	}
}
