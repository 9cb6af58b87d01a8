package model

import (
	"net/url"
	"testing"
)

func TestQueryValuesOmitsDefaults(t *testing.T) {
	values := Query{}.Values()
	if len(values) != 0 {
		t.Fatalf("expected no params for default query, got %v", values)
	}

	values = Query{Sort: SortRecency, Search: "   "}.Values()
	if len(values) != 0 {
		t.Fatalf("expected recency sort and blank search to be omitted, got %v", values)
	}
}

func TestQueryValuesSingleFieldChange(t *testing.T) {
	cases := []struct {
		name  string
		query Query
		key   string
		want  string
	}{
		{"search", Query{Search: " milk "}, "search", "milk"},
		{"status", Query{Status: StatusCompleted}, "status", "completed"},
		{"priority", Query{Priority: PriorityFilterHigh}, "priority", "high"},
		{"tag", Query{Tag: "errand"}, "tags", "errand"},
		{"sort", Query{Sort: SortAlphabetical}, "sort", "alpha"},
	}
	for _, tc := range cases {
		values := tc.query.Values()
		if len(values) != 1 {
			t.Fatalf("%s: expected exactly one param, got %v", tc.name, values)
		}
		if got := values.Get(tc.key); got != tc.want {
			t.Fatalf("%s: expected %s=%q, got %q", tc.name, tc.key, tc.want, got)
		}
	}
}

func TestParseQueryRoundTrips(t *testing.T) {
	q := Query{Search: "milk", Status: StatusPending, Priority: PriorityFilterLow, Tag: "home", Sort: SortPriority}
	parsed := ParseQuery(q.Values())
	if parsed != q {
		t.Fatalf("expected %+v, got %+v", q, parsed)
	}

	legacy := ParseQuery(url.Values{"status": {"all"}, "priority": {"all"}, "sort": {"date"}})
	if !legacy.IsDefault() {
		t.Fatalf("expected 'all' filters to parse as default, got %+v", legacy)
	}
}

func TestCycleHelpersWrap(t *testing.T) {
	if got := NextStatusFilter(StatusCompleted); got != StatusAny {
		t.Fatalf("expected wrap to any, got %q", got)
	}
	if got := NextPriorityFilter(PriorityAny); got != PriorityFilterHigh {
		t.Fatalf("expected high after any, got %q", got)
	}
	if got := NextSortOrder(""); got != SortAlphabetical {
		t.Fatalf("expected alpha after default sort, got %q", got)
	}
	if got := NextSortOrder(SortPriority); got != SortRecency {
		t.Fatalf("expected wrap to date, got %q", got)
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityHigh.Rank() < PriorityMedium.Rank() && PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Fatalf("expected high < medium < low")
	}
	if Priority("urgent").Valid() {
		t.Fatalf("expected unknown priority to be invalid")
	}
}
