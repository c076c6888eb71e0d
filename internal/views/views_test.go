package views

import (
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/jobtrack/internal/jobs"
)

func d(y int, m time.Month, day int) jobs.Date { return jobs.NewDate(y, m, day) }

func job(id, company, position string, status jobs.Status, applied jobs.Date) jobs.Job {
	return jobs.Job{
		ID:            id,
		CompanyName:   company,
		PositionTitle: position,
		Status:        status,
		DateApplied:   applied,
	}
}

func ids(list []jobs.Job) []string {
	out := make([]string, len(list))
	for i, j := range list {
		out[i] = j.ID
	}
	return out
}

func sample() []jobs.Job {
	a := job("a", "Google Inc", "SRE", jobs.StatusApplied, d(2025, 1, 5))
	a.Location = "Zurich"
	b := job("b", "acme", "Backend Engineer", jobs.StatusOffer, d(2025, 1, 10))
	b.EmailUsed = "me+acme@example.com"
	c := job("c", "Beta", "android dev", jobs.StatusApplied, d(2024, 12, 1))
	return []jobs.Job{a, b, c}
}

func TestFilterAndSortAllReturnsEverythingSorted(t *testing.T) {
	got := FilterAndSort(sample(), DefaultQuery())
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}

	got = FilterAndSort(sample(), Query{Status: StatusAll, SortField: SortDateApplied, SortOrder: Asc})
	if want := []string{"c", "a", "b"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("asc ids = %v, want %v", ids(got), want)
	}
}

func TestFilterAndSortSearchCaseInsensitive(t *testing.T) {
	q := DefaultQuery()
	q.Search = "google"
	got := FilterAndSort(sample(), q)
	if want := []string{"a"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("search google = %v, want %v", ids(got), want)
	}

	for term, want := range map[string][]string{
		"ZURICH":   {"a"},
		"+acme@":   {"b"},
		"ENGINEER": {"b"},
		"nothing":  {},
		"":         {"b", "a", "c"},
	} {
		q.Search = term
		if got := ids(FilterAndSort(sample(), q)); !reflect.DeepEqual(got, want) {
			t.Errorf("search %q = %v, want %v", term, got, want)
		}
	}
}

func TestFilterAndSortStatus(t *testing.T) {
	q := DefaultQuery()
	q.Status = jobs.StatusApplied
	if got, want := ids(FilterAndSort(sample(), q)), []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("status Applied = %v, want %v", got, want)
	}
	q.Status = jobs.StatusRejected
	if got := FilterAndSort(sample(), q); len(got) != 0 {
		t.Errorf("status Rejected = %v, want none", ids(got))
	}
}

func TestFilterAndSortTextFields(t *testing.T) {
	q := Query{Status: StatusAll, SortField: SortCompanyName, SortOrder: Asc}
	if got, want := ids(FilterAndSort(sample(), q)), []string{"b", "c", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("company asc = %v, want %v", got, want)
	}
	q = Query{Status: StatusAll, SortField: SortPositionTitle, SortOrder: Desc}
	if got, want := ids(FilterAndSort(sample(), q)), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("position desc = %v, want %v", got, want)
	}
}

func TestFilterAndSortStableTies(t *testing.T) {
	list := []jobs.Job{
		job("1", "Same", "X", jobs.StatusApplied, d(2025, 1, 1)),
		job("2", "same", "Y", jobs.StatusApplied, d(2025, 1, 1)),
		job("3", "SAME", "Z", jobs.StatusApplied, d(2025, 1, 1)),
	}
	for _, q := range []Query{
		{SortField: SortCompanyName, SortOrder: Asc},
		{SortField: SortCompanyName, SortOrder: Desc},
		{SortField: SortDateApplied, SortOrder: Desc},
	} {
		if got, want := ids(FilterAndSort(list, q)), []string{"1", "2", "3"}; !reflect.DeepEqual(got, want) {
			t.Errorf("%+v: ties reordered to %v", q, got)
		}
	}
}

func TestFilterAndSortDoesNotMutate(t *testing.T) {
	list := sample()
	before := ids(list)
	FilterAndSort(list, Query{Status: StatusAll, SortField: SortCompanyName, SortOrder: Asc})
	if !reflect.DeepEqual(ids(list), before) {
		t.Errorf("input reordered: %v -> %v", before, ids(list))
	}
}

func TestStatusCounts(t *testing.T) {
	list := []jobs.Job{
		job("A", "A", "p", jobs.StatusApplied, d(2025, 1, 5)),
		job("B", "B", "p", jobs.StatusOffer, d(2025, 1, 10)),
	}
	want := map[jobs.Status]int{
		jobs.StatusApplied:   1,
		jobs.StatusOffer:     1,
		jobs.StatusWishlist:  0,
		jobs.StatusInterview: 0,
		jobs.StatusRejected:  0,
		jobs.StatusArchived:  0,
	}
	if got := StatusCounts(list); !reflect.DeepEqual(got, want) {
		t.Errorf("StatusCounts = %v, want %v", got, want)
	}
	if got := StatusCounts(nil); len(got) != 6 || got[jobs.StatusApplied] != 0 {
		t.Errorf("StatusCounts(nil) = %v", got)
	}
}

func withFollowUp(id string, f jobs.Date) jobs.Job {
	j := job(id, "C", "P", jobs.StatusApplied, d(2024, 12, 1))
	j.FollowUpDate = &f
	return j
}

func TestUpcomingFollowUps(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []jobs.Job{
		withFollowUp("day0", d(2025, 1, 1)),
		withFollowUp("day7", d(2025, 1, 8)),
		withFollowUp("day8", d(2025, 1, 9)),
		withFollowUp("past", d(2024, 12, 31)),
		job("none", "C", "P", jobs.StatusApplied, d(2025, 1, 1)),
	}
	if got, want := ids(UpcomingFollowUps(list, now)), []string{"day0", "day7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("UpcomingFollowUps = %v, want %v", got, want)
	}
}

func TestUpcomingFollowUpsLaterToday(t *testing.T) {
	// Midday: today's follow-up is -0.5 days away, which rounds up to day 0.
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	list := []jobs.Job{withFollowUp("today", d(2025, 1, 1)), withFollowUp("yesterday", d(2024, 12, 31))}
	if got, want := ids(UpcomingFollowUps(list, now)), []string{"today"}; !reflect.DeepEqual(got, want) {
		t.Errorf("UpcomingFollowUps = %v, want %v", got, want)
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !IsOverdue(d(2024, 12, 31).Ptr(), now) {
		t.Error("2024-12-31 should be overdue on 2025-01-01")
	}
	if IsOverdue(d(2025, 1, 2).Ptr(), now) {
		t.Error("2025-01-02 should not be overdue on 2025-01-01")
	}
	if IsOverdue(nil, now) {
		t.Error("nil follow-up should never be overdue")
	}
}

func TestIsDueSoon(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		f    *jobs.Date
		want bool
	}{
		{d(2025, 1, 1).Ptr(), true},
		{d(2025, 1, 8).Ptr(), true},
		{d(2025, 1, 9).Ptr(), false},
		{d(2024, 12, 31).Ptr(), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsDueSoon(tt.f, now); got != tt.want {
			t.Errorf("IsDueSoon(%v) = %v, want %v", tt.f, got, tt.want)
		}
	}
}

func TestFollowUpStateOf(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		f    *jobs.Date
		want FollowUpState
	}{
		{nil, FollowUpNone},
		{d(2024, 12, 1).Ptr(), FollowUpOverdue},
		{d(2025, 1, 3).Ptr(), FollowUpSoon},
		{d(2025, 3, 1).Ptr(), FollowUpLater},
	}
	for _, tt := range tests {
		if got := FollowUpStateOf(tt.f, now); got != tt.want {
			t.Errorf("FollowUpStateOf(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestRecentApplicationsCount(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	var list []jobs.Job
	for n := 2; n <= 10; n++ {
		list = append(list, job("", "C", "P", jobs.StatusApplied, d(2025, 1, n)))
	}
	// 2025-01-03 through 2025-01-10 count; 2025-01-02 does not.
	if got := RecentApplicationsCount(list, now); got != 8 {
		t.Errorf("RecentApplicationsCount = %d, want 8", got)
	}
	if got := RecentApplicationsCount(nil, now); got != 0 {
		t.Errorf("RecentApplicationsCount(nil) = %d", got)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	list := sample()
	list[0].FollowUpDate = d(2025, 1, 12).Ptr()

	got := Summarize(list, now)
	if got.Total != 3 {
		t.Errorf("Total = %d", got.Total)
	}
	if got.ByStatus[jobs.StatusApplied] != 2 || got.ByStatus[jobs.StatusOffer] != 1 {
		t.Errorf("ByStatus = %v", got.ByStatus)
	}
	if got.ThisWeek != 2 {
		t.Errorf("ThisWeek = %d, want 2", got.ThisWeek)
	}
	if len(got.FollowUps) != 1 || got.FollowUps[0].ID != "a" {
		t.Errorf("FollowUps = %v", ids(got.FollowUps))
	}

	empty := Summarize(nil, now)
	if empty.Total != 0 || empty.ThisWeek != 0 || len(empty.FollowUps) != 0 {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}

func TestToggleSort(t *testing.T) {
	q := DefaultQuery()
	q = ToggleSort(q, SortDateApplied)
	if q.SortField != SortDateApplied || q.SortOrder != Asc {
		t.Errorf("same field should flip: %+v", q)
	}
	q = ToggleSort(q, SortCompanyName)
	if q.SortField != SortCompanyName || q.SortOrder != Asc {
		t.Errorf("new field should start asc: %+v", q)
	}
	q = ToggleSort(q, SortCompanyName)
	if q.SortOrder != Desc {
		t.Errorf("second toggle should be desc: %+v", q)
	}
}

func TestParsers(t *testing.T) {
	if f, err := ParseSortField("Company"); err != nil || f != SortCompanyName {
		t.Errorf("ParseSortField(Company) = %q, %v", f, err)
	}
	if _, err := ParseSortField("salary"); err == nil {
		t.Error("ParseSortField(salary) should fail")
	}
	if o, err := ParseSortOrder(""); err != nil || o != Desc {
		t.Errorf("ParseSortOrder(\"\") = %q, %v", o, err)
	}
	if _, err := ParseSortOrder("up"); err == nil {
		t.Error("ParseSortOrder(up) should fail")
	}
	if s, err := ParseStatusFilter("all"); err != nil || s != StatusAll {
		t.Errorf("ParseStatusFilter(all) = %q, %v", s, err)
	}
	if s, err := ParseStatusFilter("offer"); err != nil || s != jobs.StatusOffer {
		t.Errorf("ParseStatusFilter(offer) = %q, %v", s, err)
	}
}
