// Package views computes read-only projections over a snapshot of jobs:
// filtered and sorted lists, status counts and follow-up reminders.
//
// Every function is pure and never modifies its input slice.
package views

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/jobtrack/internal/jobs"
)

// SortField selects the column a list is ordered by.
type SortField string

const (
	SortDateApplied   SortField = "dateApplied"
	SortCompanyName   SortField = "companyName"
	SortPositionTitle SortField = "positionTitle"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// StatusAll is the status filter that matches every record.
const StatusAll jobs.Status = "All"

// FollowUpWindow is how many days ahead a follow-up counts as upcoming.
const FollowUpWindow = 7

const day = 24 * time.Hour

// Query holds the list view parameters.
type Query struct {
	Search    string
	Status    jobs.Status
	SortField SortField
	SortOrder SortOrder
}

// DefaultQuery lists everything, newest application first.
func DefaultQuery() Query {
	return Query{Status: StatusAll, SortField: SortDateApplied, SortOrder: Desc}
}

// FilterAndSort returns the records matching q in q's order. Records that
// compare equal keep their input order.
func FilterAndSort(list []jobs.Job, q Query) []jobs.Job {
	term := strings.ToLower(q.Search)
	out := make([]jobs.Job, 0, len(list))
	for _, j := range list {
		if q.Status != "" && q.Status != StatusAll && j.Status != q.Status {
			continue
		}
		if term != "" && !matches(j, term) {
			continue
		}
		out = append(out, j)
	}

	less := lessFunc(q.SortField)
	desc := q.SortOrder == Desc
	sort.SliceStable(out, func(a, b int) bool {
		if desc {
			return less(out[b], out[a])
		}
		return less(out[a], out[b])
	})
	return out
}

func matches(j jobs.Job, term string) bool {
	for _, field := range []string{j.CompanyName, j.PositionTitle, j.Location, j.EmailUsed} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func lessFunc(f SortField) func(a, b jobs.Job) bool {
	switch f {
	case SortCompanyName:
		return func(a, b jobs.Job) bool {
			return strings.ToLower(a.CompanyName) < strings.ToLower(b.CompanyName)
		}
	case SortPositionTitle:
		return func(a, b jobs.Job) bool {
			return strings.ToLower(a.PositionTitle) < strings.ToLower(b.PositionTitle)
		}
	default:
		return func(a, b jobs.Job) bool {
			return a.DateApplied.Before(b.DateApplied.Time)
		}
	}
}

// ToggleSort applies a click on a column header: the current field flips
// its order, a new field starts ascending.
func ToggleSort(q Query, field SortField) Query {
	if q.SortField == field {
		if q.SortOrder == Asc {
			q.SortOrder = Desc
		} else {
			q.SortOrder = Asc
		}
		return q
	}
	q.SortField = field
	q.SortOrder = Asc
	return q
}

// ParseSortField accepts the field names case-insensitively, plus the short
// forms "date", "company" and "position".
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date", "dateapplied":
		return SortDateApplied, nil
	case "company", "companyname":
		return SortCompanyName, nil
	case "position", "positiontitle":
		return SortPositionTitle, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// ParseSortOrder accepts "asc" or "desc"; empty means descending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return Asc, nil
	case "", "desc":
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// ParseStatusFilter accepts a status name or "all"; empty means all.
func ParseStatusFilter(s string) (jobs.Status, error) {
	if s = strings.TrimSpace(s); s == "" || strings.EqualFold(s, string(StatusAll)) {
		return StatusAll, nil
	}
	return jobs.ParseStatus(s)
}

// StatusCounts counts records per status. Every known status has a key.
func StatusCounts(list []jobs.Job) map[jobs.Status]int {
	counts := make(map[jobs.Status]int, len(jobs.Statuses()))
	for _, s := range jobs.Statuses() {
		counts[s] = 0
	}
	for _, j := range list {
		counts[j.Status]++
	}
	return counts
}

// daysUntil is (followUp - now) in days, rounded up.
func daysUntil(followUp jobs.Date, now time.Time) float64 {
	return math.Ceil(float64(followUp.Sub(now)) / float64(day))
}

func inWindow(followUp jobs.Date, now time.Time) bool {
	d := daysUntil(followUp, now)
	return d >= 0 && d <= FollowUpWindow
}

// UpcomingFollowUps returns records whose follow-up falls between today and
// FollowUpWindow days from now, rounding partial days up.
func UpcomingFollowUps(list []jobs.Job, now time.Time) []jobs.Job {
	out := []jobs.Job{}
	for _, j := range list {
		if j.FollowUpDate != nil && inWindow(*j.FollowUpDate, now) {
			out = append(out, j)
		}
	}
	return out
}

// IsOverdue reports whether followUp (taken as midnight UTC) is before now.
// A nil date is never overdue.
func IsOverdue(followUp *jobs.Date, now time.Time) bool {
	return followUp != nil && followUp.Before(now)
}

// IsDueSoon reports whether followUp is not overdue and within the window.
func IsDueSoon(followUp *jobs.Date, now time.Time) bool {
	return followUp != nil && !IsOverdue(followUp, now) && inWindow(*followUp, now)
}

// FollowUpState labels a follow-up date for display.
type FollowUpState string

const (
	FollowUpNone    FollowUpState = ""
	FollowUpOverdue FollowUpState = "overdue"
	FollowUpSoon    FollowUpState = "soon"
	FollowUpLater   FollowUpState = "later"
)

// FollowUpStateOf classifies followUp relative to now.
func FollowUpStateOf(followUp *jobs.Date, now time.Time) FollowUpState {
	switch {
	case followUp == nil:
		return FollowUpNone
	case IsOverdue(followUp, now):
		return FollowUpOverdue
	case IsDueSoon(followUp, now):
		return FollowUpSoon
	}
	return FollowUpLater
}

// RecentApplicationsCount counts records applied on or after seven calendar
// days before now.
func RecentApplicationsCount(list []jobs.Job, now time.Time) int {
	cutoff := now.AddDate(0, 0, -7)
	n := 0
	for _, j := range list {
		if !j.DateApplied.Before(cutoff) {
			n++
		}
	}
	return n
}

// Dashboard is the summary shown above the job list.
type Dashboard struct {
	Total     int                 `json:"total"`
	ByStatus  map[jobs.Status]int `json:"byStatus"`
	ThisWeek  int                 `json:"thisWeek"`
	FollowUps []jobs.Job          `json:"followUps"`
}

// Summarize builds the dashboard for list at now.
func Summarize(list []jobs.Job, now time.Time) Dashboard {
	return Dashboard{
		Total:     len(list),
		ByStatus:  StatusCounts(list),
		ThisWeek:  RecentApplicationsCount(list, now),
		FollowUps: UpcomingFollowUps(list, now),
	}
}
