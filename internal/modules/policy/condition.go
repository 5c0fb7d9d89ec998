// README: Pure condition evaluation against an instant and a holiday calendar.
package policy

import (
	"strconv"
	"strings"
	"time"

	"gatehouse/internal/types"
)

// Calendar answers whether a date is a holiday for a site. A nil site id on
// the policy consults the global calendar entries only.
type Calendar interface {
	IsHoliday(siteID *types.ID, date time.Time) bool
}

var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// Matches reports whether the condition holds at instant. Present fields are
// combined per MatchType (AND unless set to OR); a condition with no fields
// set always matches.
func (c Condition) Matches(instant time.Time, siteID *types.ID, cal Calendar) bool {
	var checks []bool

	if len(c.Days) > 0 {
		checks = append(checks, containsWeekday(c.Days, instant.Weekday()))
	}
	if c.TimeRange != nil {
		checks = append(checks, c.TimeRange.Contains(instant))
	}
	if c.IsHoliday != nil {
		holiday := cal != nil && cal.IsHoliday(siteID, instant)
		checks = append(checks, holiday == *c.IsHoliday)
	}
	if len(c.TargetDates) > 0 {
		checks = append(checks, containsDate(c.TargetDates, instant))
	}

	if len(checks) == 0 {
		return true
	}
	if c.MatchType == MatchOr {
		for _, ok := range checks {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

// Contains reports whether the time-of-day of instant falls in the range.
// Start is inclusive, end exclusive; start > end wraps past midnight.
func (r TimeRange) Contains(instant time.Time) bool {
	start, okS := minuteOfDay(r.Start)
	end, okE := minuteOfDay(r.End)
	if !okS || !okE {
		return false
	}
	m := instant.Hour()*60 + instant.Minute()
	switch {
	case start == end:
		return true // degenerate range covers the whole day
	case start < end:
		return m >= start && m < end
	default:
		return m >= start || m < end
	}
}

func minuteOfDay(hhmm string) (int, bool) {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	min, err := strconv.Atoi(m)
	if err != nil || min < 0 || min > 59 {
		return 0, false
	}
	return hour*60 + min, true
}

func containsWeekday(days []string, wd time.Weekday) bool {
	for _, d := range days {
		if w, ok := weekdays[strings.ToUpper(strings.TrimSpace(d))]; ok && w == wd {
			return true
		}
	}
	return false
}

func containsDate(dates []string, instant time.Time) bool {
	day := instant.Format("2006-01-02")
	for _, d := range dates {
		if strings.TrimSpace(d) == day {
			return true
		}
	}
	return false
}

// FirstMatch returns the highest-priority policy whose condition matches.
// The input must already be ordered priority DESC (ActivePolicies order).
func FirstMatch(policies []Policy, instant time.Time, cal Calendar) *Policy {
	for i := range policies {
		if policies[i].Condition.Matches(instant, policies[i].SiteID, cal) {
			return &policies[i]
		}
	}
	return nil
}

// FilterMatching keeps the policies whose condition matches, preserving order.
func FilterMatching(policies []Policy, instant time.Time, cal Calendar) []Policy {
	out := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if p.Condition.Matches(instant, p.SiteID, cal) {
			out = append(out, p)
		}
	}
	return out
}
