// README: Base fee calculation from an entry/exit interval and a fee rule.
package billing

import (
	"time"

	"gatehouse/internal/modules/policy"
)

// BaseFee computes the pre-discount fee for the interval under rule.
// Duration rounds up to whole minutes; a duration within grace time is free.
func BaseFee(entry, exit time.Time, rule policy.FeeRule) int64 {
	return FeeForMinutes(ceilMinutes(exit.Sub(entry)), entry, rule)
}

// FeeForMinutes prices a duration anchored at entry. The anchor matters only
// when daily_max_fee is set: the interval is then split on calendar-day
// boundaries, the entry day billed with the full base formula, later days as
// unit charges, and each day capped independently before summing.
func FeeForMinutes(minutes int, entry time.Time, rule policy.FeeRule) int64 {
	if minutes <= 0 {
		return 0
	}
	if minutes <= rule.GraceTimeMinutes {
		return 0
	}
	if rule.DailyMaxFee == nil {
		return linearFee(minutes, rule)
	}

	total := int64(0)
	cur := entry
	end := entry.Add(time.Duration(minutes) * time.Minute)
	firstDay := true
	for cur.Before(end) {
		dayEnd := startOfNextDay(cur)
		segEnd := dayEnd
		if end.Before(dayEnd) {
			segEnd = end
		}
		segMinutes := ceilMinutes(segEnd.Sub(cur))

		var fee int64
		if firstDay {
			fee = linearFee(segMinutes, rule)
		} else {
			fee = unitCharge(segMinutes, rule)
		}
		if fee > *rule.DailyMaxFee {
			fee = *rule.DailyMaxFee
		}
		total += fee

		cur = segEnd
		firstDay = false
	}
	return total
}

// linearFee is the single-day formula: free within base time, then
// base_fee + ceil(billable/unit_time) * unit_fee.
func linearFee(minutes int, rule policy.FeeRule) int64 {
	billable := minutes - rule.BaseTimeMinutes
	if billable <= 0 {
		return 0
	}
	return rule.BaseFee + unitCharge(billable, rule)
}

func unitCharge(minutes int, rule policy.FeeRule) int64 {
	if minutes <= 0 || rule.UnitTimeMinutes <= 0 {
		return 0
	}
	units := (minutes + rule.UnitTimeMinutes - 1) / rule.UnitTimeMinutes
	return int64(units) * rule.UnitFee
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

func startOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
