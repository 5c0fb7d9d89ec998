// README: Holiday rows and the in-memory calendar built from them.
package policy

import (
	"time"

	"gatehouse/internal/types"
)

type Holiday struct {
	SiteID      *types.ID // nil applies to all sites
	Date        time.Time
	IsRecurring bool // recurring matches month/day regardless of year
}

// HolidayCalendar is a point-in-time snapshot of holiday rows, loaded per
// computation so evaluators stay pure.
type HolidayCalendar struct {
	exact     map[string]struct{} // "site|2006-01-02"
	recurring map[string]struct{} // "site|01-02"
}

func NewCalendar(rows []Holiday) *HolidayCalendar {
	cal := &HolidayCalendar{
		exact:     make(map[string]struct{}, len(rows)),
		recurring: make(map[string]struct{}),
	}
	for _, h := range rows {
		if h.IsRecurring {
			cal.recurring[siteKey(h.SiteID)+"|"+h.Date.Format("01-02")] = struct{}{}
			continue
		}
		cal.exact[siteKey(h.SiteID)+"|"+h.Date.Format("2006-01-02")] = struct{}{}
	}
	return cal
}

func (c *HolidayCalendar) IsHoliday(siteID *types.ID, date time.Time) bool {
	day := date.Format("2006-01-02")
	monthDay := date.Format("01-02")
	for _, key := range []string{siteKey(nil), siteKey(siteID)} {
		if _, ok := c.exact[key+"|"+day]; ok {
			return true
		}
		if _, ok := c.recurring[key+"|"+monthDay]; ok {
			return true
		}
	}
	return false
}

func siteKey(siteID *types.ID) string {
	if siteID == nil {
		return "*"
	}
	return string(*siteID)
}
