package vacation

import (
	"strconv"
	"time"
)

// SchoolYear is the academic year running from September of StartYear to
// the summer of StartYear+1.
type SchoolYear struct {
	StartYear int
}

// SchoolYearAt returns the school year that contains now, as seen in loc.
// September and later belong to the year starting in the same calendar year.
func SchoolYearAt(now time.Time, loc *time.Location) SchoolYear {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	if local.Month() >= time.September {
		return SchoolYear{StartYear: local.Year()}
	}
	return SchoolYear{StartYear: local.Year() - 1}
}

// Label renders the dataset's annee_scolaire value, e.g. "2024-2025".
func (y SchoolYear) Label() string {
	return strconv.Itoa(y.StartYear) + "-" + strconv.Itoa(y.StartYear+1)
}

// Start is September 1st of StartYear at midnight in loc (la rentrée).
func (y SchoolYear) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(y.StartYear, time.September, 1, 0, 0, 0, 0, loc)
}
