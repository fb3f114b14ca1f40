package web

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	ical "github.com/arran4/golang-ical"

	"vacances/internal/model"
)

// BuildICS renders the resolved catalog (overrides applied) as an
// iCalendar feed, one VEVENT per vacation.
func BuildICS(records []model.VacationRecord, calName string, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//vacances//Calendrier scolaire//FR")
	if calName != "" {
		cal.SetXWRCalName(calName)
	}

	for _, r := range records {
		ev := cal.AddEvent(eventUID(r))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(r.Name)
		ev.SetStartAt(r.Start.UTC())
		ev.SetEndAt(r.End.UTC())
	}

	return cal.Serialize()
}

func eventUID(r model.VacationRecord) string {
	slug := strings.Map(func(c rune) rune {
		switch {
		case c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)):
			return unicode.ToLower(c)
		case c == ' ' || c == '-' || c == '\'':
			return '-'
		default:
			return -1
		}
	}, r.Name)
	return fmt.Sprintf("%s-%s@vacances", slug, r.Start.UTC().Format("20060102"))
}
