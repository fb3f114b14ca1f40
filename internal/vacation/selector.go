// Package vacation holds the pure countdown logic: picking the active
// vacation window out of a catalog and turning it into a progress state.
// Nothing here touches the network, the settings store or the wall clock.
package vacation

import (
	"errors"
	"sort"
	"time"

	"vacances/internal/model"
)

// ErrEmptyCatalog is returned when the catalog holds no vacation at all.
// It differs from "no more vacations this year", which is a nil window
// with a nil error.
var ErrEmptyCatalog = errors.New("vacation: empty catalog")

// ApplyOverrides returns a copy of records where each record named in
// overrides has its start and/or end replaced by the override's present
// sides. The input slice is left untouched.
func ApplyOverrides(records []model.VacationRecord, overrides map[string]model.Override) []model.VacationRecord {
	out := make([]model.VacationRecord, len(records))
	for i, r := range records {
		if ov, ok := overrides[r.Name]; ok {
			if ov.StartDate != nil {
				r.Start = *ov.StartDate
			}
			if ov.EndDate != nil {
				r.End = *ov.EndDate
			}
		}
		out[i] = r
	}
	return out
}

// SortByStart orders records by start, keeping catalog order for equal starts.
func SortByStart(records []model.VacationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Start.Before(records[j].Start)
	})
}

// Resolve applies overrides and sorts the result. It is the catalog view
// the selector works on, also used for exports.
func Resolve(records []model.VacationRecord, overrides map[string]model.Override) []model.VacationRecord {
	resolved := ApplyOverrides(records, overrides)
	SortByStart(resolved)
	return resolved
}

// SelectActiveWindow picks the vacation in progress at now or, failing
// that, the next one to come.
//
// For an upcoming vacation, Last is the end of the vacation right before it
// in start order, or schoolYearStart when it is the first of the list.
// A nil window with a nil error means every vacation is already over.
// Overlapping ranges are not rejected; the first match in start order wins.
func SelectActiveWindow(records []model.VacationRecord, now time.Time, overrides map[string]model.Override, schoolYearStart time.Time) (*model.ActiveWindow, error) {
	if len(records) == 0 {
		return nil, ErrEmptyCatalog
	}

	sorted := Resolve(records, overrides)

	for _, r := range sorted {
		if !now.Before(r.Start) && now.Before(r.End) {
			return &model.ActiveWindow{
				Name:    r.Name,
				Start:   r.Start,
				End:     r.End,
				Current: true,
			}, nil
		}
	}

	for i, r := range sorted {
		if !r.Start.After(now) {
			continue
		}
		last := schoolYearStart
		if i > 0 {
			last = sorted[i-1].End
		}
		return &model.ActiveWindow{
			Name:    r.Name,
			Start:   r.Start,
			Last:    last,
			Current: false,
		}, nil
	}

	return nil, nil
}
