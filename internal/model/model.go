package model

import (
	"encoding/json"
	"strings"
	"time"

	appLog "vacances/internal/log"
)

// Zone is one of the three French academic zones.
type Zone string

const (
	ZoneA Zone = "A"
	ZoneB Zone = "B"
	ZoneC Zone = "C"
)

// Valid reports whether z is one of A, B or C.
func (z Zone) Valid() bool {
	switch z {
	case ZoneA, ZoneB, ZoneC:
		return true
	}
	return false
}

// DatasetLabel is the value used by the dataset's `zones` column ("Zone C").
func (z Zone) DatasetLabel() string {
	return "Zone " + string(z)
}

// RoundingMethod controls how the days count of the remaining label is rounded.
type RoundingMethod string

const (
	RoundFloor RoundingMethod = "floor"
	RoundRound RoundingMethod = "round"
	RoundCeil  RoundingMethod = "ceil"
)

// ParseRoundingMethod normalizes s, falling back to RoundRound for unknown values.
func ParseRoundingMethod(s string) RoundingMethod {
	switch RoundingMethod(strings.ToLower(strings.TrimSpace(s))) {
	case RoundFloor:
		return RoundFloor
	case RoundCeil:
		return RoundCeil
	default:
		return RoundRound
	}
}

// LabelStyle selects the remaining-time rendering ("59s" vs "59 secondes").
type LabelStyle string

const (
	LabelCompact LabelStyle = "compact"
	LabelLong    LabelStyle = "long"
)

// VacationRecord is a named vacation period [Start, End).
type VacationRecord struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Override replaces one or both boundaries of a fetched record.
// A nil side keeps the fetched value.
type Override struct {
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// UnmarshalJSON decodes each side on its own. A missing, empty or
// unparseable date leaves that side nil, so the fetched value applies.
// Dates are RFC 3339 or date-only (UTC midnight).
func (o *Override) UnmarshalJSON(data []byte) error {
	*o = Override{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		appLog.Warn("ignoring malformed override", "value", string(data))
		return nil
	}
	o.StartDate = parseOverrideDate("start_date", fields["start_date"])
	o.EndDate = parseOverrideDate("end_date", fields["end_date"])
	return nil
}

func parseOverrideDate(field string, raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		appLog.Warn("ignoring override date", "field", field, "value", string(raw))
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	appLog.Warn("ignoring override date", "field", field, "value", s)
	return nil
}

// Empty reports whether the override changes nothing.
func (o Override) Empty() bool {
	return o.StartDate == nil && o.EndDate == nil
}

// ActiveWindow is the resolved vacation state.
//
// When Current is true, Start/End describe the vacation in progress.
// Otherwise Start is the upcoming vacation start and Last is the reference
// point the countdown started from (end of the previous vacation, or the
// school-year start).
type ActiveWindow struct {
	Name    string    `json:"name"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end,omitzero"`
	Last    time.Time `json:"last,omitzero"`
	Current bool      `json:"current"`
}

// ProgressState is the per-tick derived display state.
type ProgressState struct {
	Percentage     float64 `json:"percentage"`
	RemainingLabel string  `json:"remaining_label"`
	// Malformed is set when the reference interval has a non-positive length.
	Malformed bool `json:"malformed,omitempty"`
}
