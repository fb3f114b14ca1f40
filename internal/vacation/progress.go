package vacation

import (
	"math"
	"strconv"
	"time"

	"vacances/internal/model"
)

const day = 24 * time.Hour

// Tick computes the progress state of window at now.
//
// A vacation in progress, or an upcoming one whose start has been reached,
// is pinned to 100% with a zero-duration label. Otherwise the percentage is
// the elapsed share of [Last, Start], clamped to [0, 100]. A non-positive
// interval yields 0% with Malformed set.
func Tick(window model.ActiveWindow, now time.Time, policy model.RoundingMethod, style model.LabelStyle) model.ProgressState {
	if window.Current || !now.Before(window.Start) {
		return model.ProgressState{
			Percentage:     100,
			RemainingLabel: RemainingLabel(0, policy, style),
		}
	}

	state := model.ProgressState{
		RemainingLabel: RemainingLabel(window.Start.Sub(now), policy, style),
	}

	total := window.Start.Sub(window.Last)
	if total <= 0 {
		state.Malformed = true
		return state
	}

	elapsed := now.Sub(window.Last)
	state.Percentage = clamp(float64(elapsed)/float64(total)*100, 0, 100)
	return state
}

// RemainingLabel formats a remaining duration in the coarsest unit it
// reaches: seconds below a minute, minutes below an hour, hours below a day,
// days otherwise. Only the days count goes through policy; finer units are
// truncated. Negative durations render as zero.
func RemainingLabel(remaining time.Duration, policy model.RoundingMethod, style model.LabelStyle) string {
	ms := remaining.Milliseconds()
	if ms < 0 {
		ms = 0
	}

	var (
		count int64
		u     unit
	)
	switch {
	case ms < time.Minute.Milliseconds():
		count, u = ms/time.Second.Milliseconds(), unitSecond
	case ms < time.Hour.Milliseconds():
		count, u = ms/time.Minute.Milliseconds(), unitMinute
	case ms < day.Milliseconds():
		count, u = ms/time.Hour.Milliseconds(), unitHour
	default:
		count, u = int64(roundDays(float64(ms)/float64(day.Milliseconds()), policy)), unitDay
	}

	return u.format(count, style)
}

// DisplayPercentage renders p for the countdown page: "100" once reached,
// otherwise truncated to four decimals.
func DisplayPercentage(p float64) string {
	if p >= 100 {
		return "100"
	}
	return TruncateToDecimals(p, 4)
}

// TruncateToDecimals drops (never rounds) digits past the given number of
// decimals and zero-pads the result: 99.99996 -> "99.9999".
func TruncateToDecimals(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	if decimals < 0 {
		decimals = 0
	}
	factor := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Trunc(v*factor)/factor, 'f', decimals, 64)
}

func roundDays(days float64, policy model.RoundingMethod) float64 {
	switch policy {
	case model.RoundFloor:
		return math.Floor(days)
	case model.RoundCeil:
		return math.Ceil(days)
	default:
		return math.Round(days)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

type unit struct {
	short    string
	singular string
	plural   string
}

var (
	unitSecond = unit{short: "s", singular: "seconde", plural: "secondes"}
	unitMinute = unit{short: "m", singular: "minute", plural: "minutes"}
	unitHour   = unit{short: "h", singular: "heure", plural: "heures"}
	unitDay    = unit{short: "j", singular: "jour", plural: "jours"}
)

func (u unit) format(count int64, style model.LabelStyle) string {
	n := strconv.FormatInt(count, 10)
	if style == model.LabelLong {
		if count <= 1 {
			return n + " " + u.singular
		}
		return n + " " + u.plural
	}
	return n + u.short
}
