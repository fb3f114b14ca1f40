package vacation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vacances/internal/model"
)

func upcoming() model.ActiveWindow {
	return model.ActiveWindow{
		Name:  "Vacances de Noël",
		Start: date(2024, 12, 21),
		Last:  date(2024, 11, 4),
	}
}

func TestTick_MonotonicUntilStartThenPinned(t *testing.T) {
	w := upcoming()
	prev := -1.0
	for now := w.Last.Add(-48 * time.Hour); now.Before(w.Start.Add(72 * time.Hour)); now = now.Add(7 * time.Hour) {
		p := Tick(w, now, model.RoundRound, model.LabelCompact)
		assert.GreaterOrEqual(t, p.Percentage, prev, "at %s", now)
		assert.GreaterOrEqual(t, p.Percentage, 0.0)
		assert.LessOrEqual(t, p.Percentage, 100.0)
		if !now.Before(w.Start) {
			assert.Equal(t, 100.0, p.Percentage)
			assert.Equal(t, "0s", p.RemainingLabel)
		}
		prev = p.Percentage
	}
}

func TestTick_BeforeLastClampsToZero(t *testing.T) {
	p := Tick(upcoming(), date(2024, 10, 1), model.RoundRound, model.LabelCompact)
	assert.Equal(t, 0.0, p.Percentage)
	assert.False(t, p.Malformed)
}

func TestTick_CurrentIsPolicyIndependent(t *testing.T) {
	w := model.ActiveWindow{Name: "x", Start: date(2024, 10, 19), End: date(2024, 11, 4), Current: true}
	for _, policy := range []model.RoundingMethod{model.RoundFloor, model.RoundRound, model.RoundCeil} {
		p := Tick(w, date(2024, 10, 20), policy, model.LabelLong)
		assert.Equal(t, 100.0, p.Percentage)
		assert.Equal(t, "0 seconde", p.RemainingLabel)
	}
}

func TestTick_MalformedIntervalDoesNotProduceNaN(t *testing.T) {
	w := model.ActiveWindow{Name: "x", Start: date(2024, 12, 21), Last: date(2024, 12, 21)}
	p := Tick(w, date(2024, 12, 1), model.RoundRound, model.LabelCompact)
	assert.True(t, p.Malformed)
	assert.Equal(t, 0.0, p.Percentage)
	assert.False(t, math.IsNaN(p.Percentage))
	assert.Equal(t, "20j", p.RemainingLabel)

	w.Last = date(2024, 12, 30)
	p = Tick(w, date(2024, 12, 1), model.RoundRound, model.LabelCompact)
	assert.True(t, p.Malformed)
	assert.Equal(t, 0.0, p.Percentage)
}

func TestRemainingLabel_Buckets(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		compact   string
		long      string
	}{
		{"zero", 0, "0s", "0 seconde"},
		{"one second", time.Second, "1s", "1 seconde"},
		{"seconds bucket upper edge", 59999 * time.Millisecond, "59s", "59 secondes"},
		{"minutes bucket lower edge", 60000 * time.Millisecond, "1m", "1 minute"},
		{"minutes truncate", 119 * time.Second, "1m", "1 minute"},
		{"hours", 3*time.Hour + 59*time.Minute, "3h", "3 heures"},
		{"hours upper edge", day - time.Millisecond, "23h", "23 heures"},
		{"one day", day, "1j", "1 jour"},
		{"negative", -time.Minute, "0s", "0 seconde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.compact, RemainingLabel(tt.remaining, model.RoundRound, model.LabelCompact))
			assert.Equal(t, tt.long, RemainingLabel(tt.remaining, model.RoundRound, model.LabelLong))
		})
	}
}

func TestRemainingLabel_DaysRounding(t *testing.T) {
	threePointSeven := 3*day + 17*time.Hour + 48*time.Minute
	threePointTwo := 3*day + 4*time.Hour + 48*time.Minute

	assert.Equal(t, "3j", RemainingLabel(threePointSeven, model.RoundFloor, model.LabelCompact))
	assert.Equal(t, "4j", RemainingLabel(threePointSeven, model.RoundRound, model.LabelCompact))
	assert.Equal(t, "4j", RemainingLabel(threePointSeven, model.RoundCeil, model.LabelCompact))

	assert.Equal(t, "3j", RemainingLabel(threePointTwo, model.RoundRound, model.LabelCompact))
	assert.Equal(t, "4 jours", RemainingLabel(threePointTwo, model.RoundCeil, model.LabelLong))

	// 1.2 days floors to a singular count.
	assert.Equal(t, "1 jour", RemainingLabel(day+5*time.Hour, model.RoundFloor, model.LabelLong))
}

func TestTruncateToDecimals(t *testing.T) {
	assert.Equal(t, "99.9999", TruncateToDecimals(99.99996, 4))
	assert.Equal(t, "50.0000", TruncateToDecimals(50, 4))
	assert.Equal(t, "12.3456", TruncateToDecimals(12.345678, 4))
	assert.Equal(t, "0.0000", TruncateToDecimals(math.NaN(), 4))
	assert.Equal(t, "7", TruncateToDecimals(7.9, 0))
}

func TestDisplayPercentage(t *testing.T) {
	assert.Equal(t, "100", DisplayPercentage(100))
	assert.Equal(t, "99.9999", DisplayPercentage(99.99996))
}
