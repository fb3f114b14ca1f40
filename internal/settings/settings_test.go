package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vacances/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state", "settings.json"))
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	st := newStore(t)

	s, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
	assert.Equal(t, model.ZoneC, s.Zone)
	assert.Equal(t, model.RoundRound, s.RoundingMethod)
	assert.NotNil(t, s.VacationOverrides)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := newStore(t)
	start := time.Date(2024, 10, 12, 0, 0, 0, 0, time.UTC)

	saved, err := st.Save(Settings{
		Zone:           model.ZoneA,
		RoundingMethod: model.RoundCeil,
		VacationOverrides: map[string]model.Override{
			"Vacances de la Toussaint": {StartDate: &start},
			"noop":                     {},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, saved.VacationOverrides, "noop")

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, model.ZoneA, loaded.Zone)
	assert.Equal(t, model.RoundCeil, loaded.RoundingMethod)
	require.Contains(t, loaded.VacationOverrides, "Vacances de la Toussaint")
	assert.True(t, start.Equal(*loaded.VacationOverrides["Vacances de la Toussaint"].StartDate))
	assert.Nil(t, loaded.VacationOverrides["Vacances de la Toussaint"].EndDate)

	info, err := os.Stat(st.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_UnknownValuesFallBack(t *testing.T) {
	st := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(st.Path()), 0o700))
	require.NoError(t, os.WriteFile(st.Path(), []byte(`{"settings":{"zone":"Z","roundingMethod":"trunc"}}`), 0o600))

	s, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, model.ZoneC, s.Zone)
	assert.Equal(t, model.RoundRound, s.RoundingMethod)
	assert.Empty(t, s.VacationOverrides)
}

func TestPutKeepsOtherKeys(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Put("theme", "dark"))
	_, err := st.Save(Defaults())
	require.NoError(t, err)

	var theme string
	found, err := st.Get("theme", &theme)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dark", theme)
}

func TestResetOverride(t *testing.T) {
	st := newStore(t)
	end := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	_, err := st.Save(Settings{
		Zone: model.ZoneB,
		VacationOverrides: map[string]model.Override{
			"Vacances de Noël":  {EndDate: &end},
			"Vacances d'Hiver": {EndDate: &end},
		},
	})
	require.NoError(t, err)

	s, err := st.ResetOverride("Vacances de Noël")
	require.NoError(t, err)
	assert.NotContains(t, s.VacationOverrides, "Vacances de Noël")
	assert.Contains(t, s.VacationOverrides, "Vacances d'Hiver")
	assert.Equal(t, model.ZoneB, s.Zone)
}

func TestLoad_CorruptStore(t *testing.T) {
	st := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(st.Path()), 0o700))
	require.NoError(t, os.WriteFile(st.Path(), []byte("{not json"), 0o600))

	s, err := st.Load()
	assert.Error(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestCloneIsDeep(t *testing.T) {
	start := time.Date(2024, 10, 12, 0, 0, 0, 0, time.UTC)
	s := Settings{Zone: model.ZoneA, VacationOverrides: map[string]model.Override{"X": {StartDate: &start}}}

	c := s.Clone()
	*c.VacationOverrides["X"].StartDate = start.AddDate(0, 0, 1)
	delete(c.VacationOverrides, "X")

	assert.Contains(t, s.VacationOverrides, "X")
	assert.Equal(t, start, *s.VacationOverrides["X"].StartDate)
}

func TestLoad_BadOverrideDateKeepsOtherSettings(t *testing.T) {
	st := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(st.Path()), 0o700))
	blob := `{"settings":{"zone":"A","roundingMethod":"ceil","vacationOverrides":{
		"Vacances de Noël":{"start_date":"","end_date":"2025-01-08"},
		"Vacances d'Hiver":{"start_date":"demain"},
		"Vacances de Printemps":"oops"}}}`
	require.NoError(t, os.WriteFile(st.Path(), []byte(blob), 0o600))

	s, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, model.ZoneA, s.Zone)
	assert.Equal(t, model.RoundCeil, s.RoundingMethod)

	require.Contains(t, s.VacationOverrides, "Vacances de Noël")
	noel := s.VacationOverrides["Vacances de Noël"]
	assert.Nil(t, noel.StartDate)
	require.NotNil(t, noel.EndDate)
	assert.Equal(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), *noel.EndDate)

	assert.NotContains(t, s.VacationOverrides, "Vacances d'Hiver")
	assert.NotContains(t, s.VacationOverrides, "Vacances de Printemps")
}

func TestUpdate_MergesFields(t *testing.T) {
	st := newStore(t)
	end := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	_, err := st.Save(Settings{
		Zone:              model.ZoneB,
		RoundingMethod:    model.RoundFloor,
		VacationOverrides: map[string]model.Override{"Vacances de Noël": {EndDate: &end}},
	})
	require.NoError(t, err)

	zone := model.ZoneA
	s, err := st.Update(Patch{Zone: &zone})
	require.NoError(t, err)
	assert.Equal(t, model.ZoneA, s.Zone)
	assert.Equal(t, model.RoundFloor, s.RoundingMethod)
	assert.Contains(t, s.VacationOverrides, "Vacances de Noël")

	s, err = st.Update(Patch{VacationOverrides: map[string]model.Override{}})
	require.NoError(t, err)
	assert.Empty(t, s.VacationOverrides)
	assert.Equal(t, model.ZoneA, s.Zone)

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}
