package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vacances/internal/model"
	"vacances/internal/vacation"
)

const sample = `{
  "total_count": 3,
  "results": [
    {"description": "Vacances de Noël", "start_date": "2024-12-20T23:00:00+00:00", "end_date": "2025-01-05T23:00:00+00:00", "zones": "Zone C"},
    {"description": "Vacances de la Toussaint", "start_date": "2024-10-19", "end_date": "2024-11-04", "zones": "Zone C"},
    {"description": "Broken", "start_date": "someday", "end_date": "2025-01-01", "zones": "Zone C"}
  ]
}`

func TestFetch_QueryAndDecode(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL+"/records", 20, time.UTC)
	records, err := f.Fetch(context.Background(), model.ZoneC, vacation.SchoolYear{StartYear: 2024})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"zones:Zone C", "annee_scolaire:2024-2025"}, got["refine"])
	assert.Equal(t, "description,start_date,end_date,zones", got.Get("group_by"))
	assert.Equal(t, "20", got.Get("limit"))

	require.Len(t, records, 2)
	assert.Equal(t, "Vacances de Noël", records[0].Name)
	assert.True(t, records[0].Start.Equal(time.Date(2024, 12, 20, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Vacances de la Toussaint", records[1].Name)
	assert.Equal(t, time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC), records[1].Start)
}

func TestFetch_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	records, err := NewFetcher(srv.URL, 20, time.UTC).Fetch(context.Background(), model.ZoneA, vacation.SchoolYear{StartYear: 2024})
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = vacation.SelectActiveWindow(records, time.Now(), nil, time.Now())
	assert.ErrorIs(t, err, vacation.ErrEmptyCatalog)
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL, 20, time.UTC).Fetch(context.Background(), model.ZoneB, vacation.SchoolYear{StartYear: 2024})

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
	assert.Contains(t, err.Error(), "503")
}

func TestFetch_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewFetcher(srv.URL, 20, time.UTC).Fetch(context.Background(), model.ZoneB, vacation.SchoolYear{StartYear: 2024})

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.Status)
}

func TestFetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL, 20, time.UTC).Fetch(context.Background(), model.ZoneB, vacation.SchoolYear{StartYear: 2024})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestParseTimestamp(t *testing.T) {
	paris := time.FixedZone("CET", 3600)

	ts, err := ParseTimestamp("2024-10-18T22:00:00+00:00", paris)
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 10, 18, 22, 0, 0, 0, time.UTC)))

	ts, err = ParseTimestamp("2024-10-19", paris)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 19, 0, 0, 0, 0, paris), ts)

	ts, err = ParseTimestamp("2024-10-19T08:30", paris)
	require.NoError(t, err)
	assert.Equal(t, 8, ts.Hour())

	_, err = ParseTimestamp("", paris)
	assert.Error(t, err)
}
