package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	appLog "vacances/internal/log"
	"vacances/internal/model"
	"vacances/internal/vacation"
)

// groupBy deduplicates the dataset, which holds one row per academy.
const groupBy = "description,start_date,end_date,zones"

// ErrDecode is returned when the response body is not the expected JSON.
var ErrDecode = errors.New("catalog: malformed response")

// FetchError reports a transport failure or a non-2xx response.
type FetchError struct {
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("catalog: HTTP error, status %d", e.Status)
	}
	return "catalog: request failed: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// record is one row of the dataset's `results` array.
type record struct {
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type response struct {
	Results []record `json:"results"`
}

// Fetcher queries the school calendar dataset. It performs exactly one
// request per call, without retry; cancellation goes through ctx.
type Fetcher struct {
	client  *http.Client
	baseURL string
	limit   int
	loc     *time.Location
}

// NewFetcher creates a Fetcher against baseURL. Date-only values in the
// response are interpreted in loc.
func NewFetcher(baseURL string, limit int, loc *time.Location) *Fetcher {
	if limit <= 0 {
		limit = 20
	}
	if loc == nil {
		loc = time.Local
	}
	return &Fetcher{
		client:  &http.Client{},
		baseURL: baseURL,
		limit:   limit,
		loc:     loc,
	}
}

// WithClient replaces the HTTP client (tests, custom transports).
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// URL builds the records query for zone and year.
func (f *Fetcher) URL(zone model.Zone, year vacation.SchoolYear) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("catalog: invalid base URL: %w", err)
	}
	q := u.Query()
	q.Add("refine", "zones:"+zone.DatasetLabel())
	q.Add("refine", "annee_scolaire:"+year.Label())
	q.Set("group_by", groupBy)
	q.Set("limit", strconv.Itoa(f.limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch returns the vacations of zone for the given school year, in the
// order the dataset returned them. Records whose dates cannot be parsed
// are skipped and logged.
func (f *Fetcher) Fetch(ctx context.Context, zone model.Zone, year vacation.SchoolYear) ([]model.VacationRecord, error) {
	target, err := f.URL(zone, year)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	appLog.Debug("catalog fetch start", "zone", zone, "school_year", year.Label())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	records := make([]model.VacationRecord, 0, len(body.Results))
	for _, r := range body.Results {
		rec, err := f.convert(r)
		if err != nil {
			appLog.Warn("catalog record skipped", "description", r.Description, "error", err.Error())
			continue
		}
		records = append(records, rec)
	}

	appLog.Info("catalog fetch success",
		"zone", zone,
		"school_year", year.Label(),
		"status", resp.StatusCode,
		"results", len(body.Results),
		"records", len(records),
	)

	return records, nil
}

func (f *Fetcher) convert(r record) (model.VacationRecord, error) {
	name := strings.TrimSpace(r.Description)
	if name == "" {
		return model.VacationRecord{}, errors.New("missing description")
	}
	start, err := ParseTimestamp(r.StartDate, f.loc)
	if err != nil {
		return model.VacationRecord{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := ParseTimestamp(r.EndDate, f.loc)
	if err != nil {
		return model.VacationRecord{}, fmt.Errorf("end_date: %w", err)
	}
	return model.VacationRecord{Name: name, Start: start, End: end}, nil
}

// ParseTimestamp accepts RFC 3339 timestamps and plain dates (YYYY-MM-DD,
// midnight in loc).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
