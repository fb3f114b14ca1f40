package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"time"

	"vacances/internal/config"
	appLog "vacances/internal/log"
	"vacances/internal/model"
	"vacances/internal/settings"
	"vacances/internal/tracker"
	"vacances/internal/vacation"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// StateSource is the part of the tracker the server reads and drives.
type StateSource interface {
	Snapshot() tracker.Snapshot
	Refresh(ctx context.Context) error
}

// SettingsEditor persists the user settings.
type SettingsEditor interface {
	Load() (settings.Settings, error)
	Update(p settings.Patch) (settings.Settings, error)
	ResetOverride(name string) (settings.Settings, error)
}

// Deps wires the server to the rest of the application.
type Deps struct {
	State    StateSource
	Settings SettingsEditor
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	// Now defaults to time.Now; used for ICS stamps.
	Now func() time.Time
}

// Server serves the countdown page, its JSON API and the settings surface.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Vacances", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves s on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("DELETE /api/settings/overrides/{name}", s.handleResetOverride)
	s.mux.HandleFunc("GET /api/vacations", s.handleVacations)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON shape of /api/state. It flattens the snapshot
// into what the page needs to redraw.
type stateResponse struct {
	Phase             tracker.Phase        `json:"phase"`
	Name              string               `json:"name,omitempty"`
	Theme             Theme                `json:"theme"`
	Percentage        float64              `json:"percentage"`
	DisplayPercentage string               `json:"display_percentage"`
	RemainingLabel    string               `json:"remaining_label"`
	Malformed         bool                 `json:"malformed,omitempty"`
	Window            *model.ActiveWindow  `json:"window,omitempty"`
	Zone              model.Zone           `json:"zone"`
	SchoolYear        string               `json:"school_year"`
	RoundingMethod    model.RoundingMethod `json:"rounding_method"`
	Message           string               `json:"message,omitempty"`
	Error             string               `json:"error,omitempty"`
	Generation        uint64               `json:"generation"`
	RefreshedAt       time.Time            `json:"refreshed_at,omitzero"`
}

func newStateResponse(snap tracker.Snapshot) stateResponse {
	resp := stateResponse{
		Phase:             snap.Phase,
		Theme:             defaultTheme,
		Percentage:        snap.Progress.Percentage,
		DisplayPercentage: vacation.DisplayPercentage(snap.Progress.Percentage),
		RemainingLabel:    snap.Progress.RemainingLabel,
		Malformed:         snap.Progress.Malformed,
		Window:            snap.Window,
		Zone:              snap.Zone,
		SchoolYear:        snap.SchoolYear,
		RoundingMethod:    snap.Rounding,
		Message:           snap.Message,
		Error:             snap.Error,
		Generation:        snap.Generation,
		RefreshedAt:       snap.RefreshedAt,
	}
	if snap.Window != nil {
		resp.Name = snap.Window.Name
		resp.Theme = ThemeFor(snap.Window.Name)
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStateResponse(s.deps.State.Snapshot()))
}

// indexView feeds templates/index.html.
type indexView struct {
	Phase             tracker.Phase
	Name              string
	Theme             cssTheme
	DisplayPercentage string
	Remaining         string
	OnVacation        bool
	Message           string
	Error             string
	TickMillis        int64
}

type cssTheme struct {
	From  template.CSS
	To    template.CSS
	Emoji string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	st := newStateResponse(s.deps.State.Snapshot())
	view := indexView{
		Phase: st.Phase,
		Name:  st.Name,
		Theme: cssTheme{
			From:  template.CSS(st.Theme.From),
			To:    template.CSS(st.Theme.To),
			Emoji: st.Theme.Emoji,
		},
		DisplayPercentage: st.DisplayPercentage,
		Remaining:         st.RemainingLabel,
		OnVacation:        st.Phase == tracker.PhaseOnVacation,
		Message:           st.Message,
		Error:             st.Error,
		TickMillis:        s.cfg.Tick().Milliseconds(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, view); err != nil {
		appLog.Error("failed to render index", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.State.Refresh(context.WithoutCancel(r.Context())); err != nil {
		appLog.Error("manual refresh failed", err)
	}
	writeJSON(w, http.StatusOK, newStateResponse(s.deps.State.Snapshot()))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	st, err := s.deps.Settings.Load()
	if err != nil {
		appLog.Error("settings load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings merges the body into the stored settings, saves them and
// refreshes. Fields absent from the body keep their stored value; a
// vacationOverrides object replaces all overrides.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Patch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload")
		return
	}

	saved, err := s.deps.Settings.Update(in)
	if err != nil {
		appLog.Error("settings save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	appLog.Info("settings saved",
		"zone", saved.Zone,
		"rounding_method", saved.RoundingMethod,
		"overrides", len(saved.VacationOverrides),
	)

	s.refreshAfterEdit(r)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleResetOverride(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing vacation name")
		return
	}

	saved, err := s.deps.Settings.ResetOverride(name)
	if err != nil {
		appLog.Error("override reset failed", err, "vacation", name)
		writeError(w, http.StatusInternalServerError, "failed to reset override")
		return
	}

	s.refreshAfterEdit(r)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) refreshAfterEdit(r *http.Request) {
	if err := s.deps.State.Refresh(context.WithoutCancel(r.Context())); err != nil {
		appLog.Error("refresh after settings change failed", err)
	}
}

// vacationsResponse lists the names the settings surface can override,
// with their current resolved dates when the catalog has them.
type vacationsResponse struct {
	Vacations []vacationEntry `json:"vacations"`
}

type vacationEntry struct {
	Name       string     `json:"name"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Overridden bool       `json:"overridden"`
	Theme      Theme      `json:"theme"`
}

func (s *Server) handleVacations(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.State.Snapshot()
	st, err := s.deps.Settings.Load()
	if err != nil {
		appLog.Error("settings load failed", err)
		st = settings.Defaults()
	}

	byName := make(map[string]model.VacationRecord, len(snap.Catalog))
	for _, r := range snap.Catalog {
		byName[r.Name] = r
	}

	names := append([]string(nil), KnownVacations...)
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	var extra []string
	for n := range byName {
		if !known[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	resp := vacationsResponse{Vacations: make([]vacationEntry, 0, len(names))}
	for _, n := range names {
		e := vacationEntry{Name: n, Theme: ThemeFor(n)}
		if r, ok := byName[n]; ok {
			start, end := r.Start, r.End
			e.Start, e.End = &start, &end
		}
		_, e.Overridden = st.VacationOverrides[n]
		resp.Vacations = append(resp.Vacations, e)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.State.Snapshot()
	if len(snap.Catalog) == 0 {
		writeError(w, http.StatusServiceUnavailable, "no vacation data loaded")
		return
	}

	name := "Vacances scolaires " + snap.Zone.DatasetLabel() + " " + snap.SchoolYear
	body := BuildICS(snap.Catalog, name, s.deps.Now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="vacances.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handlePreview serves the last captured PNG of the countdown page.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
