package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"vacances/internal/model"
)

// Key is the store key the user settings blob lives under.
const Key = "settings"

// Settings is the user-editable display configuration.
type Settings struct {
	Zone              model.Zone                `json:"zone"`
	VacationOverrides map[string]model.Override `json:"vacationOverrides"`
	RoundingMethod    model.RoundingMethod      `json:"roundingMethod"`
}

// Defaults returns the settings used when nothing was stored yet.
func Defaults() Settings {
	return Settings{
		Zone:              model.ZoneC,
		VacationOverrides: map[string]model.Override{},
		RoundingMethod:    model.RoundRound,
	}
}

// Normalize fills missing or unknown values with defaults and drops
// overrides that change nothing.
func (s *Settings) Normalize() {
	if !s.Zone.Valid() {
		s.Zone = model.ZoneC
	}
	s.RoundingMethod = model.ParseRoundingMethod(string(s.RoundingMethod))
	if s.VacationOverrides == nil {
		s.VacationOverrides = map[string]model.Override{}
	}
	for name, ov := range s.VacationOverrides {
		if ov.Empty() {
			delete(s.VacationOverrides, name)
		}
	}
}

// Clone returns a deep copy, so a snapshot handed to the refresh pipeline
// is not affected by later edits.
func (s Settings) Clone() Settings {
	out := s
	out.VacationOverrides = make(map[string]model.Override, len(s.VacationOverrides))
	for name, ov := range s.VacationOverrides {
		var c model.Override
		if ov.StartDate != nil {
			t := *ov.StartDate
			c.StartDate = &t
		}
		if ov.EndDate != nil {
			t := *ov.EndDate
			c.EndDate = &t
		}
		out.VacationOverrides[name] = c
	}
	return out
}

// Patch is a partial settings update. Nil fields keep the current value;
// a non-nil VacationOverrides replaces the whole override map.
type Patch struct {
	Zone              *model.Zone               `json:"zone"`
	VacationOverrides map[string]model.Override `json:"vacationOverrides"`
	RoundingMethod    *model.RoundingMethod     `json:"roundingMethod"`
}

// Apply returns s with the fields set in p replaced.
func (s Settings) Apply(p Patch) Settings {
	out := s.Clone()
	if p.Zone != nil {
		out.Zone = *p.Zone
	}
	if p.RoundingMethod != nil {
		out.RoundingMethod = *p.RoundingMethod
	}
	if p.VacationOverrides != nil {
		out.VacationOverrides = p.VacationOverrides
		out = out.Clone()
	}
	return out
}

// Store is a small file-backed key-value store. Each key holds one JSON
// value; the whole file is rewritten atomically on every Put.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store persisted at path. The file is created lazily.
func NewStore(path string) *Store {
	if path == "" {
		path = "./var/settings.json"
	}
	return &Store{path: path}
}

// Path returns the backing file location.
func (st *Store) Path() string {
	return st.path
}

// Get decodes the value stored under key into v. It reports false when the
// key (or the whole file) does not exist.
func (st *Store) Get(key string, v any) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	entries, err := st.readAll()
	if err != nil {
		return false, err
	}
	raw, ok := entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("settings: decode %q: %w", key, err)
	}
	return true, nil
}

// Put stores v under key, keeping the other keys intact.
func (st *Store) Put(key string, v any) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	entries, err := st.readAll()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode %q: %w", key, err)
	}
	entries[key] = raw
	return st.writeAll(entries)
}

// Load returns the stored settings, or Defaults when none were saved.
func (st *Store) Load() (Settings, error) {
	s := Defaults()
	found, err := st.Get(Key, &s)
	if err != nil {
		return Defaults(), err
	}
	if !found {
		return Defaults(), nil
	}
	s.Normalize()
	return s, nil
}

// Save normalizes and persists s.
func (st *Store) Save(s Settings) (Settings, error) {
	s = s.Clone()
	s.Normalize()
	if err := st.Put(Key, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Update merges p into the stored settings and persists the result.
func (st *Store) Update(p Patch) (Settings, error) {
	cur, err := st.Load()
	if err != nil {
		return Settings{}, err
	}
	return st.Save(cur.Apply(p))
}

// ResetOverride removes the override for one vacation name.
func (st *Store) ResetOverride(name string) (Settings, error) {
	s, err := st.Load()
	if err != nil {
		return Settings{}, err
	}
	delete(s.VacationOverrides, name)
	return st.Save(s)
}

func (st *Store) readAll() (map[string]json.RawMessage, error) {
	entries := map[string]json.RawMessage{}

	data, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("settings: corrupt store %s: %w", st.path, err)
	}
	return entries, nil
}

// writeAll writes entries through a temp file + rename with 0600 perms.
func (st *Store) writeAll(entries map[string]json.RawMessage) error {
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".vacances-settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, st.path)
}
