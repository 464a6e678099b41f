// Package profile persists user profiles as a JSON document on an afero
// filesystem and exposes the read-only view the reconciliation core consumes.
package profile

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/hushd/hushd/pkg/hushlib"
)

const storeFile = "profiles.json"

// Store holds all configured profiles. Mutations rewrite the whole document;
// profile counts are small and the simplicity wins.
type Store struct {
	fs   afero.Fs
	dir  string
	l    *log.Logger
	now  func() time.Time
	mu   sync.RWMutex
	byID map[string]hushlib.Profile
}

// NewStore opens (creating if needed) the profile store under dir.
func NewStore(fs afero.Fs, dir string, l *log.Logger) (*Store, error) {
	s := &Store{
		fs:   fs,
		dir:  dir,
		l:    l,
		now:  time.Now,
		byID: make(map[string]hushlib.Profile),
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error: cannot create profile dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, storeFile)
}

func (s *Store) load() error {
	data, err := afero.ReadFile(s.fs, s.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error: cannot read profile store: %w", err)
	}
	var profiles []hushlib.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("error: corrupt profile store: %w", err)
	}
	for _, p := range profiles {
		s.byID[p.ID] = p
	}
	return nil
}

// flush writes the document under a temp name and renames it into place.
// Callers hold s.mu.
func (s *Store) flush() error {
	profiles := make([]hushlib.Profile, 0, len(s.byID))
	for _, p := range s.byID {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].CreatedAt.Before(profiles[j].CreatedAt) })

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("error: cannot encode profile store: %w", err)
	}
	tmp := s.path() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("error: cannot write profile store: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("error: cannot replace profile store: %w", err)
	}
	return nil
}

// Add validates and persists a new profile, assigning its id. New profiles
// start active.
func (s *Store) Add(p hushlib.Profile) (hushlib.Profile, error) {
	if err := p.Validate(); err != nil {
		return hushlib.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.Name == p.Name {
			return hushlib.Profile{}, fmt.Errorf("%w: %q", hushlib.ErrProfileExists, p.Name)
		}
	}
	p.ID = uuid.NewString()
	p.Active = true
	p.CreatedAt = s.now()
	s.byID[p.ID] = p
	if err := s.flush(); err != nil {
		delete(s.byID, p.ID)
		return hushlib.Profile{}, err
	}
	s.l.Printf("profile %q added (%s, %s)", p.Name, p.Kind, p.ID)
	return p, nil
}

// Update replaces an existing profile's definition, keeping id and creation
// time.
func (s *Store) Update(p hushlib.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[p.ID]
	if !ok {
		return fmt.Errorf("%w: %s", hushlib.ErrProfileNotFound, p.ID)
	}
	p.CreatedAt = old.CreatedAt
	s.byID[p.ID] = p
	if err := s.flush(); err != nil {
		s.byID[p.ID] = old
		return err
	}
	return nil
}

// Remove deletes a profile.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", hushlib.ErrProfileNotFound, id)
	}
	delete(s.byID, id)
	if err := s.flush(); err != nil {
		s.byID[id] = old
		return err
	}
	s.l.Printf("profile %q removed", old.Name)
	return nil
}

// SetActive enables or disables a profile.
func (s *Store) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", hushlib.ErrProfileNotFound, id)
	}
	if p.Active == active {
		return nil
	}
	p.Active = active
	s.byID[id] = p
	return s.flush()
}

// List returns every profile ordered by creation time.
func (s *Store) List() []hushlib.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]hushlib.Profile, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListActiveProfiles implements hushlib.ProfileStore.
func (s *Store) ListActiveProfiles() []hushlib.Profile {
	var out []hushlib.Profile
	for _, p := range s.List() {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// GetProfile implements hushlib.ProfileStore.
func (s *Store) GetProfile(id string) (hushlib.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// FindByName returns the profile with the given name.
func (s *Store) FindByName(name string) (hushlib.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Name == name {
			return p, true
		}
	}
	return hushlib.Profile{}, false
}
