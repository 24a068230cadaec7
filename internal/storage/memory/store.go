package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Store implements tracker.Store with maps guarded by one RWMutex. Values are
// copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	releases map[string]tracker.Release
	webhooks map[string]tracker.Webhook
	settings *tracker.Settings
}

var _ tracker.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		releases: make(map[string]tracker.Release),
		webhooks: make(map[string]tracker.Webhook),
	}
}

// NewSeededStore returns a store holding the fallback dataset: one Electron
// and one Chromium stable release, and no webhooks.
func NewSeededStore(now time.Time) *Store {
	s := NewStore()
	for _, r := range FallbackReleases(now) {
		s.releases[r.ID] = r
	}
	return s
}

// FallbackReleases is the dataset served when no database is reachable.
func FallbackReleases(now time.Time) []tracker.Release {
	return []tracker.Release{
		{
			ID:        "electron-1",
			Name:      "Electron 28.0.0",
			Date:      tracker.NewDate(2023, time.December, 5),
			Type:      tracker.ReleaseStable,
			Project:   tracker.ProjectElectron,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:        "chromium-120-stable",
			Name:      "Chromium 120 Stable",
			Date:      tracker.NewDate(2023, time.December, 5),
			Type:      tracker.ReleaseStable,
			Project:   tracker.ProjectChromium,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Kind implements tracker.Store.
func (s *Store) Kind() string { return "memory" }

// Close implements tracker.Store.
func (s *Store) Close() error { return nil }

// GetRelease implements tracker.ReleaseRepository.
func (s *Store) GetRelease(_ context.Context, id string) (tracker.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.releases[id]
	if !ok {
		return tracker.Release{}, fmt.Errorf("release %q: %w", id, tracker.ErrNotFound)
	}
	return r, nil
}

// ListReleases implements tracker.ReleaseRepository.
func (s *Store) ListReleases(_ context.Context, filter tracker.ReleaseFilter) ([]tracker.Release, error) {
	s.mu.RLock()
	out := make([]tracker.Release, 0, len(s.releases))
	for _, r := range s.releases {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	tracker.SortReleases(out)
	return out, nil
}

// SaveRelease implements tracker.ReleaseRepository. The override check and
// the write happen under the same lock.
func (s *Store) SaveRelease(_ context.Context, r tracker.Release, mode tracker.WriteMode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.releases[r.ID]; ok && mode == tracker.WriteUnlessOverridden && existing.IsManualOverride {
		return false, nil
	}
	s.releases[r.ID] = r
	return true, nil
}

// DeleteRelease implements tracker.ReleaseRepository.
func (s *Store) DeleteRelease(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.releases[id]; !ok {
		return fmt.Errorf("release %q: %w", id, tracker.ErrNotFound)
	}
	delete(s.releases, id)
	return nil
}

// GetWebhook implements tracker.WebhookRepository.
func (s *Store) GetWebhook(_ context.Context, id string) (tracker.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.webhooks[id]
	if !ok {
		return tracker.Webhook{}, fmt.Errorf("webhook %q: %w", id, tracker.ErrNotFound)
	}
	return cloneWebhook(w), nil
}

// ListWebhooks implements tracker.WebhookRepository, ordered by creation time.
func (s *Store) ListWebhooks(_ context.Context) ([]tracker.Webhook, error) {
	s.mu.RLock()
	out := make([]tracker.Webhook, 0, len(s.webhooks))
	for _, w := range s.webhooks {
		out = append(out, cloneWebhook(w))
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b tracker.Webhook) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

// SaveWebhook implements tracker.WebhookRepository.
func (s *Store) SaveWebhook(_ context.Context, w tracker.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[w.ID] = cloneWebhook(w)
	return nil
}

// DeleteWebhook implements tracker.WebhookRepository.
func (s *Store) DeleteWebhook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[id]; !ok {
		return fmt.Errorf("webhook %q: %w", id, tracker.ErrNotFound)
	}
	delete(s.webhooks, id)
	return nil
}

// GetSettings implements tracker.SettingsRepository.
func (s *Store) GetSettings(_ context.Context) (tracker.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return tracker.Settings{}, fmt.Errorf("settings: %w", tracker.ErrNotFound)
	}
	return cloneSettings(*s.settings), nil
}

// SaveSettings implements tracker.SettingsRepository.
func (s *Store) SaveSettings(_ context.Context, settings tracker.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneSettings(settings)
	s.settings = &cp
	return nil
}

func cloneWebhook(w tracker.Webhook) tracker.Webhook {
	w.Events = slices.Clone(w.Events)
	return w
}

func cloneSettings(s tracker.Settings) tracker.Settings {
	if s.LastRefreshed != nil {
		t := *s.LastRefreshed
		s.LastRefreshed = &t
	}
	return s
}
