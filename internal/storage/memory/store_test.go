package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/release-tracker/internal/tracker"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func release(id string, date tracker.Date, override bool) tracker.Release {
	return tracker.Release{
		ID:               id,
		Name:             id,
		Date:             date,
		Type:             tracker.ReleaseStable,
		Project:          tracker.ProjectChromium,
		IsManualOverride: override,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestSeededStore(t *testing.T) {
	t.Parallel()

	s := NewSeededStore(now)
	all, err := s.ListReleases(context.Background(), tracker.ReleaseFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "chromium-120-stable", all[0].ID)
	assert.Equal(t, "electron-1", all[1].ID)
	assert.Equal(t, "Electron 28.0.0", all[1].Name)

	hooks, err := s.ListWebhooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hooks)
	assert.Equal(t, "memory", s.Kind())
}

func TestSaveReleaseRespectsOverrideGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	locked := release("chromium-120-stable", tracker.NewDate(2023, 12, 10), true)
	applied, err := s.SaveRelease(ctx, locked, tracker.WriteAlways)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.SaveRelease(ctx, release("chromium-120-stable", tracker.NewDate(2023, 12, 5), false), tracker.WriteUnlessOverridden)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetRelease(ctx, "chromium-120-stable")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-10", got.Date.String())
	assert.True(t, got.IsManualOverride)

	applied, err = s.SaveRelease(ctx, release("chromium-120-stable", tracker.NewDate(2023, 12, 1), true), tracker.WriteAlways)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestListReleasesFiltersAndSorts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	beta := release("chromium-121-beta", tracker.NewDate(2023, 12, 14), false)
	beta.Type = tracker.ReleaseBeta
	electron := release("electron-9", tracker.NewDate(2023, 11, 1), false)
	electron.Project = tracker.ProjectElectron
	for _, r := range []tracker.Release{beta, electron, release("chromium-120-stable", tracker.NewDate(2023, 12, 5), false)} {
		_, err := s.SaveRelease(ctx, r, tracker.WriteAlways)
		require.NoError(t, err)
	}

	all, err := s.ListReleases(ctx, tracker.ReleaseFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"electron-9", "chromium-120-stable", "chromium-121-beta"},
		[]string{all[0].ID, all[1].ID, all[2].ID})

	chromium, err := s.ListReleases(ctx, tracker.ReleaseFilter{Project: tracker.ProjectChromium, Type: tracker.ReleaseBeta})
	require.NoError(t, err)
	require.Len(t, chromium, 1)
	assert.Equal(t, "chromium-121-beta", chromium[0].ID)
}

func TestDeleteRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSeededStore(now)
	require.NoError(t, s.DeleteRelease(ctx, "electron-1"))
	_, err := s.GetRelease(ctx, "electron-1")
	assert.True(t, errors.Is(err, tracker.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteRelease(ctx, "electron-1"), tracker.ErrNotFound))
}

func TestWebhookCRUDCopiesEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	hook := tracker.Webhook{
		ID:        "w1",
		Name:      "ops",
		URL:       "https://hooks.slack.com/services/T/B/X",
		Events:    []tracker.EventKind{tracker.EventRefresh},
		IsActive:  true,
		CreatedAt: now,
	}
	require.NoError(t, s.SaveWebhook(ctx, hook))
	hook.Events[0] = tracker.EventDelete

	got, err := s.GetWebhook(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, []tracker.EventKind{tracker.EventRefresh}, got.Events)

	second := hook
	second.ID = "w0"
	second.CreatedAt = now.Add(time.Minute)
	require.NoError(t, s.SaveWebhook(ctx, second))
	list, err := s.ListWebhooks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "w1", list[0].ID)

	require.NoError(t, s.DeleteWebhook(ctx, "w1"))
	_, err = s.GetWebhook(ctx, "w1")
	assert.True(t, errors.Is(err, tracker.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteWebhook(ctx, "w1"), tracker.ErrNotFound))
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	_, err := s.GetSettings(ctx)
	require.True(t, errors.Is(err, tracker.ErrNotFound))

	refreshed := now
	require.NoError(t, s.SaveSettings(ctx, tracker.Settings{
		ID:              tracker.SettingsID,
		SourceURL:       "https://chromiumdash.appspot.com/fetch_milestone_schedule",
		RefreshInterval: 24,
		LastRefreshed:   &refreshed,
	}))
	refreshed = refreshed.Add(time.Hour)

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, got.RefreshInterval)
	assert.True(t, got.LastRefreshed.Equal(now))
}

func TestConcurrentGuardedWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mode := tracker.WriteUnlessOverridden
			r := release("chromium-122-stable", tracker.NewDate(2024, 3, 5), false)
			if i == 25 {
				mode = tracker.WriteAlways
				r.IsManualOverride = true
				r.Date = tracker.NewDate(2024, 3, 9)
			}
			_, err := s.SaveRelease(ctx, r, mode)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetRelease(ctx, "chromium-122-stable")
	require.NoError(t, err)
	assert.True(t, got.IsManualOverride)
	assert.Equal(t, "2024-03-09", got.Date.String())
}
