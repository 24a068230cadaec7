package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/release-tracker/internal/id/uuid"
	"github.com/JakeFAU/release-tracker/internal/notify"
	"github.com/JakeFAU/release-tracker/internal/reconcile"
	"github.com/JakeFAU/release-tracker/internal/refresh"
	"github.com/JakeFAU/release-tracker/internal/storage/memory"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, message string, event tracker.EventKind) (notify.Report, error) {
	args := m.Called(ctx, message, event)
	return args.Get(0).(notify.Report), args.Error(1)
}

type stubRefresher struct{ runs int }

func (s *stubRefresher) Run(context.Context) refresh.Result {
	s.runs++
	return refresh.Result{RunID: "run-1"}
}

func newService(t *testing.T, n Notifier) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewSeededStore(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))
	clock := fixedClock{now: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	rec := reconcile.New(store, clock, 1, nil)
	return New(rec, store, n, &stubRefresher{}, uuid.New(), clock, nil), store
}

func TestCreateReleaseGeneratesIDAndNotifies(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{}
	n.On("Notify", mock.Anything, `Release "Electron 30.0.0" was created manually.`, tracker.EventCreate).
		Return(notify.Report{}, nil).Once()
	svc, _ := newService(t, n)

	got, err := svc.CreateRelease(context.Background(), ReleaseInput{
		Name:    "Electron 30.0.0",
		Date:    tracker.NewDate(2024, 4, 16),
		Type:    tracker.ReleaseStable,
		Project: tracker.ProjectElectron,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.ID, "electron-manual-"))
	assert.True(t, got.IsManualOverride)
	n.AssertExpectations(t)
}

func TestCreateReleaseValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	_, err := svc.CreateRelease(context.Background(), ReleaseInput{Name: "x", Date: tracker.NewDate(2024, 1, 1), Type: tracker.ReleaseBeta, Project: "firefox"})
	assert.True(t, errors.Is(err, tracker.ErrInvalid))
	_, err = svc.CreateRelease(context.Background(), ReleaseInput{Name: "x", Type: tracker.ReleaseBeta, Project: tracker.ProjectChromium})
	assert.True(t, errors.Is(err, tracker.ErrInvalid))
}

func TestUpdateReleaseSetsOverride(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{}
	n.On("Notify", mock.Anything, `Release "Chromium 120 Stable" was updated manually.`, tracker.EventUpdate).
		Return(notify.Report{}, errors.New("webhooks unavailable")).Once()
	svc, _ := newService(t, n)

	got, err := svc.UpdateRelease(context.Background(), "chromium-120-stable", ReleaseInput{Date: tracker.NewDate(2023, 12, 10)})
	require.NoError(t, err, "notification failures never fail the edit")
	assert.Equal(t, "2023-12-10", got.Date.String())
	assert.Equal(t, "Chromium 120 Stable", got.Name)
	assert.True(t, got.IsManualOverride)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), got.CreatedAt)

	_, err = svc.UpdateRelease(context.Background(), "missing", ReleaseInput{Name: "x"})
	assert.True(t, errors.Is(err, tracker.ErrNotFound))
	n.AssertExpectations(t)
}

func TestDeleteReleaseNotifiesWithName(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{}
	n.On("Notify", mock.Anything, `Release "Electron 28.0.0" was deleted manually.`, tracker.EventDelete).
		Return(notify.Report{Delivered: 1}, nil).Once()
	svc, _ := newService(t, n)

	require.NoError(t, svc.DeleteRelease(context.Background(), "electron-1"))
	assert.True(t, errors.Is(svc.DeleteRelease(context.Background(), "electron-1"), tracker.ErrNotFound))
	n.AssertExpectations(t)
}

func TestDeleteReleaseSurvivesBrokenWebhook(t *testing.T) {
	t.Parallel()

	messages := make(chan string, 1)
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		messages <- body.Text
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(healthy.Close)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	store := memory.NewSeededStore(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))
	for id, url := range map[string]string{"healthy": healthy.URL, "broken": broken.URL} {
		require.NoError(t, store.SaveWebhook(context.Background(), tracker.Webhook{
			ID: id, Name: id, URL: url, Events: []tracker.EventKind{tracker.EventDelete}, IsActive: true,
		}))
	}
	clock := fixedClock{now: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	notifier := notify.New(notify.Config{Concurrency: 2, Timeout: time.Second}, store, nil, nil)
	svc := New(reconcile.New(store, clock, 1, nil), store, notifier, &stubRefresher{}, uuid.New(), clock, nil)

	require.NoError(t, svc.DeleteRelease(context.Background(), "chromium-120-stable"))

	select {
	case got := <-messages:
		assert.Equal(t, `Release "Chromium 120 Stable" was deleted manually.`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("healthy webhook never received the delete notification")
	}
	_, err := store.GetRelease(context.Background(), "chromium-120-stable")
	assert.True(t, errors.Is(err, tracker.ErrNotFound))
}

func TestListReleasesRejectsUnknownFilter(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	_, err := svc.ListReleases(context.Background(), tracker.ReleaseFilter{Project: "webkit"})
	assert.True(t, errors.Is(err, tracker.ErrInvalid))

	got, err := svc.ListReleases(context.Background(), tracker.ReleaseFilter{Project: tracker.ProjectElectron})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestWebhookLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, nil)

	created, err := svc.CreateWebhook(ctx, WebhookInput{
		Name:   "ops",
		URL:    "https://hooks.slack.com/services/T/B/X",
		Events: []tracker.EventKind{tracker.EventCreate},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	inactive := false
	updated, err := svc.UpdateWebhook(ctx, created.ID, WebhookInput{IsActive: &inactive, Events: []tracker.EventKind{tracker.EventRefresh}})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "ops", updated.Name)
	assert.Equal(t, []tracker.EventKind{tracker.EventRefresh}, updated.Events)

	_, err = svc.UpdateWebhook(ctx, created.ID, WebhookInput{Events: []tracker.EventKind{}})
	assert.True(t, errors.Is(err, tracker.ErrInvalid))

	_, err = svc.CreateWebhook(ctx, WebhookInput{Name: "bad", URL: "not a url", Events: []tracker.EventKind{tracker.EventCreate}})
	assert.True(t, errors.Is(err, tracker.ErrInvalid))

	list, err := svc.ListWebhooks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.DeleteWebhook(ctx, created.ID))
	_, err = svc.GetWebhook(ctx, created.ID)
	assert.True(t, errors.Is(err, tracker.ErrNotFound))
}

func TestTriggerRefreshAndSettings(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil)
	require.NoError(t, store.SaveSettings(context.Background(), tracker.Settings{ID: tracker.SettingsID, RefreshInterval: 24}))

	res := svc.TriggerRefresh(context.Background())
	assert.Equal(t, "run-1", res.RunID)
	settings, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, settings.RefreshInterval)
	assert.Equal(t, "memory", svc.StorageKind())
}
