// Package admin implements the administrative operations behind the HTTP API.
package admin

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/release-tracker/internal/notify"
	"github.com/JakeFAU/release-tracker/internal/reconcile"
	"github.com/JakeFAU/release-tracker/internal/refresh"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Refresher runs one refresh cycle.
type Refresher interface {
	Run(ctx context.Context) refresh.Result
}

// Notifier delivers administrative change notifications.
type Notifier interface {
	Notify(ctx context.Context, message string, event tracker.EventKind) (notify.Report, error)
}

// ReleaseInput carries admin-supplied release fields. On update, zero
// fields keep their stored value.
type ReleaseInput struct {
	ID      string              `json:"id,omitempty"`
	Name    string              `json:"name"`
	Date    tracker.Date        `json:"date"`
	Type    tracker.ReleaseType `json:"type"`
	Project tracker.Project     `json:"project"`
}

// WebhookInput carries admin-supplied webhook fields. On update, zero
// fields keep their stored value.
type WebhookInput struct {
	Name     string              `json:"name"`
	URL      string              `json:"url"`
	Events   []tracker.EventKind `json:"events"`
	IsActive *bool               `json:"isActive,omitempty"`
}

// Service coordinates admin edits with the reconciler and notifications.
type Service struct {
	releases  *reconcile.Reconciler
	webhooks  tracker.WebhookRepository
	notifier  Notifier
	refresher Refresher
	ids       tracker.IDGenerator
	clock     tracker.Clock
	logger    *zap.Logger
}

// New builds a Service. notifier may be nil.
func New(
	releases *reconcile.Reconciler,
	webhooks tracker.WebhookRepository,
	notifier Notifier,
	refresher Refresher,
	ids tracker.IDGenerator,
	clock tracker.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		releases:  releases,
		webhooks:  webhooks,
		notifier:  notifier,
		refresher: refresher,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}
}

// StorageKind reports which store backs the service.
func (s *Service) StorageKind() string { return s.releases.StorageKind() }

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error { return s.releases.Ping(ctx) }

// ListReleases returns releases matching filter.
func (s *Service) ListReleases(ctx context.Context, filter tracker.ReleaseFilter) ([]tracker.Release, error) {
	if filter.Project != "" && !filter.Project.Valid() {
		return nil, fmt.Errorf("%w: unknown project %q", tracker.ErrInvalid, filter.Project)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown release type %q", tracker.ErrInvalid, filter.Type)
	}
	return s.releases.List(ctx, filter)
}

// GetRelease returns one release.
func (s *Service) GetRelease(ctx context.Context, id string) (tracker.Release, error) {
	return s.releases.Get(ctx, id)
}

// CreateRelease stores a manual release. Without an ID one is generated.
// An existing ID is overwritten and locked against refresh.
func (s *Service) CreateRelease(ctx context.Context, in ReleaseInput) (tracker.Release, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		if !in.Project.Valid() {
			return tracker.Release{}, fmt.Errorf("%w: unknown project %q", tracker.ErrInvalid, in.Project)
		}
		suffix, err := s.ids.NewID()
		if err != nil {
			return tracker.Release{}, fmt.Errorf("generate release id: %w", err)
		}
		id = fmt.Sprintf("%s-manual-%s", in.Project, suffix)
	}
	saved, err := s.releases.Override(ctx, tracker.Release{
		ID:      id,
		Name:    strings.TrimSpace(in.Name),
		Date:    in.Date,
		Type:    in.Type,
		Project: in.Project,
	})
	if err != nil {
		return tracker.Release{}, err
	}
	s.notify(ctx, fmt.Sprintf("Release \"%s\" was created manually.", saved.Name), tracker.EventCreate)
	return saved, nil
}

// UpdateRelease edits an existing release and locks it against refresh.
func (s *Service) UpdateRelease(ctx context.Context, id string, in ReleaseInput) (tracker.Release, error) {
	current, err := s.releases.Get(ctx, id)
	if err != nil {
		return tracker.Release{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		current.Name = name
	}
	if !in.Date.IsZero() {
		current.Date = in.Date
	}
	if in.Type != "" {
		current.Type = in.Type
	}
	if in.Project != "" {
		current.Project = in.Project
	}
	saved, err := s.releases.Override(ctx, current)
	if err != nil {
		return tracker.Release{}, err
	}
	s.notify(ctx, fmt.Sprintf("Release \"%s\" was updated manually.", saved.Name), tracker.EventUpdate)
	return saved, nil
}

// DeleteRelease removes a release whatever its override state.
func (s *Service) DeleteRelease(ctx context.Context, id string) error {
	current, err := s.releases.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.releases.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, fmt.Sprintf("Release \"%s\" was deleted manually.", current.Name), tracker.EventDelete)
	return nil
}

// ListWebhooks returns every webhook.
func (s *Service) ListWebhooks(ctx context.Context) ([]tracker.Webhook, error) {
	return s.webhooks.ListWebhooks(ctx)
}

// GetWebhook returns one webhook.
func (s *Service) GetWebhook(ctx context.Context, id string) (tracker.Webhook, error) {
	return s.webhooks.GetWebhook(ctx, id)
}

// CreateWebhook registers a webhook. It is active unless told otherwise.
func (s *Service) CreateWebhook(ctx context.Context, in WebhookInput) (tracker.Webhook, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return tracker.Webhook{}, fmt.Errorf("generate webhook id: %w", err)
	}
	now := s.clock.Now()
	w := tracker.Webhook{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		URL:       strings.TrimSpace(in.URL),
		Events:    in.Events,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	if err := w.Validate(); err != nil {
		return tracker.Webhook{}, err
	}
	if err := s.webhooks.SaveWebhook(ctx, w); err != nil {
		return tracker.Webhook{}, err
	}
	return w, nil
}

// UpdateWebhook edits an existing webhook.
func (s *Service) UpdateWebhook(ctx context.Context, id string, in WebhookInput) (tracker.Webhook, error) {
	w, err := s.webhooks.GetWebhook(ctx, id)
	if err != nil {
		return tracker.Webhook{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		w.Name = name
	}
	if u := strings.TrimSpace(in.URL); u != "" {
		w.URL = u
	}
	if in.Events != nil {
		w.Events = in.Events
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}
	w.UpdatedAt = s.clock.Now()
	if err := w.Validate(); err != nil {
		return tracker.Webhook{}, err
	}
	if err := s.webhooks.SaveWebhook(ctx, w); err != nil {
		return tracker.Webhook{}, err
	}
	return w, nil
}

// DeleteWebhook removes a webhook.
func (s *Service) DeleteWebhook(ctx context.Context, id string) error {
	return s.webhooks.DeleteWebhook(ctx, id)
}

// GetSettings returns the stored settings.
func (s *Service) GetSettings(ctx context.Context) (tracker.Settings, error) {
	return s.releases.Settings(ctx)
}

// TriggerRefresh runs a refresh now and waits for it.
func (s *Service) TriggerRefresh(ctx context.Context) refresh.Result {
	return s.refresher.Run(ctx)
}

// notify never fails the calling operation.
func (s *Service) notify(ctx context.Context, message string, event tracker.EventKind) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, message, event); err != nil {
		s.logger.Warn("admin notification failed", zap.String("event", string(event)), zap.Error(err))
	}
}
