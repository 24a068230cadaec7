package tracker

import (
	"context"
	"io"
	"time"
)

// WriteMode selects how SaveRelease treats an existing override.
type WriteMode int

const (
	// WriteAlways replaces the stored row unconditionally.
	WriteAlways WriteMode = iota
	// WriteUnlessOverridden refuses to replace a row whose override flag is
	// set. Backends must evaluate the check and the write atomically.
	WriteUnlessOverridden
)

// ReleaseRepository persists releases.
type ReleaseRepository interface {
	GetRelease(ctx context.Context, id string) (Release, error)
	// ListReleases returns matches sorted by date, then ID.
	ListReleases(ctx context.Context, filter ReleaseFilter) ([]Release, error)
	// SaveRelease inserts or replaces r. applied is false when the mode
	// guard rejected the write.
	SaveRelease(ctx context.Context, r Release, mode WriteMode) (applied bool, err error)
	DeleteRelease(ctx context.Context, id string) error
}

// WebhookRepository persists webhook registrations.
type WebhookRepository interface {
	GetWebhook(ctx context.Context, id string) (Webhook, error)
	ListWebhooks(ctx context.Context) ([]Webhook, error)
	SaveWebhook(ctx context.Context, w Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
}

// SettingsRepository persists the singleton settings record.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Store bundles every repository behind one handle.
type Store interface {
	ReleaseRepository
	WebhookRepository
	SettingsRepository
	// Kind names the backend, e.g. "postgres" or "memory".
	Kind() string
	Close() error
}

// BlobStore keeps raw payload snapshots.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns ErrNotFound when nothing is stored under path.
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes refresh events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Source produces candidate releases from one upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Batch, error)
}

// Limiter paces outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque unique IDs.
type IDGenerator interface {
	NewID() (string, error)
}
