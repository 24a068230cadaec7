package tracker

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Project identifies which upstream a release belongs to.
type Project string

// Supported projects.
const (
	ProjectElectron Project = "electron"
	ProjectChromium Project = "chromium"
)

// Valid reports whether p is a known project.
func (p Project) Valid() bool {
	return p == ProjectElectron || p == ProjectChromium
}

// ReleaseType is the channel a release date belongs to.
type ReleaseType string

// Release channels.
const (
	ReleaseAlpha  ReleaseType = "alpha"
	ReleaseBeta   ReleaseType = "beta"
	ReleaseStable ReleaseType = "stable"
)

// Valid reports whether t is a known release type.
func (t ReleaseType) Valid() bool {
	switch t {
	case ReleaseAlpha, ReleaseBeta, ReleaseStable:
		return true
	default:
		return false
	}
}

// Title returns the capitalized form used in display names.
func (t ReleaseType) Title() string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Release is one dated release event.
type Release struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Date             Date        `json:"date"`
	Type             ReleaseType `json:"type"`
	Project          Project     `json:"project"`
	IsManualOverride bool        `json:"isManualOverride"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// SameContent reports whether r and o carry the same user-visible data.
// Timestamps are ignored.
func (r Release) SameContent(o Release) bool {
	return r.ID == o.ID &&
		r.Name == o.Name &&
		r.Date.Equal(o.Date) &&
		r.Type == o.Type &&
		r.Project == o.Project &&
		r.IsManualOverride == o.IsManualOverride
}

// Validate checks the fields every stored release must carry.
func (r Release) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalid)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown release type %q", ErrInvalid, r.Type)
	}
	if !r.Project.Valid() {
		return fmt.Errorf("%w: unknown project %q", ErrInvalid, r.Project)
	}
	return nil
}

// ReleaseFilter narrows ListReleases. Zero fields match everything.
type ReleaseFilter struct {
	Project Project
	Type    ReleaseType
}

// Match reports whether r passes the filter.
func (f ReleaseFilter) Match(r Release) bool {
	if f.Project != "" && r.Project != f.Project {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	return true
}

// SortReleases orders releases by date, then by ID.
func SortReleases(releases []Release) {
	slices.SortStableFunc(releases, func(a, b Release) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// EventKind names a notification trigger.
type EventKind string

// Notification events.
const (
	EventRefresh EventKind = "refresh"
	EventCreate  EventKind = "create"
	EventUpdate  EventKind = "update"
	EventDelete  EventKind = "delete"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventRefresh, EventCreate, EventUpdate, EventDelete:
		return true
	default:
		return false
	}
}

// Webhook is a registered notification target.
type Webhook struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	URL       string      `json:"url"`
	Events    []EventKind `json:"events"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Subscribed reports whether the webhook is active and listens for kind.
func (w Webhook) Subscribed(kind EventKind) bool {
	return w.IsActive && slices.Contains(w.Events, kind)
}

// Validate checks the name, the target URL, and the event list.
func (w Webhook) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalid)
	}
	if len(w.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", ErrInvalid)
	}
	for _, e := range w.Events {
		if !e.Valid() {
			return fmt.Errorf("%w: unknown event %q", ErrInvalid, e)
		}
	}
	return nil
}

// SettingsID is the fixed identifier of the singleton settings record.
const SettingsID = "api-settings"

// Settings is the singleton configuration record.
type Settings struct {
	ID              string     `json:"id"`
	SourceURL       string     `json:"chromiumApiUrl"`
	RefreshInterval int        `json:"refreshInterval"`
	LastRefreshed   *time.Time `json:"lastRefreshed,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SourceStatus describes how a source batch was produced.
type SourceStatus string

// Source statuses. Degraded means fallback data was served.
const (
	SourceOK       SourceStatus = "ok"
	SourceDegraded SourceStatus = "degraded"
	SourceFailed   SourceStatus = "failed"
)

// Batch is the output of one source fetch.
type Batch struct {
	Source   string
	Releases []Release
	Status   SourceStatus
	// Err is set when Status is not ok.
	Err error
}
