package refresh

import (
	"time"

	"github.com/JakeFAU/release-tracker/internal/notify"
	"github.com/JakeFAU/release-tracker/internal/reconcile"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Phase names a step of a refresh run.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseFetching            Phase = "fetching"
	PhaseReconciling         Phase = "reconciling"
	PhasePersistingTimestamp Phase = "persisting_timestamp"
	PhaseNotifying           Phase = "notifying"
)

// SourceResult reports one source within a run.
type SourceResult struct {
	Source string               `json:"source"`
	Count  int                  `json:"count"`
	Status tracker.SourceStatus `json:"status"`
	Error  string               `json:"error,omitempty"`
	reconcile.Summary
}

// Result is returned by every run, successful or not.
type Result struct {
	RunID        string         `json:"runId"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Sources      []SourceResult `json:"sources"`
	Notification notify.Report  `json:"notification"`
}

// Counts returns the candidate counts per project.
func (r Result) Counts() (chromium, electron int) {
	for _, s := range r.Sources {
		switch s.Source {
		case string(tracker.ProjectChromium):
			chromium = s.Count
		case string(tracker.ProjectElectron):
			electron = s.Count
		}
	}
	return chromium, electron
}

// Status is ok when every source was ok and degraded otherwise.
func (r Result) Status() string {
	for _, s := range r.Sources {
		if s.Status != tracker.SourceOK {
			return "degraded"
		}
	}
	return "ok"
}

// Event is published after every run.
type Event struct {
	RunID      string         `json:"runId"`
	FinishedAt time.Time      `json:"finishedAt"`
	Chromium   int            `json:"chromium"`
	Electron   int            `json:"electron"`
	Status     string         `json:"status"`
	Sources    []SourceResult `json:"sources"`
}

// EventType implements publisher.Typed.
func (Event) EventType() string { return "refresh.completed" }

func newEvent(r Result) Event {
	chromium, electron := r.Counts()
	return Event{
		RunID:      r.RunID,
		FinishedAt: r.FinishedAt,
		Chromium:   chromium,
		Electron:   electron,
		Status:     r.Status(),
		Sources:    r.Sources,
	}
}
