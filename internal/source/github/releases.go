// Package github adapts the GitHub release listing for electron/electron
// into tracker releases.
package github

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-tracker/internal/source"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// SourceName identifies this source in logs, metrics, and results.
const SourceName = "electron"

// RawRelease is one entry of the upstream listing.
type RawRelease struct {
	ID          int64  `json:"id"`
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	PublishedAt string `json:"published_at"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
	Body        string `json:"body"`
}

// Decode parses one page. Anything but a JSON array is a schema mismatch.
func Decode(body []byte) ([]RawRelease, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &source.SchemaError{Source: SourceName, Reason: "payload is not an array", Err: err}
	}
	if raw == nil {
		return nil, &source.SchemaError{Source: SourceName, Reason: "payload is null"}
	}
	out := make([]RawRelease, 0, len(raw))
	for i, entry := range raw {
		var r RawRelease
		if err := json.Unmarshal(entry, &r); err != nil {
			return nil, &source.SchemaError{Source: SourceName, Reason: fmt.Sprintf("entry %d", i), Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

// Classify maps the prerelease flag and tag onto a release type. Tag
// matching is case-sensitive; Electron tags are lowercase.
func Classify(r RawRelease) tracker.ReleaseType {
	if !r.Prerelease {
		return tracker.ReleaseStable
	}
	tag := r.TagName
	switch {
	case strings.Contains(tag, "alpha"), strings.Contains(tag, "nightly"):
		return tracker.ReleaseAlpha
	case strings.Contains(tag, "beta"):
		return tracker.ReleaseBeta
	default:
		return tracker.ReleaseStable
	}
}

// ReleaseID is the stable identifier for an upstream release.
func ReleaseID(id int64) string {
	return "electron-" + strconv.FormatInt(id, 10)
}

// Normalize converts raw entries to candidates. Drafts and entries with a
// bad id or publication date are dropped and logged.
func Normalize(raw []RawRelease, logger *zap.Logger) []tracker.Release {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]tracker.Release, 0, len(raw))
	tags := make(map[string]string, len(raw))
	for _, r := range raw {
		if r.Draft {
			logger.Debug("skipping draft release", zap.String("tag", r.TagName))
			continue
		}
		if r.ID <= 0 {
			logger.Warn("skipping release without id", zap.String("tag", r.TagName))
			continue
		}
		date, err := tracker.ParseDate(r.PublishedAt)
		if err != nil {
			logger.Warn("skipping release with bad published_at",
				zap.Int64("id", r.ID),
				zap.String("published_at", r.PublishedAt),
				zap.Error(err),
			)
			continue
		}
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = r.TagName
		}
		rel := tracker.Release{
			ID:      ReleaseID(r.ID),
			Name:    name,
			Date:    date,
			Type:    Classify(r),
			Project: tracker.ProjectElectron,
		}
		tags[rel.ID] = r.TagName
		out = append(out, rel)
	}
	sortByDateThenVersion(out, tags)
	return out
}

func sortByDateThenVersion(releases []tracker.Release, tags map[string]string) {
	slices.SortStableFunc(releases, func(a, b tracker.Release) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		va, errA := semver.NewVersion(tags[a.ID])
		vb, errB := semver.NewVersion(tags[b.ID])
		if errA == nil && errB == nil {
			if c := va.Compare(vb); c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID, b.ID)
	})
}
