// Package chromium adapts the Chromium milestone schedule into releases.
package chromium

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/release-tracker/internal/source"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// SourceName labels batches, logs and metrics.
const SourceName = "chromium"

// Milestone is one decoded schedule entry. Absent dates are zero.
type Milestone struct {
	Number       int
	BranchPoint  tracker.Date
	EarliestBeta tracker.Date
	// LatestBeta is latest_beta, or final_beta when latest_beta is absent.
	LatestBeta tracker.Date
	StableDate tracker.Date
}

type milestoneWire struct {
	Mstone       *int    `json:"mstone"`
	BranchPoint  *string `json:"branch_point"`
	EarliestBeta *string `json:"earliest_beta"`
	LatestBeta   *string `json:"latest_beta"`
	FinalBeta    *string `json:"final_beta"`
	StableDate   *string `json:"stable_date"`
}

type scheduleWire struct {
	Mstones    *[]milestoneWire `json:"mstones"`
	Milestones *[]milestoneWire `json:"milestones"`
}

// Decode validates a schedule payload. The top-level array is read from
// "mstones", or from "milestones" when that key is missing. Every entry
// needs a positive integer mstone; dates that do not parse are treated as
// absent.
func Decode(body []byte) ([]Milestone, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, &source.SchemaError{Source: SourceName, Reason: "expected a JSON object"}
	}
	var wire scheduleWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &source.SchemaError{Source: SourceName, Reason: "decode schedule", Err: err}
	}
	entries := wire.Mstones
	if entries == nil {
		entries = wire.Milestones
	}
	if entries == nil {
		return nil, &source.SchemaError{Source: SourceName, Reason: `missing "mstones" array`}
	}

	out := make([]Milestone, 0, len(*entries))
	for i, e := range *entries {
		if e.Mstone == nil || *e.Mstone <= 0 {
			return nil, &source.SchemaError{
				Source: SourceName,
				Reason: fmt.Sprintf("entry %d has no valid mstone", i),
			}
		}
		latest := optionalDate(e.LatestBeta)
		if latest.IsZero() {
			latest = optionalDate(e.FinalBeta)
		}
		out = append(out, Milestone{
			Number:       *e.Mstone,
			BranchPoint:  optionalDate(e.BranchPoint),
			EarliestBeta: optionalDate(e.EarliestBeta),
			LatestBeta:   latest,
			StableDate:   optionalDate(e.StableDate),
		})
	}
	return out, nil
}

func optionalDate(s *string) tracker.Date {
	if s == nil || *s == "" {
		return tracker.Date{}
	}
	d, err := tracker.ParseDate(*s)
	if err != nil {
		return tracker.Date{}
	}
	return d
}

// Normalize fans each milestone out into up to three candidates: the branch
// point as alpha, the earliest beta as beta, and the stable date as stable.
// A missing date yields no candidate. Output is sorted by date, then ID.
func Normalize(milestones []Milestone) []tracker.Release {
	out := make([]tracker.Release, 0, len(milestones)*3)
	for _, m := range milestones {
		for _, c := range []struct {
			typ  tracker.ReleaseType
			date tracker.Date
		}{
			{tracker.ReleaseAlpha, m.BranchPoint},
			{tracker.ReleaseBeta, m.EarliestBeta},
			{tracker.ReleaseStable, m.StableDate},
		} {
			if c.date.IsZero() {
				continue
			}
			out = append(out, tracker.Release{
				ID:      ReleaseID(m.Number, c.typ),
				Name:    fmt.Sprintf("Chromium %d %s", m.Number, c.typ.Title()),
				Date:    c.date,
				Type:    c.typ,
				Project: tracker.ProjectChromium,
			})
		}
	}
	tracker.SortReleases(out)
	return out
}

// ReleaseID returns the deterministic ID for a milestone channel.
func ReleaseID(milestone int, typ tracker.ReleaseType) string {
	return fmt.Sprintf("chromium-%d-%s", milestone, typ)
}
