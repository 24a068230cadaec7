package chromium

import "github.com/JakeFAU/release-tracker/internal/tracker"

// StaticMilestones is the last-resort schedule served when neither the
// upstream nor a stored snapshot is available.
func StaticMilestones() []Milestone {
	return []Milestone{
		milestone(120, "2023-10-05", "2023-11-02", "2023-11-30", "2023-12-05"),
		milestone(121, "2023-11-16", "2023-12-14", "2024-01-18", "2024-01-23"),
		milestone(122, "2024-01-04", "2024-02-01", "2024-02-29", "2024-03-05"),
		milestone(123, "2024-02-15", "2024-03-14", "2024-04-11", "2024-04-16"),
		milestone(124, "2024-03-28", "2024-04-25", "2024-05-23", "2024-05-28"),
	}
}

func milestone(n int, branch, beta, latest, stable string) Milestone {
	return Milestone{
		Number:       n,
		BranchPoint:  tracker.MustParseDate(branch),
		EarliestBeta: tracker.MustParseDate(beta),
		LatestBeta:   tracker.MustParseDate(latest),
		StableDate:   tracker.MustParseDate(stable),
	}
}
