package stream

import "sort"

// Selection is the outcome of the selector: the top-scored primary and the
// optional lower-tier secondary. Both always progress through finalization;
// hiding the secondary is a last-step slice in the orchestrator, so that
// the additionalstream toggle doesn't change the processing path.
type Selection struct {
	Primary   *Candidate
	Secondary *Candidate
}

// secondaryTier maps the primary's resolution to the target tier for the
// alternate stream. At or below 480p there's no lower tier worth offering.
func secondaryTier(primaryResolution int) int {
	switch primaryResolution {
	case 2160, 1440:
		return 1080
	case 1080:
		return 720
	case 720:
		return 480
	}
	return 0
}

// Select sorts candidates by descending score (stable, so score ties keep
// the merged provider order) and picks the primary plus the first
// lower-tier candidate with a different identity as the secondary.
func Select(cands []Candidate) Selection {
	if len(cands) == 0 {
		return Selection{}
	}

	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	primary := &sorted[0]
	result := Selection{Primary: primary}

	target := secondaryTier(primary.Resolution)
	if target == 0 {
		return result
	}
	for i := 1; i < len(sorted); i++ {
		c := &sorted[i]
		if c.Resolution == target && c.Identity() != primary.Identity() {
			result.Secondary = c
			break
		}
	}
	return result
}
