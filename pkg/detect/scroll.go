package detect

import "github.com/jingkaihe/webskill/pkg/types/snapshot"

// ScrollInfo is the content of scroll_info.json.
type ScrollInfo struct {
	Steps             int  `json:"steps"`
	MaxSteps          int  `json:"max_steps"`
	DelayMs           int  `json:"delay_ms"`
	ReachedBottom     bool `json:"reached_bottom"`
	ScrollHeightStart int  `json:"scroll_height_before"`
	ScrollHeightEnd   int  `json:"scroll_height_after"`
	NewCount          int  `json:"new_count"`
}

// ScrollPosition is reported by each autoscroll step.
type ScrollPosition struct {
	Y            float64 `json:"y"`
	Height       float64 `json:"h"`
	ScrollHeight float64 `json:"sh"`
}

// AtBottom reports whether the viewport reaches the end of the document.
func (p ScrollPosition) AtBottom() bool {
	return p.Y+p.Height >= p.ScrollHeight-2
}

// ComputeScrollDiff returns the scrolled elements absent from base.
func ComputeScrollDiff(base, scrolled []snapshot.Element) snapshot.ScrollDiff {
	seen := make(map[string]bool, len(base))
	for _, e := range base {
		seen[e.Fingerprint()] = true
	}
	diff := snapshot.ScrollDiff{
		InitialCount:  len(base),
		ScrolledCount: len(scrolled),
		NewElements:   []snapshot.Element{},
	}
	for _, e := range scrolled {
		if !seen[e.Fingerprint()] {
			diff.NewElements = append(diff.NewElements, e)
		}
	}
	diff.NewCount = len(diff.NewElements)
	return diff
}
