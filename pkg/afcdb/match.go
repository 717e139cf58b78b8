package afcdb

import (
	"sort"
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// Candidate is a control of a new page scored against a skill case.
type Candidate struct {
	ControlID     string             `json:"control_id"`
	Score         float64            `json:"score"`
	FeatureScores map[string]float64 `json:"feature_scores"`
	Control       afc.Control        `json:"control"`
}

func lowerSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = true
		}
	}
	return out
}

// Jaccard is the overlap of two case-insensitive token sets. Two empty sets
// are identical; one empty set matches nothing.
func Jaccard(a, b []string) float64 {
	sa, sb := lowerSet(a), lowerSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for k := range sa {
		if sb[k] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// BoolEq is 1 when both values are set and equal, else 0.
func BoolEq(a, b string) float64 {
	if a == "" || b == "" || a != b {
		return 0
	}
	return 1
}

// URLPatternSim compares URL patterns: equal patterns score 1, a pattern
// prefixing the other scores 0.5.
func URLPatternSim(a, b string) float64 {
	switch {
	case a == b:
		return 1
	case a == "" || b == "":
		return 0
	case strings.HasPrefix(a, b) || strings.HasPrefix(b, a):
		return 0.5
	}
	return 0
}

// FeatureScores compares an invariant with a control feature by feature.
func FeatureScores(inv afc.Invariant, c afc.Control) map[string]float64 {
	sig := c.SemanticSignature
	return map[string]float64{
		afc.FeatureCleanText:  Jaccard(inv.CleanText, sig.CleanText),
		afc.FeatureNormLabel:  BoolEq(inv.NormLabel, sig.NormLabel),
		afc.FeatureAction:     BoolEq(inv.Action, c.Action),
		afc.FeatureRole:       Jaccard(inv.Role, sig.Role),
		afc.FeatureURLPattern: URLPatternSim(inv.URLPattern, sig.URLPattern),
		afc.FeatureLogin:      BoolEq(inv.Env.LoginState, sig.LoginState),
	}
}

// Similarity is the theta-weighted mean of the feature scores, counting
// only positive weights, clamped to [0, 1].
func Similarity(scores, theta map[string]float64) float64 {
	if theta == nil {
		theta = afc.DefaultTheta()
	}
	var sum, weights float64
	for _, f := range afc.Features {
		w := theta[f]
		if w <= 0 {
			continue
		}
		sum += w * scores[f]
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return clamp(sum/weights, 0, 1)
}

// FindCandidateControls scores every control of page against the case and
// returns those at or above minScore, best first. topK <= 0 keeps them all.
func FindCandidateControls(c afc.SkillCase, page *afc.PageSnapshot, topK int, minScore float64) []Candidate {
	if page == nil {
		return nil
	}
	var out []Candidate
	for _, ctrl := range page.Controls {
		scores := FeatureScores(c.SInvariant, ctrl)
		s := Similarity(scores, c.ThetaWeights)
		if s < minScore {
			continue
		}
		out = append(out, Candidate{
			ControlID:     ctrl.ControlID,
			Score:         s,
			FeatureScores: scores,
			Control:       ctrl,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
