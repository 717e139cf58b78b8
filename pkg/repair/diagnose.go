package repair

import (
	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Root causes.
const (
	// CauseMismatch means the page no longer satisfies preconditions.exists.
	CauseMismatch = "mismatch"
	// CauseDamage means the guards hold but locators or program may be stale.
	CauseDamage = "damage"
)

// Signals compare the old and new snapshots around a skill's primary
// selector.
type Signals struct {
	SelectorAlive map[string]bool `json:"selector_alive"`
	OverlayHits   []string        `json:"overlay_hits"`
	RoleChanged   bool            `json:"role_changed"`
	TextChanged   bool            `json:"text_changed"`
	ElementNew    bool            `json:"element_new"`
	MissingExists []string        `json:"missing_exists,omitempty"`
}

// PrimaryAlive reports whether the primary selector survived.
func (sig Signals) PrimaryAlive(s *skill.Skill) bool {
	return sig.SelectorAlive[s.Locators.Selector]
}

// Diagnostic is the outcome of Diagnose.
type Diagnostic struct {
	RootCause string  `json:"root_cause"`
	Signals   Signals `json:"signals"`
	Notes     string  `json:"notes"`
}

func shortText(s string) string { return locator.Truncate(s, 64) }

// Diff computes the signals between the old and new snapshot for s.
func Diff(old, cur *Snapshot, s *skill.Skill) Signals {
	sig := Signals{
		SelectorAlive: make(map[string]bool),
		OverlayHits:   locator.OverlayHits(cur.Elements),
	}
	for _, sel := range s.Locators.Selectors() {
		sig.SelectorAlive[sel] = cur.Exists(sel)
	}

	primary := s.Locators.Selector
	newEl, inNew := cur.Find(primary)
	oldEl, inOld := old.Find(primary)
	switch {
	case inNew && !inOld:
		sig.ElementNew = true
	case inNew && inOld:
		sig.RoleChanged = newEl.Role != oldEl.Role
		sig.TextChanged = shortText(newEl.Text) != shortText(oldEl.Text)
	}
	return sig
}

// Diagnose classifies why s may fail on the new snapshot.
func Diagnose(s *skill.Skill, old, cur *Snapshot) Diagnostic {
	sig := Diff(old, cur, s)
	for _, sel := range s.Preconditions.Exists {
		if !cur.Exists(sel) {
			sig.MissingExists = append(sig.MissingExists, sel)
		}
	}
	if len(sig.MissingExists) > 0 {
		return Diagnostic{
			RootCause: CauseMismatch,
			Signals:   sig,
			Notes:     "preconditions.exists not satisfied on new snapshot",
		}
	}
	return Diagnostic{
		RootCause: CauseDamage,
		Signals:   sig,
		Notes:     "exists satisfied; locators or program may require repair",
	}
}
