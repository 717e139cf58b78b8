package afcdb

import (
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// InvariantFromControl extracts the comparable semantic core of a control.
func InvariantFromControl(c afc.Control) afc.Invariant {
	sig := c.SemanticSignature
	return afc.Invariant{
		CleanText:   nonNil(sig.CleanText),
		NormLabel:   sig.NormLabel,
		Action:      c.Action,
		Role:        nonNil(sig.Role),
		URLPattern:  sig.URLPattern,
		FormContext: sig.FormContext,
		Env: afc.Env{
			LoginState:      sig.LoginState,
			CookiesRequired: sig.CookiesRequired,
			ViewportMin:     sig.ViewportMin,
			EnvSensitivity:  sig.EnvSensitivity,
		},
	}
}

// GlobalSemanticFrom builds the global semantic signature of an entry from
// a run-level abstract skill.
func GlobalSemanticFrom(a afc.AbstractSkill) afc.GlobalSemantic {
	return afc.GlobalSemantic{
		TaskGroup:      a.TaskGroup,
		TaskRole:       a.TaskRole,
		NormLabel:      a.NormLabel,
		Action:         a.Action,
		SemanticText:   a.SemanticSignature.SemanticText,
		EnvSensitivity: a.SemanticSignature.EnvSensitivity,
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
