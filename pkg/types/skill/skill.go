// Package skill defines the skill record: a set of preconditions paired with
// a locator chain and an executable program that operates one web control.
package skill

import (
	"encoding/json"

	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Actions a skill can perform.
const (
	ActionClick    = "click"
	ActionType     = "type"
	ActionSelect   = "select"
	ActionNavigate = "navigate"
	ActionToggle   = "toggle"
	ActionSubmit   = "submit"
	ActionNone     = "none"
	ActionUnknown  = "unknown"
)

// Program languages understood by the runtime.
const (
	LanguageGo    = "go"
	LanguageSteps = "steps"
)

// ByRole locates an element by accessible role and name.
type ByRole struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Exact bool   `json:"exact,omitempty"`
}

// Locators is the locator chain of a skill. Selector is the primary.
type Locators struct {
	Selector    string         `json:"selector"`
	SelectorAlt []string       `json:"selector_alt,omitempty"`
	ByRole      *ByRole        `json:"by_role,omitempty"`
	ByText      []string       `json:"by_text,omitempty"`
	ByDomIndex  *int           `json:"by_dom_index,omitempty"`
	BBox        *snapshot.Rect `json:"bbox,omitempty"`
}

// ViewportBounds are the minimum viewport dimensions a skill needs.
type ViewportBounds struct {
	MinWidth  int `json:"min_width,omitempty"`
	MinHeight int `json:"min_height,omitempty"`
}

// CookieGuard lists cookies to seed and cookies that must be present.
type CookieGuard struct {
	Set           []Cookie `json:"set,omitempty"`
	RequiredNames []string `json:"required_names,omitempty"`
}

// Cookie is a browser cookie to be seeded before execution.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Preconditions gate execution of a skill.
type Preconditions struct {
	URLMatches []string        `json:"url_matches"`
	Exists     []string        `json:"exists"`
	NotExists  []string        `json:"not_exists,omitempty"`
	Viewport   *ViewportBounds `json:"viewport,omitempty"`
	Cookies    *CookieGuard    `json:"cookies,omitempty"`
	LoginState string          `json:"login_state,omitempty"`
}

// Program is the executable part of a skill.
type Program struct {
	Language string `json:"language"`
	Entry    string `json:"entry"`
	Code     string `json:"code"`
}

// Evidence records where a skill was derived from.
type Evidence struct {
	Tag     string         `json:"tag,omitempty"`
	Role    string         `json:"role,omitempty"`
	Name    string         `json:"name,omitempty"`
	From    string         `json:"from,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
	BBox    *snapshot.Rect `json:"bbox,omitempty"`
}

// RepairNotes is attached to meta after a repair.
type RepairNotes struct {
	Diagnostic json.RawMessage `json:"diagnostic,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
}

// Meta carries bookkeeping for a skill.
type Meta struct {
	SchemaVersion string       `json:"schema_version"`
	SourceDir     string       `json:"source_dir,omitempty"`
	URL           string       `json:"url,omitempty"`
	Description   string       `json:"description,omitempty"`
	RepairNotes   *RepairNotes `json:"repair_notes,omitempty"`
}

// Skill is a (preconditions, program) pair operating one web control.
type Skill struct {
	ID            string          `json:"id"`
	Domain        string          `json:"domain"`
	Label         string          `json:"label,omitempty"`
	Slug          string          `json:"slug,omitempty"`
	Action        string          `json:"action"`
	Preconditions Preconditions   `json:"preconditions"`
	Locators      Locators        `json:"locators"`
	ArgsSchema    json.RawMessage `json:"args_schema,omitempty"`
	Program       Program         `json:"program"`
	Evidence      *Evidence       `json:"evidence,omitempty"`
	Meta          Meta            `json:"meta"`
}

// Selectors returns the primary selector followed by the alternatives.
func (l Locators) Selectors() []string {
	out := make([]string, 0, 1+len(l.SelectorAlt))
	if l.Selector != "" {
		out = append(out, l.Selector)
	}
	return append(out, l.SelectorAlt...)
}
