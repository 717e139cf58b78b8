package skills

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// SnippetFeatures are the attributes of a snippet's top element.
type SnippetFeatures struct {
	Tag         string
	ID          string
	Name        string
	Class       string
	Role        string
	AriaLabel   string
	InputType   string
	Href        string
	Placeholder string
	Title       string
	// TestAttr and TestID hold the first of data-testid, data-qa or data-cy.
	TestAttr string
	TestID   string
	Text     string
}

var testAttrs = []string{"data-testid", "data-qa", "data-cy"}

// ParseSnippet extracts the top element's features from an outerHTML snippet.
func ParseSnippet(html string) (*SnippetFeatures, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse snippet")
	}
	top := doc.Find("body").Children().First()
	if top.Length() == 0 {
		top = doc.Find("*").Not("html, head, body").First()
	}
	if top.Length() == 0 {
		return nil, errors.New("snippet has no element")
	}

	attr := func(name string) string {
		v, _ := top.Attr(name)
		return strings.TrimSpace(v)
	}
	f := &SnippetFeatures{
		Tag:         strings.ToLower(goquery.NodeName(top)),
		ID:          attr("id"),
		Name:        attr("name"),
		Class:       attr("class"),
		Role:        attr("role"),
		AriaLabel:   locator.FirstNonEmpty(attr("aria-label"), attr("aria_name"), attr("aria-labelledby")),
		InputType:   strings.ToLower(attr("type")),
		Href:        attr("href"),
		Placeholder: attr("placeholder"),
		Title:       attr("title"),
		Text:        locator.NormText(top.Text()),
	}
	for _, a := range testAttrs {
		if v := attr(a); v != "" {
			f.TestAttr, f.TestID = a, v
			break
		}
	}
	return f, nil
}

// SnippetLocators derives the primary selector, alternatives, role locator
// and texts from snippet features.
func SnippetLocators(f *SnippetFeatures) (primary string, alts []string, byRole *skill.ByRole, texts []string) {
	tag := f.Tag
	if tag == "" {
		tag = "*"
	}
	classes := locator.StableClasses(f.Class)

	var byID, byName, byTest, byRoleSel, byAria, byClass string
	if f.ID != "" {
		byID = "#" + f.ID
	}
	if f.Name != "" {
		byName = tag + "[name='" + f.Name + "']"
	}
	if f.TestID != "" {
		byTest = "[" + f.TestAttr + "='" + f.TestID + "']"
	}
	if f.Role != "" {
		byRoleSel = tag + "[role='" + f.Role + "']"
		if f.AriaLabel != "" {
			byAria = byRoleSel + "[aria-label='" + f.AriaLabel + "']"
		}
	}
	if len(classes) > 0 {
		byClass = tag + "." + strings.Join(classes, ".")
	}

	primary = locator.FirstNonEmpty(byID, byName, byTest, byAria, byClass)
	alts = locator.Dedup([]string{byID, byName, byTest, byRoleSel, byAria, byClass}, 3, primary)

	if f.Role != "" {
		byRole = &skill.ByRole{Role: f.Role}
		if name := locator.NormText(f.AriaLabel); name != "" {
			byRole.Name = name
			byRole.Exact = true
		}
	}
	texts = locator.Dedup([]string{
		locator.NormText(f.Text), locator.NormText(f.Placeholder), locator.NormText(f.Title),
	}, 3)
	return primary, alts, byRole, texts
}

// RefineFromSnippet merges snippet-derived locators into s. With prefer,
// a snippet primary replaces the current one, which moves to the front of
// the alternatives. The primary always ends up first in preconditions.exists.
func RefineFromSnippet(s *skill.Skill, html string, prefer bool) error {
	f, err := ParseSnippet(html)
	if err != nil {
		return err
	}

	switch strings.ToLower(s.Action) {
	case "", skill.ActionNone, skill.ActionUnknown:
		s.Action = locator.InferAction(f.Tag, f.InputType, f.Role, f.Href, "")
		schema, err := ArgsSchema(s.Action)
		if err != nil {
			return err
		}
		s.ArgsSchema = schema
	}

	primary, alts, byRole, texts := SnippetLocators(f)
	loc := &s.Locators
	if primary != "" && !prefer {
		alts = append([]string{primary}, alts...)
	}
	if primary != "" && prefer {
		if old := loc.Selector; old != "" && old != primary {
			loc.SelectorAlt = append([]string{old}, loc.SelectorAlt...)
		}
		loc.Selector = primary
	}
	if len(alts) > 0 {
		loc.SelectorAlt = append(alts, loc.SelectorAlt...)
	}
	loc.SelectorAlt = locator.Dedup(loc.SelectorAlt, 3, loc.Selector)
	if byRole != nil {
		loc.ByRole = byRole
	}
	if len(texts) > 0 {
		loc.ByText = locator.Dedup(append(texts, loc.ByText...), 3)
	}

	EnsurePrimaryExists(s)
	return nil
}

// EnsurePrimaryExists moves the primary selector to the front of
// preconditions.exists.
func EnsurePrimaryExists(s *skill.Skill) {
	sel := s.Locators.Selector
	if sel == "" {
		return
	}
	exists := []string{sel}
	for _, x := range s.Preconditions.Exists {
		if x != sel {
			exists = append(exists, x)
		}
	}
	s.Preconditions.Exists = exists
}
