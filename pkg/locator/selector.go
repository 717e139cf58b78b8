package locator

import (
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

const (
	maxAlts  = 3
	maxTexts = 3
)

func tagOrAny(tag string) string {
	if tag = strings.ToLower(tag); tag != "" {
		return tag
	}
	return "*"
}

// BuildSelector returns the most stable simple CSS selector for an element:
// #id, then tag[name], then a role selector, then classes, then the tag.
func BuildSelector(e snapshot.Element) string {
	tag := tagOrAny(e.Tag)
	if e.ID != "" {
		return "#" + e.ID
	}
	if e.Name != "" {
		return tag + "[name='" + e.Name + "']"
	}
	cls := StableClasses(e.Class)
	if e.Role != "" {
		if len(cls) > 0 {
			return tag + "." + strings.Join(cls, ".") + "[role='" + e.Role + "']"
		}
		return tag + "[role='" + e.Role + "']"
	}
	if len(cls) > 0 {
		return tag + "." + strings.Join(cls, ".")
	}
	return tag
}

// SelectorAlts returns up to three fallback selectors, excluding primary.
func SelectorAlts(e snapshot.Element, primary string) []string {
	tag := tagOrAny(e.Tag)
	var cands []string
	if e.ID != "" {
		cands = append(cands, "#"+e.ID)
	}
	if e.Name != "" {
		cands = append(cands, tag+"[name='"+e.Name+"']")
	}
	if e.Role != "" {
		cands = append(cands, tag+"[role='"+e.Role+"']", "[role='"+e.Role+"']")
	}
	if cls := StableClasses(e.Class); len(cls) > 0 {
		cands = append(cands, tag+"."+strings.Join(cls, "."))
	}
	return Dedup(cands, maxAlts, primary)
}

// BuildByRole returns the role/name locator, or nil when no role applies.
func BuildByRole(e snapshot.Element) *skill.ByRole {
	role := strings.TrimSpace(e.Role)
	if role == "" {
		role = InferRole(e.Tag, e.Type)
	}
	if role == "" {
		return nil
	}
	out := &skill.ByRole{Role: role}
	raw := FirstNonEmpty(e.Aria.Label, e.Aria.Name, e.Placeholder, e.Title, NormText(FirstNonEmpty(e.Text, e.InnerText)))
	if raw == "" {
		return out
	}
	if name := StripDynamicTokens(NormText(raw)); name != "" {
		out.Name = name
		out.Exact = CountDigits(name) == 0 && RuneLen(name) <= 24
	}
	return out
}

// BuildByText returns up to three short, mostly non-numeric visible texts.
func BuildByText(e snapshot.Element) []string {
	var texts []string
	for _, s := range []string{e.Text, e.InnerText, FirstNonEmpty(e.Aria.Label, e.Aria.Name)} {
		if t := StripDynamicTokens(NormText(s)); TextUsable(t) {
			texts = append(texts, t)
		}
	}
	return Dedup(texts, maxTexts)
}

// TextUsable reports whether a text is short and static enough to locate by.
func TextUsable(s string) bool {
	n := RuneLen(s)
	if n < 2 || n > 36 {
		return false
	}
	return CountDigits(s) <= max(1, n/6)
}

// Build derives the full locator set for an element given its primary selector.
func Build(e snapshot.Element, primary string) skill.Locators {
	loc := skill.Locators{
		Selector:    primary,
		SelectorAlt: SelectorAlts(e, primary),
		ByRole:      BuildByRole(e),
		ByText:      BuildByText(e),
	}
	if idx := e.Index; idx >= 0 {
		loc.ByDomIndex = &idx
	}
	if !e.BBox.Empty() {
		b := e.BBox
		loc.BBox = &b
	}
	return loc
}

// Dedup keeps the first occurrence of each non-empty value, skipping any in
// exclude, and stops after limit values (limit <= 0 means unlimited).
func Dedup(values []string, limit int, exclude ...string) []string {
	seen := make(map[string]bool, len(values)+len(exclude))
	for _, x := range exclude {
		seen[x] = true
	}
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
