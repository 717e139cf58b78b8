package locator

import (
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// XPathPrefix marks a chain query that must be evaluated as XPath.
const XPathPrefix = "xpath="

// Kinds of chain entries.
const (
	KindSelector = "selector"
	KindRole     = "role"
	KindText     = "text"
)

// Entry is one step of a locator chain.
type Entry struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

// implicitTags lists elements carrying a role without an explicit attribute.
var implicitTags = map[string][]string{
	"link":     {"a"},
	"button":   {"button"},
	"textbox":  {"input", "textarea"},
	"combobox": {"select"},
	"checkbox": {"input"},
	"radio":    {"input"},
}

// Chain returns the ordered locator chain: primary selector, alternates,
// role and name, then visible texts.
func Chain(loc skill.Locators) []Entry {
	var out []Entry
	seen := make(map[string]bool)
	add := func(kind, q string) {
		if q == "" || seen[q] {
			return
		}
		seen[q] = true
		out = append(out, Entry{Kind: kind, Query: q})
	}
	for _, s := range loc.Selectors() {
		add(KindSelector, s)
	}
	if loc.ByRole != nil && loc.ByRole.Role != "" {
		add(KindRole, RoleXPath(*loc.ByRole))
	}
	for _, t := range loc.ByText {
		add(KindText, TextXPath(t))
	}
	return out
}

// RoleXPath builds an XPath query for a role locator.
func RoleXPath(r skill.ByRole) string {
	conds := []string{"@role=" + xpathLiteral(r.Role)}
	for _, tag := range implicitTags[r.Role] {
		conds = append(conds, "self::"+tag)
	}
	q := "//*[(" + strings.Join(conds, " or ") + ")"
	if r.Name != "" {
		lit := xpathLiteral(r.Name)
		if r.Exact {
			q += " and (@aria-label=" + lit + " or @placeholder=" + lit + " or @title=" + lit + " or normalize-space(.)=" + lit + ")"
		} else {
			q += " and (contains(@aria-label," + lit + ") or contains(@placeholder," + lit + ") or contains(normalize-space(.)," + lit + "))"
		}
	}
	return XPathPrefix + q + "]"
}

// TextXPath builds an XPath query matching the innermost element containing text.
func TextXPath(text string) string {
	lit := xpathLiteral(text)
	return XPathPrefix + "//*[contains(normalize-space(.)," + lit + ") and not(.//*[contains(normalize-space(.)," + lit + ")])]"
}

// IsXPath splits a chain query into its XPath expression, if it is one.
func IsXPath(q string) (string, bool) {
	if strings.HasPrefix(q, XPathPrefix) {
		return strings.TrimPrefix(q, XPathPrefix), true
	}
	return q, false
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
