// Package afcdb builds Abstract Function Control snapshots of a run,
// maintains the global AFC database of abstract skills and their cases,
// matches cases against new pages and evolves case weights from
// execution results.
package afcdb

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Normalized control labels.
const (
	LabelMarketingCard = "Clickable_MarketingCard"
	LabelLogin         = "Clickable_Login"
	LabelSearchBox     = "Editable_SearchBox"
	LabelSubmit        = "Clickable_Submit"
	LabelTextfield     = "Editable_Textfield"
	LabelLink          = "Link_Navigate"
	LabelUnknown       = "UnknownLabel"
)

// Task groups and roles inferred from labels.
const (
	GroupAuth       = "Auth"
	GroupSearch     = "Search"
	GroupMarketing  = "Marketing"
	GroupNavigation = "Navigation"
	GroupUnknown    = "UnknownGroup"

	RoleLogin      = "Login"
	RoleEnterQuery = "EnterQuery"
	RoleSubmit     = "Submit"
	RoleViewCard   = "ViewCard"
	RoleNavigate   = "Navigate"
	RoleUnknown    = "UnknownRole"
)

var (
	cleanSepRe   = regexp.MustCompile(`[\n,，]`)
	cleanDropRe  = regexp.MustCompile(`[0-9０-９年月日号天晚间位人次]+`)
	numericRe    = regexp.MustCompile(`^[0-9.]+$`)
	wordStartRe  = regexp.MustCompile(`^[a-zA-Z0-9\x{4e00}-\x{9fa5}]`)
	loginWords   = []string{"登录", "登錄", "登入"}
	searchWords  = []string{"搜索", "查找", "查询"}
	promoWordsZH = []string{"携程旅行保障", "放心住", "放心飞", "广告", "推荐", "优惠", "特价", "促销"}
	promoWordsEN = []string{"promotion", "promo", "deal", "discount", "offer", "sale"}
	promoSelKeys = []string{"psf_item_link", "banner", "promo", "ad_"}
)

// CleanText reduces control text to function words: separators become
// spaces, digits and date or quantity characters are dropped, numeric
// tokens and lone symbols are discarded, and duplicates are removed in order.
func CleanText(text string) []string {
	if text == "" {
		return nil
	}
	s := cleanSepRe.ReplaceAllString(text, " ")
	s = cleanDropRe.ReplaceAllString(s, " ")

	var out []string
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		if numericRe.MatchString(tok) {
			continue
		}
		if utf8.RuneCountInString(tok) == 1 && !wordStartRe.MatchString(tok) {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type roleSet map[string]bool

func newRoleSet(roles []string) roleSet {
	out := make(roleSet, len(roles))
	for _, r := range roles {
		out[strings.ToLower(r)] = true
	}
	return out
}

func (r roleSet) any(names ...string) bool {
	for _, n := range names {
		if r[n] {
			return true
		}
	}
	return false
}

// isMarketing reports whether a clickable control looks like a promotional
// card rather than a functional button or link.
func isMarketing(tag string, roles roleSet, selector, text string) bool {
	if tag != "a" && tag != "button" && !roles.any("link", "button") {
		return false
	}
	if containsAny(text, promoWordsZH) || containsAny(strings.ToLower(text), promoWordsEN) {
		return true
	}
	return containsAny(strings.ToLower(selector), promoSelKeys)
}

// NormLabel classifies a control from its tag, roles, selector and cleaned
// text tokens.
func NormLabel(tag string, roles []string, selector string, tokens []string) string {
	tag = strings.ToLower(tag)
	rs := newRoleSet(roles)
	text := strings.Join(tokens, "")
	lower := strings.ToLower(text)

	switch {
	case isMarketing(tag, rs, selector, text):
		return LabelMarketingCard
	case containsAny(text, loginWords) || strings.Contains(lower, "login"):
		return LabelLogin
	case containsAny(text, searchWords) || containsAny(lower, []string{"search", "submit", "go"}):
		if rs.any("textbox", "searchbox") || tag == "input" || tag == "textarea" {
			return LabelSearchBox
		}
		return LabelSubmit
	case tag == "input" || tag == "textarea" || rs.any("textbox"):
		return LabelTextfield
	case tag == "a" || rs.any("link"):
		return LabelLink
	}
	return LabelUnknown
}

// TaskGroupRole derives the coarse task group and role of a labelled control.
// Both are empty when nothing can be inferred.
func TaskGroupRole(label string, tokens []string) (string, string) {
	text := strings.Join(tokens, "")
	lower := strings.ToLower(text)

	switch {
	case label == LabelLogin || containsAny(text, loginWords) || strings.Contains(lower, "login"):
		return GroupAuth, RoleLogin
	case (label == LabelSearchBox || label == LabelSubmit) &&
		(containsAny(text, searchWords) || strings.Contains(lower, "search")):
		if label == LabelSearchBox {
			return GroupSearch, RoleEnterQuery
		}
		return GroupSearch, RoleSubmit
	case label == LabelMarketingCard:
		return GroupMarketing, RoleViewCard
	case label == LabelLink:
		return GroupNavigation, RoleNavigate
	}
	return "", ""
}

// URLPathPattern returns the path of rawURL without query and a pattern
// matching the domain plus the first path segment.
func URLPathPattern(rawURL, domain string) (string, string) {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	path := "/"
	if i := strings.Index(rest, "/"); i >= 0 {
		path = "/" + rest[i+1:]
	}
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}

	var first string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			first = p
			break
		}
	}
	if first == "" {
		return path, "^https://" + domain + "/.*"
	}
	return path, "^https://" + domain + "/" + first + ".*"
}

// AbstractSkillID joins a task group, role and label into the abstract
// skill key "group.role:label".
func AbstractSkillID(group, role, label string) string {
	if group == "" {
		group = GroupUnknown
	}
	if role == "" {
		role = RoleUnknown
	}
	if label == "" {
		label = LabelUnknown
	}
	return group + "." + role + ":" + label
}
