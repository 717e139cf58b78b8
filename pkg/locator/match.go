package locator

import (
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// attrValue extracts the value of [attr=...] from a simple selector.
func attrValue(selector, attr string) (string, bool) {
	key := "[" + attr + "="
	i := strings.Index(selector, key)
	if i < 0 {
		return "", false
	}
	rest := selector[i+len(key):]
	j := strings.Index(rest, "]")
	if j < 0 {
		return "", false
	}
	return strings.Trim(rest[:j], `'"`), true
}

// classChain returns the tag and classes of a selector such as tag.a.b[x].
func classChain(selector string) (string, []string) {
	if i := strings.Index(selector, "["); i >= 0 {
		selector = selector[:i]
	}
	parts := strings.Split(selector, ".")
	var classes []string
	for _, p := range parts[1:] {
		if p != "" {
			classes = append(classes, p)
		}
	}
	return parts[0], classes
}

// MatchSelector reports whether a simple selector plausibly targets e.
// Only #id, [name=], [role=] and class chains are understood.
func MatchSelector(selector string, e snapshot.Element) bool {
	if selector == "" {
		return false
	}
	if strings.HasPrefix(selector, "#") {
		id := strings.TrimPrefix(selector, "#")
		if i := strings.IndexAny(id, ".[ >:"); i >= 0 {
			id = id[:i]
		}
		return e.ID == id
	}
	if name, ok := attrValue(selector, "name"); ok {
		return e.Name == name
	}
	if role, ok := attrValue(selector, "role"); ok && !strings.Contains(selector, ".") {
		return e.Role == role
	}
	tag, classes := classChain(selector)
	if tag != "" && tag != "*" && !strings.EqualFold(tag, e.Tag) {
		return false
	}
	have := make(map[string]bool)
	for _, c := range e.Classes() {
		have[c] = true
	}
	for _, c := range classes {
		if !have[c] {
			return false
		}
	}
	if role, ok := attrValue(selector, "role"); ok && e.Role != role {
		return false
	}
	return len(classes) > 0 || (tag != "" && tag != "*")
}

// FindElement returns the first element matching selector.
func FindElement(elements []snapshot.Element, selector string) (snapshot.Element, bool) {
	for _, e := range elements {
		if MatchSelector(selector, e) {
			return e, true
		}
	}
	return snapshot.Element{}, false
}
