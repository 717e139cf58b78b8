package browser

import (
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

var sameSiteValues = map[string]string{
	"strict": "Strict",
	"lax":    "Lax",
	"none":   "None",
}

// SanitizeCookies drops cookies without a name or a target (url, or
// domain with path) and normalises sameSite.
func SanitizeCookies(cookies []skill.Cookie) []skill.Cookie {
	var out []skill.Cookie
	for _, c := range cookies {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		item := skill.Cookie{
			Name:     name,
			Value:    strings.TrimSpace(c.Value),
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		switch {
		case c.URL != "":
			item.URL = c.URL
		case c.Domain != "":
			item.Domain = c.Domain
			item.Path = c.Path
			if item.Path == "" {
				item.Path = "/"
			}
		default:
			continue
		}
		item.SameSite = sameSiteValues[strings.ToLower(c.SameSite)]
		out = append(out, item)
	}
	return out
}

// MissingCookies reports which of names are missing from cookies.
func MissingCookies(cookies []skill.Cookie, names []string) []string {
	have := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		have[c.Name] = true
	}
	var missing []string
	for _, n := range names {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	return missing
}
