package browser

import (
	"regexp"
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

var hostInPatternRe = regexp.MustCompile(`https?://([^/]+)/`)

// StartURL derives where a skill should begin: meta.url, then the skill
// domain, then the host embedded in the first url_matches pattern.
func StartURL(s *skill.Skill) string {
	if u := s.Meta.URL; strings.HasPrefix(u, "http") {
		return u
	}
	if d := strings.TrimSpace(s.Domain); d != "" {
		return "https://" + d + "/"
	}
	if len(s.Preconditions.URLMatches) > 0 {
		if m := hostInPatternRe.FindStringSubmatch(s.Preconditions.URLMatches[0]); m != nil && m[1] != "" {
			return "https://" + m[1] + "/"
		}
	}
	return ""
}
