// Package skills builds skill records from detection runs and manages them on
// disk: snippet refinement, validation, discovery, program export and
// SKILL.md cards.
package skills

import (
	"regexp"
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// SchemaVersion is written to every built skill.
const SchemaVersion = "skill_schema_v1"

// FilePrefix starts every skill file name.
const FilePrefix = "Skill_"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Slug turns a selector into a file-name-safe piece of at most 64 bytes.
func Slug(selector string) string {
	s := strings.Trim(unsafeFileChars.ReplaceAllString(selector, "_"), "_")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "sel"
	}
	return s
}

// FileName returns Skill_<slug>_<id>.json for s.
func FileName(s *skill.Skill) string {
	slug := s.Slug
	if slug == "" {
		slug = Slug(s.Locators.Selector)
	}
	return FilePrefix + slug + "_" + s.ID + ".json"
}
