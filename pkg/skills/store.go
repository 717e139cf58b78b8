package skills

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// SkillGlob matches skill files below a root.
const SkillGlob = "**/" + FilePrefix + "*.json"

// Load reads a skill file.
func Load(path string) (*skill.Skill, error) {
	var s skill.Skill
	if err := rundir.ReadJSON(path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes s as indented JSON.
func Save(path string, s *skill.Skill) error {
	return rundir.WriteJSON(path, s)
}

// Discover returns every skill file below root, sorted.
func Discover(root string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), SkillGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", root)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// FindByID returns the skill file under runDir whose record id is id. When
// several match, the shortest path wins.
func FindByID(runDir, id string) (string, error) {
	paths, err := Discover(runDir)
	if err != nil {
		return "", err
	}
	var best string
	for _, p := range paths {
		if !strings.Contains(filepath.Base(p), "_"+id) {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(data, &head) != nil || head.ID != id {
			continue
		}
		if best == "" || len(p) < len(best) {
			best = p
		}
	}
	if best == "" {
		return "", errors.Wrapf(fs.ErrNotExist, "skill %s not found under %s", id, runDir)
	}
	return best, nil
}
