package skills

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// ExportProgram writes the program of s to dir as <Entry>.go (or .steps).
// An existing file is never overwritten: _1, _2, ... suffixes are tried.
func ExportProgram(s *skill.Skill, dir string) (string, error) {
	if s.Program.Code == "" {
		return "", errors.Errorf("skill %s has no program code", s.ID)
	}
	name := s.Program.Entry
	if name == "" {
		name = "Program"
	}
	ext := ".go"
	if s.Program.Language == skill.LanguageSteps {
		ext = ".steps.json"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}

	path := filepath.Join(dir, name+ext)
	for i := 1; rundir.Exists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, i, ext))
	}
	if err := os.WriteFile(path, []byte(s.Program.Code), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}
