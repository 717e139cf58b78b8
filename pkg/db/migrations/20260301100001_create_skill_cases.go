package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/db"
)

// Migration20260301100001CreateSkillCases creates the skill_cases table.
// skill_id is stored as '' when a case has no concrete skill.
func Migration20260301100001CreateSkillCases() db.Migration {
	return db.Migration{
		Version:     20260301100001,
		Description: "Create skill_cases table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS skill_cases (
					abstract_skill_id TEXT NOT NULL REFERENCES abstract_skills(id) ON DELETE CASCADE,
					position INTEGER NOT NULL,
					run_dir TEXT NOT NULL,
					domain TEXT NOT NULL DEFAULT '',
					afc_control_id TEXT NOT NULL,
					skill_id TEXT NOT NULL DEFAULT '',
					s_invariant TEXT NOT NULL DEFAULT '{}',
					a_template TEXT NOT NULL DEFAULT '{}',
					r_history TEXT NOT NULL DEFAULT '{}',
					theta_weights TEXT NOT NULL DEFAULT '{}',
					levels TEXT,
					rebuild_grade INTEGER,
					evolve_meta TEXT,
					UNIQUE (abstract_skill_id, run_dir, afc_control_id, skill_id)
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create skill_cases table")
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS skill_cases")
			return errors.Wrap(err, "failed to drop skill_cases table")
		},
	}
}
