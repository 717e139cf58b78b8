package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/db"
)

// Migration20260301100000CreateAbstractSkills creates the abstract skill table
// and the ordered control and concrete skill references of each entry.
func Migration20260301100000CreateAbstractSkills() db.Migration {
	return db.Migration{
		Version:     20260301100000,
		Description: "Create abstract_skills, afc_controls and concrete_skills tables",
		Up: func(tx *sql.Tx) error {
			stmts := []struct {
				sql  string
				name string
			}{
				{`
				CREATE TABLE IF NOT EXISTS abstract_skills (
					id TEXT PRIMARY KEY,
					semantic_signature_global TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`, "abstract_skills"},
				{`
				CREATE TABLE IF NOT EXISTS afc_controls (
					abstract_skill_id TEXT NOT NULL REFERENCES abstract_skills(id) ON DELETE CASCADE,
					position INTEGER NOT NULL,
					domain TEXT NOT NULL DEFAULT '',
					run_dir TEXT NOT NULL,
					control_id TEXT NOT NULL,
					UNIQUE (abstract_skill_id, domain, run_dir, control_id)
				)`, "afc_controls"},
				{`
				CREATE TABLE IF NOT EXISTS concrete_skills (
					abstract_skill_id TEXT NOT NULL REFERENCES abstract_skills(id) ON DELETE CASCADE,
					position INTEGER NOT NULL,
					domain TEXT NOT NULL DEFAULT '',
					run_dir TEXT NOT NULL,
					skill_id TEXT NOT NULL,
					UNIQUE (abstract_skill_id, domain, run_dir, skill_id)
				)`, "concrete_skills"},
			}
			for _, s := range stmts {
				if _, err := tx.Exec(s.sql); err != nil {
					return errors.Wrapf(err, "failed to create %s table", s.name)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, table := range []string{"concrete_skills", "afc_controls", "abstract_skills"} {
				if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
					return errors.Wrapf(err, "failed to drop %s table", table)
				}
			}
			return nil
		},
	}
}
