package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/db"
)

var lookupIndexes = []struct {
	name string
	sql  string
}{
	{"idx_afc_controls_abstract", "CREATE INDEX IF NOT EXISTS idx_afc_controls_abstract ON afc_controls(abstract_skill_id, position)"},
	{"idx_concrete_skills_abstract", "CREATE INDEX IF NOT EXISTS idx_concrete_skills_abstract ON concrete_skills(abstract_skill_id, position)"},
	{"idx_skill_cases_abstract", "CREATE INDEX IF NOT EXISTS idx_skill_cases_abstract ON skill_cases(abstract_skill_id, position)"},
	{"idx_skill_cases_skill", "CREATE INDEX IF NOT EXISTS idx_skill_cases_skill ON skill_cases(skill_id)"},
}

// Migration20260301100002AddLookupIndexes indexes the child tables by entry.
func Migration20260301100002AddLookupIndexes() db.Migration {
	return db.Migration{
		Version:     20260301100002,
		Description: "Add AFC lookup indexes",
		Up: func(tx *sql.Tx) error {
			for _, idx := range lookupIndexes {
				if _, err := tx.Exec(idx.sql); err != nil {
					return errors.Wrapf(err, "failed to create index %s", idx.name)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, idx := range lookupIndexes {
				if _, err := tx.Exec("DROP INDEX IF EXISTS " + idx.name); err != nil {
					return errors.Wrapf(err, "failed to drop index %s", idx.name)
				}
			}
			return nil
		},
	}
}
