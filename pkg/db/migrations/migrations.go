// Package migrations contains the schema migrations for the AFC database.
package migrations

import (
	"github.com/jingkaihe/webskill/pkg/db"
)

// All returns all registered migrations. New migrations are appended here.
func All() []db.Migration {
	return []db.Migration{
		Migration20260301100000CreateAbstractSkills(),
		Migration20260301100001CreateSkillCases(),
		Migration20260301100002AddLookupIndexes(),
	}
}
