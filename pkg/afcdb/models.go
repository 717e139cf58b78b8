package afcdb

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// JSONField stores a value as a JSON column.
type JSONField[T any] struct {
	Data T
}

// Scan implements the sql.Scanner interface for reading from database
func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}

	return json.Unmarshal(bytes, &j.Data)
}

// Value implements the driver.Valuer interface for writing to database
func (j JSONField[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

// dbAbstractSkill represents the abstract_skills table structure
type dbAbstractSkill struct {
	ID        string                        `db:"id"`
	Semantic  JSONField[afc.GlobalSemantic] `db:"semantic_signature_global"`
	CreatedAt time.Time                     `db:"created_at"`
	UpdatedAt time.Time                     `db:"updated_at"`
}

// dbControlRef represents the afc_controls table structure
type dbControlRef struct {
	AbstractSkillID string `db:"abstract_skill_id"`
	Position        int    `db:"position"`
	Domain          string `db:"domain"`
	RunDir          string `db:"run_dir"`
	ControlID       string `db:"control_id"`
}

// dbSkillRef represents the concrete_skills table structure
type dbSkillRef struct {
	AbstractSkillID string `db:"abstract_skill_id"`
	Position        int    `db:"position"`
	Domain          string `db:"domain"`
	RunDir          string `db:"run_dir"`
	SkillID         string `db:"skill_id"`
}

// dbSkillCase represents the skill_cases table structure. A case without a
// concrete skill stores an empty skill_id so the unique key stays usable.
type dbSkillCase struct {
	AbstractSkillID string                        `db:"abstract_skill_id"`
	Position        int                           `db:"position"`
	RunDir          string                        `db:"run_dir"`
	Domain          string                        `db:"domain"`
	AfcControlID    string                        `db:"afc_control_id"`
	SkillID         string                        `db:"skill_id"`
	SInvariant      JSONField[afc.Invariant]      `db:"s_invariant"`
	ATemplate       JSONField[afc.ActionTemplate] `db:"a_template"`
	RHistory        JSONField[afc.History]        `db:"r_history"`
	ThetaWeights    JSONField[map[string]float64] `db:"theta_weights"`
	Levels          JSONField[*afc.Levels]        `db:"levels"`
	RebuildGrade    *int                          `db:"rebuild_grade"` // NULL in database
	EvolveMeta      JSONField[*afc.EvolveMeta]    `db:"evolve_meta"`
}

func fromControlRef(id string, pos int, r afc.ControlRef) dbControlRef {
	return dbControlRef{AbstractSkillID: id, Position: pos, Domain: r.Domain, RunDir: r.RunDir, ControlID: r.ControlID}
}

func (r dbControlRef) toRef() afc.ControlRef {
	return afc.ControlRef{Domain: r.Domain, RunDir: r.RunDir, ControlID: r.ControlID}
}

func fromSkillRef(id string, pos int, r afc.SkillRef) dbSkillRef {
	return dbSkillRef{AbstractSkillID: id, Position: pos, Domain: r.Domain, RunDir: r.RunDir, SkillID: r.SkillID}
}

func (r dbSkillRef) toRef() afc.SkillRef {
	return afc.SkillRef{Domain: r.Domain, RunDir: r.RunDir, SkillID: r.SkillID}
}

func fromSkillCase(id string, pos int, c afc.SkillCase) dbSkillCase {
	return dbSkillCase{
		AbstractSkillID: id,
		Position:        pos,
		RunDir:          c.RunDir,
		Domain:          c.Domain,
		AfcControlID:    c.AfcControlID,
		SkillID:         c.SkillID,
		SInvariant:      JSONField[afc.Invariant]{Data: c.SInvariant},
		ATemplate:       JSONField[afc.ActionTemplate]{Data: c.ATemplate},
		RHistory:        JSONField[afc.History]{Data: c.RHistory},
		ThetaWeights:    JSONField[map[string]float64]{Data: c.ThetaWeights},
		Levels:          JSONField[*afc.Levels]{Data: c.Levels},
		RebuildGrade:    c.RebuildGrade,
		EvolveMeta:      JSONField[*afc.EvolveMeta]{Data: c.EvolveMeta},
	}
}

// toSkillCase converts database record to domain model
func (c dbSkillCase) toSkillCase() afc.SkillCase {
	return afc.SkillCase{
		RunDir:       c.RunDir,
		Domain:       c.Domain,
		AfcControlID: c.AfcControlID,
		SkillID:      c.SkillID,
		SInvariant:   c.SInvariant.Data,
		ATemplate:    c.ATemplate.Data,
		RHistory:     c.RHistory.Data,
		ThetaWeights: c.ThetaWeights.Data,
		Levels:       c.Levels.Data,
		RebuildGrade: c.RebuildGrade,
		EvolveMeta:   c.EvolveMeta.Data,
	}
}
