package afcdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/db"
	"github.com/jingkaihe/webskill/pkg/db/migrations"
	"github.com/jingkaihe/webskill/pkg/types/afc"
)

// ErrEntryNotFound is returned when an abstract skill is not in the database.
var ErrEntryNotFound = errors.New("abstract skill not found")

// Store is the global AFC database.
type Store struct {
	db *sqlx.DB
}

// Open opens the AFC database at dbPath, creating and migrating it as needed.
// An empty dbPath uses db.DefaultDBPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		p, err := db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}
	conn, err := db.OpenMigrated(ctx, dbPath, migrations.All())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open AFC database %s", dbPath)
	}
	return &Store{db: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetEntry loads an abstract skill with its refs and cases.
func (s *Store) GetEntry(ctx context.Context, id string) (*afc.Entry, error) {
	var row dbAbstractSkill
	err := s.db.GetContext(ctx, &row, "SELECT * FROM abstract_skills WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrEntryNotFound, "%s", id)
		}
		return nil, errors.Wrapf(err, "failed to load abstract skill %s", id)
	}
	return s.loadEntry(ctx, row)
}

// ListEntries loads every abstract skill ordered by id.
func (s *Store) ListEntries(ctx context.Context) ([]afc.Entry, error) {
	var rows []dbAbstractSkill
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM abstract_skills ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "failed to list abstract skills")
	}
	out := make([]afc.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := s.loadEntry(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *Store) loadEntry(ctx context.Context, row dbAbstractSkill) (*afc.Entry, error) {
	e := &afc.Entry{
		AbstractSkillID:         row.ID,
		SemanticSignatureGlobal: row.Semantic.Data,
		AfcControls:             []afc.ControlRef{},
		ConcreteSkills:          []afc.SkillRef{},
		SkillCases:              []afc.SkillCase{},
	}

	var controls []dbControlRef
	if err := s.db.SelectContext(ctx, &controls,
		"SELECT * FROM afc_controls WHERE abstract_skill_id = ? ORDER BY position", row.ID); err != nil {
		return nil, errors.Wrap(err, "failed to load control refs")
	}
	for _, c := range controls {
		e.AfcControls = append(e.AfcControls, c.toRef())
	}

	var concrete []dbSkillRef
	if err := s.db.SelectContext(ctx, &concrete,
		"SELECT * FROM concrete_skills WHERE abstract_skill_id = ? ORDER BY position", row.ID); err != nil {
		return nil, errors.Wrap(err, "failed to load skill refs")
	}
	for _, c := range concrete {
		e.ConcreteSkills = append(e.ConcreteSkills, c.toRef())
	}

	var cases []dbSkillCase
	if err := s.db.SelectContext(ctx, &cases,
		"SELECT * FROM skill_cases WHERE abstract_skill_id = ? ORDER BY position", row.ID); err != nil {
		return nil, errors.Wrap(err, "failed to load skill cases")
	}
	for _, c := range cases {
		e.SkillCases = append(e.SkillCases, c.toSkillCase())
	}
	return e, nil
}

// SaveEntry writes an entry, replacing its refs and cases.
func (s *Store) SaveEntry(ctx context.Context, e *afc.Entry) error {
	if e.AbstractSkillID == "" {
		return errors.New("abstract skill id is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO abstract_skills (id, semantic_signature_global, created_at, updated_at)
		VALUES (:id, :semantic_signature_global, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			semantic_signature_global = excluded.semantic_signature_global,
			updated_at = excluded.updated_at`,
		dbAbstractSkill{
			ID:        e.AbstractSkillID,
			Semantic:  JSONField[afc.GlobalSemantic]{Data: e.SemanticSignatureGlobal},
			CreatedAt: now,
			UpdatedAt: now,
		})
	if err != nil {
		return errors.Wrap(err, "failed to save abstract skill")
	}

	for _, table := range []string{"afc_controls", "concrete_skills", "skill_cases"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE abstract_skill_id = ?", e.AbstractSkillID); err != nil {
			return errors.Wrapf(err, "failed to clear %s", table)
		}
	}

	for i, r := range e.AfcControls {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO afc_controls (abstract_skill_id, position, domain, run_dir, control_id)
			VALUES (:abstract_skill_id, :position, :domain, :run_dir, :control_id)
			ON CONFLICT DO NOTHING`, fromControlRef(e.AbstractSkillID, i, r)); err != nil {
			return errors.Wrap(err, "failed to save control ref")
		}
	}
	for i, r := range e.ConcreteSkills {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO concrete_skills (abstract_skill_id, position, domain, run_dir, skill_id)
			VALUES (:abstract_skill_id, :position, :domain, :run_dir, :skill_id)
			ON CONFLICT DO NOTHING`, fromSkillRef(e.AbstractSkillID, i, r)); err != nil {
			return errors.Wrap(err, "failed to save skill ref")
		}
	}
	for i, c := range e.SkillCases {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO skill_cases (
				abstract_skill_id, position, run_dir, domain, afc_control_id, skill_id,
				s_invariant, a_template, r_history, theta_weights, levels, rebuild_grade, evolve_meta
			) VALUES (
				:abstract_skill_id, :position, :run_dir, :domain, :afc_control_id, :skill_id,
				:s_invariant, :a_template, :r_history, :theta_weights, :levels, :rebuild_grade, :evolve_meta
			)
			ON CONFLICT DO NOTHING`, fromSkillCase(e.AbstractSkillID, i, c)); err != nil {
			return errors.Wrap(err, "failed to save skill case")
		}
	}

	return tx.Commit()
}

// EnsureEntry loads an entry or returns a new empty one carrying sem. The
// new entry is not stored until SaveEntry.
func (s *Store) EnsureEntry(ctx context.Context, id string, sem afc.GlobalSemantic) (*afc.Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, err
	}
	return &afc.Entry{
		AbstractSkillID:         id,
		SemanticSignatureGlobal: sem,
		AfcControls:             []afc.ControlRef{},
		ConcreteSkills:          []afc.SkillRef{},
		SkillCases:              []afc.SkillCase{},
	}, nil
}

// DeleteEntry removes an abstract skill and everything attached to it.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM abstract_skills WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete abstract skill %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrEntryNotFound, "%s", id)
	}
	return nil
}
