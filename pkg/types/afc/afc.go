// Package afc defines the Abstract Function Control records: per-page
// control snapshots, per-run abstract skill aggregates, the global
// database entries with their skill cases, and execution logs.
package afc

import (
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Theta feature keys.
const (
	FeatureCleanText  = "clean_text"
	FeatureNormLabel  = "norm_label"
	FeatureAction     = "action"
	FeatureRole       = "role"
	FeatureURLPattern = "url_pattern"
	FeatureLogin      = "env.login_state"
)

// Features lists the theta feature keys in scoring order.
var Features = []string{FeatureCleanText, FeatureNormLabel, FeatureAction, FeatureRole, FeatureURLPattern, FeatureLogin}

// DefaultTheta returns the initial feature weights.
func DefaultTheta() map[string]float64 {
	out := make(map[string]float64, len(Features))
	for _, f := range Features {
		out[f] = 1.0
	}
	return out
}

// SemanticSignature describes what a control does, independent of markup.
type SemanticSignature struct {
	RawText         string         `json:"raw_text,omitempty"`
	CleanText       []string       `json:"clean_text"`
	Role            []string       `json:"role"`
	FormContext     []string       `json:"form_context"`
	URLPath         string         `json:"url_path,omitempty"`
	URLPattern      string         `json:"url_pattern,omitempty"`
	LoginState      string         `json:"login_state,omitempty"`
	CookiesRequired []string       `json:"cookies_required"`
	ViewportMin     map[string]int `json:"viewport_min,omitempty"`
	NormLabel       string         `json:"norm_label,omitempty"`
	TaskGroup       string         `json:"task_group,omitempty"`
	TaskRole        string         `json:"task_role,omitempty"`
	SemanticText    string         `json:"semantic_text,omitempty"`
	EnvSensitivity  map[string]any `json:"env_sensitivity,omitempty"`
}

// Visibility of a control in the snapshot.
type Visibility struct {
	Visible *bool `json:"visible"`
}

// StructuralSignature describes where a control sits on the page.
type StructuralSignature struct {
	SelectorCandidates []string       `json:"selector_candidates"`
	TreePath           []string       `json:"tree_path"`
	BBox               *snapshot.Rect `json:"bbox,omitempty"`
	Visibility         Visibility     `json:"visibility"`
}

// SkillLink ties a control to a concrete skill found in the same run.
type SkillLink struct {
	SkillID           string         `json:"skill_id"`
	SkillAction       string         `json:"skill_action,omitempty"`
	PreconditionsUsed map[string]any `json:"preconditions_used,omitempty"`
}

// Control is one AfcControl of a page snapshot.
type Control struct {
	ControlID           string              `json:"control_id"`
	Type                string              `json:"type"`
	Action              string              `json:"action"`
	SemanticSignature   SemanticSignature   `json:"semantic_signature"`
	StructuralSignature StructuralSignature `json:"structural_signature"`
	SkillLinks          []SkillLink         `json:"skill_links"`
}

// PageSnapshot is the content of afc/afc_page_snapshot.json.
type PageSnapshot struct {
	RunDir      string            `json:"run_dir"`
	Domain      string            `json:"domain"`
	URL         string            `json:"url"`
	Viewport    snapshot.Viewport `json:"viewport"`
	GeneratedAt string            `json:"generated_at"`
	Controls    []Control         `json:"controls"`
}

// Ref is a control or skill reference inside a run-level abstract skill.
type Ref struct {
	ControlID string `json:"control_id,omitempty"`
	SkillID   string `json:"skill_id,omitempty"`
}

// AbstractSemantic is the semantic block of an abstract skill.
type AbstractSemantic struct {
	SemanticText   string         `json:"semantic_text,omitempty"`
	EnvSensitivity map[string]any `json:"env_sensitivity,omitempty"`
}

// AbstractSkill aggregates controls of one run sharing a functional key.
type AbstractSkill struct {
	AbstractSkillID   string           `json:"abstract_skill_id"`
	TaskGroup         string           `json:"task_group"`
	TaskRole          string           `json:"task_role"`
	NormLabel         string           `json:"norm_label"`
	Action            string           `json:"action"`
	SemanticSignature AbstractSemantic `json:"semantic_signature"`
	AfcControls       []Ref            `json:"afc_controls"`
	ConcreteSkills    []Ref            `json:"concrete_skills"`
}

// SkillSnapshot is the content of afc/afc_skill_snapshot.json.
type SkillSnapshot struct {
	RunDir         string          `json:"run_dir"`
	Domain         string          `json:"domain"`
	AbstractSkills []AbstractSkill `json:"abstract_skills"`
}

// GlobalSemantic is the semantic signature of a global entry.
type GlobalSemantic struct {
	TaskGroup      string         `json:"task_group"`
	TaskRole       string         `json:"task_role"`
	NormLabel      string         `json:"norm_label"`
	Action         string         `json:"action"`
	SemanticText   string         `json:"semantic_text,omitempty"`
	EnvSensitivity map[string]any `json:"env_sensitivity,omitempty"`
}

// ControlRef locates a control in a specific run.
type ControlRef struct {
	Domain    string `json:"domain" db:"domain"`
	RunDir    string `json:"run_dir" db:"run_dir"`
	ControlID string `json:"control_id" db:"control_id"`
}

// SkillRef locates a concrete skill in a specific run.
type SkillRef struct {
	Domain  string `json:"domain" db:"domain"`
	RunDir  string `json:"run_dir" db:"run_dir"`
	SkillID string `json:"skill_id" db:"skill_id"`
}

// Env is the environment part of an invariant.
type Env struct {
	LoginState      string         `json:"login_state,omitempty"`
	CookiesRequired []string       `json:"cookies_required,omitempty"`
	ViewportMin     map[string]int `json:"viewport_min,omitempty"`
	EnvSensitivity  map[string]any `json:"env_sensitivity,omitempty"`
}

// Invariant (S_invariant) is the comparable semantic core of a control.
type Invariant struct {
	CleanText   []string `json:"clean_text"`
	NormLabel   string   `json:"norm_label,omitempty"`
	Action      string   `json:"action,omitempty"`
	Role        []string `json:"role"`
	URLPattern  string   `json:"url_pattern,omitempty"`
	FormContext []string `json:"form_context,omitempty"`
	Env         Env      `json:"env"`
}

// ActionTemplate (A_template) describes how the skill program is invoked.
type ActionTemplate struct {
	ProgramEntry string `json:"program_entry,omitempty"`
	ArgsSchema   any    `json:"args_schema,omitempty"`
}

// History (R_history) counts executions.
type History struct {
	ExecSuccess int `json:"exec_success"`
	ExecFail    int `json:"exec_fail"`
}

// Levels grades semantic (L_S) and action (L_A) drift, each 0..2.
type Levels struct {
	LS int `json:"L_S"`
	LA int `json:"L_A"`
}

// LastExec summarises the latest execution absorbed by a case.
type LastExec struct {
	Success      bool     `json:"last_exec_success"`
	SimS         *float64 `json:"sim_S,omitempty"`
	ReuseA       *float64 `json:"reuse_A,omitempty"`
	LS           *int     `json:"L_S,omitempty"`
	LA           *int     `json:"L_A,omitempty"`
	RebuildGrade *int     `json:"rebuild_grade,omitempty"`
	ErrorType    string   `json:"error_type,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
}

// NegativeSample records a failed execution.
type NegativeSample struct {
	RunDir       string `json:"run_dir"`
	AfcControlID string `json:"afc_control_id"`
	SkillID      string `json:"skill_id,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
}

// EvolveMeta is evolution bookkeeping on a case.
type EvolveMeta struct {
	LastExec        *LastExec        `json:"last_exec,omitempty"`
	NegativeSamples []NegativeSample `json:"negative_samples,omitempty"`
	Flags           map[string]bool  `json:"flags,omitempty"`
}

// SkillCase is one observed (control, skill) pair of an abstract skill.
type SkillCase struct {
	RunDir       string             `json:"run_dir"`
	Domain       string             `json:"domain"`
	AfcControlID string             `json:"afc_control_id"`
	SkillID      string             `json:"skill_id,omitempty"`
	SInvariant   Invariant          `json:"S_invariant"`
	ATemplate    ActionTemplate     `json:"A_template"`
	RHistory     History            `json:"R_history"`
	ThetaWeights map[string]float64 `json:"theta_weights"`
	Levels       *Levels            `json:"levels"`
	RebuildGrade *int               `json:"rebuild_grade"`
	EvolveMeta   *EvolveMeta        `json:"evolve_meta,omitempty"`
}

// Key identifies a case within its entry.
func (c SkillCase) Key() [3]string {
	return [3]string{c.RunDir, c.AfcControlID, c.SkillID}
}

// Entry is one abstract skill of the global database.
type Entry struct {
	AbstractSkillID         string         `json:"abstract_skill_id"`
	SemanticSignatureGlobal GlobalSemantic `json:"semantic_signature_global"`
	AfcControls             []ControlRef   `json:"afc_controls"`
	ConcreteSkills          []SkillRef     `json:"concrete_skills"`
	SkillCases              []SkillCase    `json:"skill_cases"`
}

// ExecutionCase is one trial recorded in an exec log.
type ExecutionCase struct {
	AbstractSkillID string             `json:"abstract_skill_id"`
	RunDir          string             `json:"run_dir"`
	AfcControlID    string             `json:"afc_control_id"`
	SkillID         string             `json:"skill_id,omitempty"`
	ExecSuccess     bool               `json:"exec_success"`
	ErrorType       string             `json:"error_type,omitempty"`
	Timestamp       string             `json:"timestamp,omitempty"`
	SimS            *float64           `json:"sim_S,omitempty"`
	ReuseA          *float64           `json:"reuse_A,omitempty"`
	LS              *int               `json:"L_S,omitempty"`
	LA              *int               `json:"L_A,omitempty"`
	RebuildGrade    *int               `json:"rebuild_grade,omitempty"`
	ThetaDelta      map[string]float64 `json:"theta_delta,omitempty"`
	CodeDiffSummary map[string]any     `json:"code_diff_summary,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

// ExecLog is a batch of execution trials on one run.
type ExecLog struct {
	Version         string          `json:"version"`
	RunDir          string          `json:"run_dir"`
	AbstractSkillID string          `json:"abstract_skill_id"`
	Task            string          `json:"task,omitempty"`
	CreatedAt       string          `json:"created_at"`
	SkillCases      []ExecutionCase `json:"skill_cases"`
}
