package repair

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// CodeSize measures how much the program changed.
type CodeSize struct {
	LinesAdded   int `json:"lines_added"`
	LinesDeleted int `json:"lines_deleted"`
	LinesTotal   int `json:"lines_total"`
	CharsAdded   int `json:"chars_added"`
	CharsDeleted int `json:"chars_deleted"`
	CharsTotal   int `json:"chars_total"`
}

// LocatorChanges counts structural locator changes.
type LocatorChanges struct {
	SelectorChanged  int `json:"selector_changed"`
	ByRoleChanged    int `json:"by_role_changed"`
	SelectorAltAdded int `json:"selector_alt_added"`
	ByTextAdded      int `json:"by_text_added"`
}

// StructureAdded lists what the repair added to the skill structure.
type StructureAdded struct {
	PreconditionsAddedKeys []string       `json:"preconditions_added_keys"`
	Locators               LocatorChanges `json:"locators"`
}

// PatchSize groups code and structure changes.
type PatchSize struct {
	Code           CodeSize       `json:"code"`
	StructureAdded StructureAdded `json:"structure_added"`
}

// ReuseDetail carries the counts behind the reuse ratios.
type ReuseDetail struct {
	OldLines    int `json:"old_lines"`
	EqualLines  int `json:"equal_lines"`
	LocatorBase int `json:"locator_base"`
	LocatorKept int `json:"locator_kept"`
}

// ReuseRatio is the share of the old skill kept by the repair.
type ReuseRatio struct {
	Code     float64     `json:"code"`
	Locators float64     `json:"locators"`
	Detail   ReuseDetail `json:"_detail"`
}

// Metrics summarise a repair.
type Metrics struct {
	TotalSec   float64    `json:"total_sec"`
	PatchSize  PatchSize  `json:"patch_size"`
	ReuseRatio ReuseRatio `json:"reuse_ratio"`
}

// Log is written to _repair_logs for every repair.
type Log struct {
	RunID         string             `json:"run_id"`
	TS            string             `json:"ts"`
	SkillID       string             `json:"skill_id"`
	Selector      string             `json:"selector"`
	InputSkill    string             `json:"input_skill"`
	OutPath       string             `json:"out_path"`
	OldRunDir     string             `json:"old_run_dir"`
	NewRunDir     string             `json:"new_run_dir"`
	Deterministic *skill.RepairNotes `json:"deterministic,omitempty"`
	Patches       []Patch            `json:"patches"`
	Metrics       Metrics            `json:"metrics"`
}

func round4(f float64) float64 { return math.Round(f*10000) / 10000 }

func lines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// MeasureCode diffs two programs line by line (unified diff) and char by
// char (edits).
func MeasureCode(oldCode, newCode string) (CodeSize, ReuseDetail) {
	var size CodeSize
	if oldCode != newCode {
		for _, ln := range strings.Split(udiff.Unified("old", "new", oldCode, newCode), "\n") {
			switch {
			case strings.HasPrefix(ln, "+++"), strings.HasPrefix(ln, "---"):
			case strings.HasPrefix(ln, "+"):
				size.LinesAdded++
			case strings.HasPrefix(ln, "-"):
				size.LinesDeleted++
			}
		}
		for _, e := range udiff.Strings(oldCode, newCode) {
			size.CharsDeleted += e.End - e.Start
			size.CharsAdded += len(e.New)
		}
	}
	size.LinesTotal = size.LinesAdded + size.LinesDeleted
	size.CharsTotal = size.CharsAdded + size.CharsDeleted

	oldLines := len(lines(oldCode))
	return size, ReuseDetail{OldLines: oldLines, EqualLines: max(0, oldLines-size.LinesDeleted)}
}

func setOf(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

func countNew(oldVals, newVals []string) int {
	old := setOf(oldVals)
	n := 0
	for v := range setOf(newVals) {
		if !old[v] {
			n++
		}
	}
	return n
}

func preconditionKeys(p skill.Preconditions) map[string]bool {
	data, _ := json.Marshal(p)
	var m map[string]json.RawMessage
	_ = json.Unmarshal(data, &m)
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Measure compares the original and repaired skill.
func Measure(before, after *skill.Skill) Metrics {
	code, detail := MeasureCode(before.Program.Code, after.Program.Code)

	var added []string
	oldKeys := preconditionKeys(before.Preconditions)
	for k := range preconditionKeys(after.Preconditions) {
		if !oldKeys[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	if added == nil {
		added = []string{}
	}

	ol, nl := before.Locators, after.Locators
	changes := LocatorChanges{
		SelectorChanged:  b2i(ol.Selector != nl.Selector),
		ByRoleChanged:    b2i(!reflect.DeepEqual(ol.ByRole, nl.ByRole)),
		SelectorAltAdded: countNew(ol.SelectorAlt, nl.SelectorAlt),
		ByTextAdded:      countNew(ol.ByText, nl.ByText),
	}

	base, kept := 0, 0
	if ol.Selector != "" {
		base++
		kept += b2i(nl.Selector == ol.Selector)
	}
	if ol.ByRole != nil {
		base++
		kept += b2i(reflect.DeepEqual(ol.ByRole, nl.ByRole))
	}
	for _, pair := range [][2][]string{{ol.SelectorAlt, nl.SelectorAlt}, {ol.ByText, nl.ByText}} {
		oldSet, newSet := setOf(pair[0]), setOf(pair[1])
		base += len(oldSet)
		for v := range oldSet {
			kept += b2i(newSet[v])
		}
	}
	detail.LocatorBase, detail.LocatorKept = base, kept

	ratio := ReuseRatio{Detail: detail}
	if detail.OldLines > 0 {
		ratio.Code = round4(float64(detail.EqualLines) / float64(detail.OldLines))
	}
	if base > 0 {
		ratio.Locators = round4(float64(kept) / float64(base))
	}

	return Metrics{
		PatchSize:  PatchSize{Code: code, StructureAdded: StructureAdded{PreconditionsAddedKeys: added, Locators: changes}},
		ReuseRatio: ratio,
	}
}
