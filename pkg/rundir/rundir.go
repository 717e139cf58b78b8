// Package rundir reads and writes the artifacts of a detection run directory.
package rundir

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Artifact file names inside a run directory.
const (
	ScreenshotInitial   = "screenshot_initial.png"
	ScreenshotLoaded    = "screenshot_loaded.png"
	ScreenshotTail      = "screenshot_scrolled_tail.png"
	DOMHTML             = "dom.html"
	DomSummaryFile      = "dom_summary.json"
	DomSummaryScrolled  = "dom_summary_scrolled.json"
	ScrolledNewFile     = "dom_scrolled_new.json"
	AXFile              = "ax.json"
	TimingsFile         = "timings.json"
	MetaFile            = "meta.json"
	ScrollInfoFile      = "scroll_info.json"
	ControlsTreeFile    = "controls_tree.json"
	FilteredTreeFile    = "controls_tree.filtered.json"
	BlocksFile          = "blocks.json"
	OverlayFile         = "overlay.png"
	SkillDir            = "skill"
	AFCDir              = "afc"
	SnippetsDir         = "snippets"
	SnippetsIndex       = "index.json"
	PageSnapshotFile    = "afc_page_snapshot.json"
	SkillSnapshotFile   = "afc_skill_snapshot.json"
	RepairLogsDir       = "_repair_logs"
	AbstractExecLogsDir = "exec_logs"
)

// ReadJSON decodes path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal json")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Dir is a run directory.
type Dir string

// Path joins elem onto the run directory.
func (d Dir) Path(elem ...string) string {
	return filepath.Join(append([]string{string(d)}, elem...)...)
}

// Meta loads meta.json. A missing file yields an empty Meta.
func (d Dir) Meta() (*snapshot.Meta, error) {
	var m snapshot.Meta
	p := d.Path(MetaFile)
	if !Exists(p) {
		return &m, nil
	}
	if err := ReadJSON(p, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DomSummary loads dom_summary.json.
func (d Dir) DomSummary() (*snapshot.DomSummary, error) {
	var s snapshot.DomSummary
	if err := ReadJSON(d.Path(DomSummaryFile), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ScrolledSummary loads dom_summary_scrolled.json if present.
func (d Dir) ScrolledSummary() (*snapshot.DomSummary, error) {
	p := d.Path(DomSummaryScrolled)
	if !Exists(p) {
		return nil, nil
	}
	var s snapshot.DomSummary
	if err := ReadJSON(p, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Elements returns the scrolled summary elements followed by base elements
// not already seen, deduplicated by fingerprint.
func (d Dir) Elements() ([]snapshot.Element, error) {
	base, err := d.DomSummary()
	if err != nil {
		return nil, err
	}
	scrolled, err := d.ScrolledSummary()
	if err != nil {
		return nil, err
	}
	if scrolled == nil {
		return base.Elements, nil
	}
	return MergeElements(scrolled.Elements, base.Elements), nil
}

// MergeElements concatenates lists, keeping the first element per fingerprint.
func MergeElements(lists ...[]snapshot.Element) []snapshot.Element {
	seen := make(map[string]bool)
	var out []snapshot.Element
	for _, list := range lists {
		for _, e := range list {
			fp := e.Fingerprint()
			if seen[fp] {
				continue
			}
			seen[fp] = true
			out = append(out, e)
		}
	}
	return out
}

// ControlsTree loads the filtered tree when present, else the raw tree.
func (d Dir) ControlsTree() (*snapshot.ControlsTree, error) {
	p := d.Path(FilteredTreeFile)
	if !Exists(p) {
		p = d.Path(ControlsTreeFile)
	}
	var t snapshot.ControlsTree
	if err := ReadJSON(p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Blocks loads blocks.json if present.
func (d Dir) Blocks() (*snapshot.Blocks, error) {
	p := d.Path(BlocksFile)
	if !Exists(p) {
		return nil, nil
	}
	var b snapshot.Blocks
	if err := ReadJSON(p, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SnippetItem maps a node id to its outerHTML snippet file.
type SnippetItem struct {
	ID   string `json:"id"`
	File string `json:"file"`
}

// SnippetIndex is the content of snippets/index.json.
type SnippetIndex struct {
	Items []SnippetItem `json:"items"`
}

// Snippet returns the outerHTML snippet recorded for a node id, or "".
func (d Dir) Snippet(nodeID string) string {
	var idx SnippetIndex
	if err := ReadJSON(d.Path(SnippetsDir, SnippetsIndex), &idx); err != nil {
		return ""
	}
	for _, it := range idx.Items {
		if it.ID != nodeID {
			continue
		}
		p := it.File
		if !filepath.IsAbs(p) {
			p = d.Path(SnippetsDir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}
