package afcdb

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/afc"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// maxDOMMatches bounds how many DOM elements describe one control.
const maxDOMMatches = 5

// LoginUnknown is the login state of controls with no login guard.
const LoginUnknown = "unknown"

// rawControl gathers the evidence about one control before it is
// summarized into an afc.Control.
type rawControl struct {
	node    snapshot.Node
	bbox    *snapshot.Rect
	texts   []string
	roles   []string
	tag     string
	visible *bool
	skills  []*skill.Skill
}

// PageSnapshotPath returns the page snapshot location of a run.
func PageSnapshotPath(dir rundir.Dir) string {
	return dir.Path(rundir.AFCDir, rundir.PageSnapshotFile)
}

// LoadPageSnapshot reads afc/afc_page_snapshot.json of a run.
func LoadPageSnapshot(dir rundir.Dir) (*afc.PageSnapshot, error) {
	var snap afc.PageSnapshot
	if err := rundir.ReadJSON(PageSnapshotPath(dir), &snap); err != nil {
		return nil, errors.Wrap(err, "page snapshot not available, run afc snapshot first")
	}
	return &snap, nil
}

// LoadRunSkills loads every skill below the run's skill directory. Files
// that fail to parse are skipped.
func LoadRunSkills(ctx context.Context, dir rundir.Dir) []*skill.Skill {
	root := dir.Path(rundir.SkillDir)
	if !rundir.Exists(root) {
		return nil
	}
	paths, err := skills.Discover(root)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to list run skills")
		return nil
	}
	var out []*skill.Skill
	for _, p := range paths {
		s, err := skills.Load(p)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", p).Debug("skipping unreadable skill")
			continue
		}
		out = append(out, s)
	}
	return out
}

func nodeBBox(n snapshot.Node) *snapshot.Rect {
	if n.Geom.PageBBox != nil {
		r := *n.Geom.PageBBox
		return &r
	}
	r := n.Geom.BBox
	return &r
}

func matchDOM(bbox *snapshot.Rect, elements []snapshot.Element) ([]string, []string, string, *bool) {
	if bbox == nil {
		return nil, nil, "", nil
	}
	area := max(bbox.Area(), 1)
	type scored struct {
		score float64
		el    snapshot.Element
	}
	var hits []scored
	for _, el := range elements {
		inter := bbox.Intersection(el.PageRect())
		if inter <= 0 {
			continue
		}
		hits = append(hits, scored{score: inter / area, el: el})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxDOMMatches {
		hits = hits[:maxDOMMatches]
	}

	var (
		texts, roles []string
		tag          string
		visible      *bool
	)
	for i, h := range hits {
		if i == 0 {
			tag = h.el.Tag
		}
		if strings.TrimSpace(h.el.Text) != "" {
			texts = append(texts, h.el.Text)
		}
		if h.el.Role != "" {
			roles = append(roles, h.el.Role)
		}
		if visible == nil && (h.el.IsVisible() || h.el.InViewport) {
			v := true
			visible = &v
		}
	}
	return texts, roles, tag, visible
}

// skillMatchesControl links skills loosely: selectors containing one
// another, or boxes that overlap.
func skillMatchesControl(s *skill.Skill, selector string, bbox *snapshot.Rect) bool {
	sel := s.Locators.Selector
	if selector != "" && sel != "" && (strings.Contains(sel, selector) || strings.Contains(selector, sel)) {
		return true
	}
	if s.Locators.BBox != nil && bbox != nil && s.Locators.BBox.Intersection(*bbox) > 0 {
		return true
	}
	return false
}

func buildRawControls(tree *snapshot.ControlsTree, elements []snapshot.Element, runSkills []*skill.Skill) []rawControl {
	var out []rawControl
	for _, n := range tree.Nodes {
		if !n.IsControl() {
			continue
		}
		bbox := nodeBBox(n)
		rc := rawControl{node: n, bbox: bbox}
		rc.texts, rc.roles, rc.tag, rc.visible = matchDOM(bbox, elements)
		for _, s := range runSkills {
			if skillMatchesControl(s, n.Selector, bbox) {
				rc.skills = append(rc.skills, s)
			}
		}
		out = append(out, rc)
	}
	return out
}

func buildControl(rc rawControl, meta *snapshot.Meta) afc.Control {
	var chunks []string
	for _, t := range rc.texts {
		if t = strings.TrimSpace(t); t != "" {
			chunks = append(chunks, t)
		}
	}
	rawText := strings.Join(chunks, "\n")
	tokens := CleanText(rawText)

	action := rc.node.Action
	if action == "" {
		action = skill.ActionNone
	}

	domain := meta.Domain
	if domain == "" {
		domain = meta.DomainSanitized
	}
	urlPath, urlPattern := URLPathPattern(meta.URL, domain)

	var (
		loginState  string
		cookies     = []string{}
		viewportMin = map[string]int{}
		links       = []afc.SkillLink{}
	)
	for _, s := range rc.skills {
		pre := s.Preconditions
		if loginState == "" && pre.LoginState != "" {
			loginState = pre.LoginState
		}
		if pre.Cookies != nil {
			for _, name := range pre.Cookies.RequiredNames {
				if !contains(cookies, name) {
					cookies = append(cookies, name)
				}
			}
		}
		if vp := pre.Viewport; vp != nil {
			if _, ok := viewportMin["min_width"]; !ok && vp.MinWidth > 0 {
				viewportMin["min_width"] = vp.MinWidth
			}
			if _, ok := viewportMin["min_height"]; !ok && vp.MinHeight > 0 {
				viewportMin["min_height"] = vp.MinHeight
			}
		}
		links = append(links, skillLink(s))
	}
	if loginState == "" {
		loginState = LoginUnknown
	}

	var selectors = []string{}
	if rc.node.Selector != "" {
		selectors = append(selectors, rc.node.Selector)
	}

	label := NormLabel(rc.tag, rc.roles, rc.node.Selector, tokens)
	group, role := TaskGroupRole(label, tokens)

	roles := rc.roles
	if roles == nil {
		roles = []string{}
	}
	if tokens == nil {
		tokens = []string{}
	}

	return afc.Control{
		ControlID: rc.node.ID,
		Type:      rc.node.Type,
		Action:    action,
		SemanticSignature: afc.SemanticSignature{
			RawText:         rawText,
			CleanText:       tokens,
			Role:            roles,
			FormContext:     []string{},
			URLPath:         urlPath,
			URLPattern:      urlPattern,
			LoginState:      loginState,
			CookiesRequired: cookies,
			ViewportMin:     viewportMin,
			NormLabel:       label,
			TaskGroup:       group,
			TaskRole:        role,
		},
		StructuralSignature: afc.StructuralSignature{
			SelectorCandidates: selectors,
			TreePath:           []string{},
			BBox:               rc.bbox,
			Visibility:         afc.Visibility{Visible: rc.visible},
		},
		SkillLinks: links,
	}
}

func skillLink(s *skill.Skill) afc.SkillLink {
	used := map[string]any{}
	pre := s.Preconditions
	if pre.URLMatches != nil {
		used["url_matches"] = pre.URLMatches
	}
	if pre.LoginState != "" {
		used["login_state"] = pre.LoginState
	}
	if pre.Cookies != nil {
		used["cookies"] = pre.Cookies
	}
	return afc.SkillLink{SkillID: s.ID, SkillAction: s.Action, PreconditionsUsed: used}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// PageOptions configure BuildPageSnapshot.
type PageOptions struct {
	// Force recomputes every control instead of reusing an existing snapshot.
	Force bool
}

// BuildPageSnapshot summarizes every control of a run into an AfcControl
// and writes afc/afc_page_snapshot.json. An existing snapshot that already
// covers every control is returned as is unless opts.Force is set; a
// partial one has its missing controls filled in.
func BuildPageSnapshot(ctx context.Context, dir rundir.Dir, opts PageOptions) (string, *afc.PageSnapshot, error) {
	log := logger.G(ctx).WithField("run_dir", string(dir))

	if !rundir.Exists(dir.Path(rundir.MetaFile)) {
		return "", nil, errors.Errorf("meta.json not found in %s", dir)
	}
	meta, err := dir.Meta()
	if err != nil {
		return "", nil, err
	}
	tree, err := dir.ControlsTree()
	if err != nil {
		return "", nil, err
	}

	var elements []snapshot.Element
	if rundir.Exists(dir.Path(rundir.DomSummaryFile)) {
		sum, err := dir.DomSummary()
		if err != nil {
			return "", nil, err
		}
		elements = sum.Elements
	} else if sum, err := dir.ScrolledSummary(); err != nil {
		return "", nil, err
	} else if sum != nil {
		elements = sum.Elements
	}

	runSkills := LoadRunSkills(ctx, dir)
	raw := buildRawControls(tree, elements, runSkills)

	out := PageSnapshotPath(dir)
	existing := map[string]afc.Control{}
	if !opts.Force && rundir.Exists(out) {
		if prev, err := LoadPageSnapshot(dir); err == nil {
			for _, c := range prev.Controls {
				existing[c.ControlID] = c
			}
			complete := true
			for _, rc := range raw {
				if _, ok := existing[rc.node.ID]; !ok {
					complete = false
					break
				}
			}
			if complete {
				log.WithField("controls", len(prev.Controls)).Info("page snapshot already complete")
				return out, prev, nil
			}
		}
	}

	controls := make([]afc.Control, 0, len(raw))
	reused := 0
	for _, rc := range raw {
		if c, ok := existing[rc.node.ID]; ok {
			controls = append(controls, c)
			reused++
			continue
		}
		controls = append(controls, buildControl(rc, meta))
	}

	domain := meta.Domain
	if domain == "" {
		domain = meta.DomainSanitized
	}
	generated := meta.Timestamp
	if generated == "" {
		generated = time.Now().UTC().Format(time.RFC3339)
	}
	snap := &afc.PageSnapshot{
		RunDir:      string(dir),
		Domain:      domain,
		URL:         meta.URL,
		Viewport:    meta.Viewport,
		GeneratedAt: generated,
		Controls:    controls,
	}
	if err := rundir.WriteJSON(out, snap); err != nil {
		return "", nil, errors.Wrap(err, "failed to write page snapshot")
	}

	// A copy next to the other runs of the same site eases per-domain review.
	runPath := filepath.Clean(string(dir))
	sitePath := filepath.Join(filepath.Dir(runPath), rundir.AFCDir, filepath.Base(runPath)+"__"+rundir.PageSnapshotFile)
	if err := rundir.WriteJSON(sitePath, snap); err != nil {
		log.WithError(err).Warn("failed to write site level page snapshot")
	}

	log.WithFields(map[string]any{
		"controls": len(controls),
		"reused":   reused,
		"skills":   len(runSkills),
	}).Info("page snapshot built")
	return out, snap, nil
}
