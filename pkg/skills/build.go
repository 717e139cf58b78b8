package skills

import (
	"context"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/detect"
	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/program"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// DefaultMinWidth is the viewport guard attached to built skills.
const DefaultMinWidth = 960

// BuildOptions tune Build.
type BuildOptions struct {
	// Domain overrides the domain recorded in meta.json.
	Domain        string `mapstructure:"domain"`
	UseSnippets   bool   `mapstructure:"use_snippets"`
	PreferSnippet bool   `mapstructure:"prefer_snippet"`
	// Language of the generated program, "go" or "steps".
	Language string `mapstructure:"language"`
}

// DefaultBuildOptions refines from snippets and generates Go programs.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{UseSnippets: true, PreferSnippet: true, Language: skill.LanguageGo}
}

// inputs are the run artifacts a build reads.
type inputs struct {
	dir      rundir.Dir
	meta     *snapshot.Meta
	tree     *snapshot.ControlsTree
	byIndex  map[int]snapshot.Element
	base     []snapshot.Element
	elements []snapshot.Element
}

func loadInputs(dir rundir.Dir) (*inputs, error) {
	meta, err := dir.Meta()
	if err != nil {
		return nil, err
	}
	tree, err := dir.ControlsTree()
	if err != nil {
		return nil, err
	}
	base, err := dir.DomSummary()
	if err != nil {
		return nil, err
	}
	elements, err := dir.Elements()
	if err != nil {
		return nil, err
	}
	in := &inputs{dir: dir, meta: meta, tree: tree, base: base.Elements, elements: elements, byIndex: map[int]snapshot.Element{}}
	for _, e := range elements {
		if _, ok := in.byIndex[e.Index]; !ok {
			in.byIndex[e.Index] = e
		}
	}
	return in, nil
}

// element looks an index up by the element's own index, then by position
// in the base summary.
func (in *inputs) element(idx int) (snapshot.Element, bool) {
	if e, ok := in.byIndex[idx]; ok {
		return e, true
	}
	if idx >= 0 && idx < len(in.base) {
		return in.base[idx], true
	}
	return snapshot.Element{}, false
}

var schemeHost = regexp.MustCompile(`^[a-zA-Z]+://([^/]+)/?`)

// DomainOf returns the run's domain: the override, meta.domain, the
// sanitized domain, or the URL host.
func DomainOf(meta *snapshot.Meta, override string) string {
	for _, d := range []string{override, meta.Domain, meta.DomainSanitized} {
		if d = strings.TrimSpace(d); d != "" {
			return d
		}
	}
	if m := schemeHost.FindStringSubmatch(strings.TrimSpace(meta.URL)); m != nil {
		return m[1]
	}
	return ""
}

// URLPattern matches any page of domain or its subdomains.
func URLPattern(domain string) string {
	if domain == "" {
		domain = "example.com"
	}
	return `^https?://([^/]*\.)?` + regexp.QuoteMeta(domain) + `/`
}

// Build turns every control node of the run's controls tree into a skill.
func Build(ctx context.Context, dir rundir.Dir, opts BuildOptions) ([]*skill.Skill, error) {
	in, err := loadInputs(dir)
	if err != nil {
		return nil, err
	}
	log := logger.G(ctx).WithField("run_dir", string(dir))

	var out []*skill.Skill
	for _, n := range in.tree.Nodes {
		if !n.IsControl() {
			continue
		}
		s, err := in.makeSkill(n, opts)
		if err != nil {
			log.WithError(err).WithField("node", n.ID).Warn("skipping node")
			continue
		}
		out = append(out, s)
	}
	log.WithField("skills", len(out)).Info("built skills")
	return out, nil
}

// BuildForSelector builds the skill of the topmost node with selector. Unlike
// Build it accepts non-control nodes.
func BuildForSelector(dir rundir.Dir, selector string, opts BuildOptions) (*skill.Skill, error) {
	in, err := loadInputs(dir)
	if err != nil {
		return nil, err
	}
	var picked *snapshot.Node
	for i := range in.tree.Nodes {
		n := &in.tree.Nodes[i]
		if n.Selector != selector {
			continue
		}
		if picked == nil || n.Geom.BBox.Y() < picked.Geom.BBox.Y() {
			picked = n
		}
	}
	if picked == nil {
		return nil, errors.Errorf("selector %q not found in controls tree", selector)
	}
	return in.makeSkill(*picked, opts)
}

func (in *inputs) makeSkill(n snapshot.Node, opts BuildOptions) (*skill.Skill, error) {
	idx, ok := detect.ParseNodeID(n.ID)
	if !ok {
		return nil, errors.Errorf("node id %q carries no DOM index", n.ID)
	}
	e, ok := in.element(idx)
	if !ok {
		return nil, errors.Errorf("no element with index %d", idx)
	}

	action := strings.ToLower(n.Action)
	if action == "" {
		action = skill.ActionClick
	}
	primary := n.Selector
	if primary == "" {
		primary = locator.BuildSelector(e)
	}
	domain := DomainOf(in.meta, opts.Domain)

	s := &skill.Skill{
		ID:       detect.NodeID(idx),
		Domain:   domain,
		Action:   action,
		Locators: locator.Build(e, primary),
		Preconditions: skill.Preconditions{
			URLMatches: []string{URLPattern(domain)},
			Exists:     []string{primary},
			NotExists:  locator.NotExistsGuards(in.base),
			Viewport:   &skill.ViewportBounds{MinWidth: DefaultMinWidth},
		},
		Evidence: &skill.Evidence{
			Tag:  e.LowerTag(),
			Role: e.LowerRole(),
			Name: locator.FirstNonEmpty(e.Aria.Label, e.Aria.Name, locator.NormText(locator.FirstNonEmpty(e.Text, e.InnerText))),
			From: "controls_tree+dom_summary",
		},
		Meta: skill.Meta{
			SchemaVersion: SchemaVersion,
			SourceDir:     string(in.dir),
			URL:           in.meta.URL,
		},
	}
	if !e.BBox.Empty() {
		b := e.BBox
		s.Evidence.BBox = &b
	}

	if opts.UseSnippets {
		if html := in.dir.Snippet(n.ID); html != "" {
			s.Evidence.Snippet = filepath.Join(rundir.SnippetsDir, n.ID+".html")
			if err := RefineFromSnippet(s, html, opts.PreferSnippet); err != nil {
				return nil, err
			}
		}
	}

	s.Label = s.Evidence.Name
	s.Slug = Slug(s.Locators.Selector)
	schema, err := ArgsSchema(s.Action)
	if err != nil {
		return nil, err
	}
	s.ArgsSchema = schema

	prog, err := program.Generate(s, opts.Language)
	if err != nil {
		return nil, err
	}
	s.Program = prog
	s.Meta.Description = Describe(prog.Code)
	return s, nil
}

// SaveBuilt writes skills into <run_dir>/skill and returns the paths.
func SaveBuilt(dir rundir.Dir, skills []*skill.Skill) ([]string, error) {
	paths := make([]string, 0, len(skills))
	for _, s := range skills {
		p := dir.Path(rundir.SkillDir, FileName(s))
		if err := Save(p, s); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// RefinedPath is where a refined skill is written: <out>/<domain>/<id>.json.
func RefinedPath(outDir string, s *skill.Skill) string {
	domain := s.Domain
	if domain == "" {
		domain = "unknown"
	}
	if u, err := url.Parse("https://" + domain); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	return filepath.Join(outDir, domain, s.ID+".json")
}
