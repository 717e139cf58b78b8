package skills

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// CardFile is the file name of a rendered skill card.
const CardFile = "SKILL.md"

// CardMetadata is the YAML frontmatter of a SKILL.md card.
type CardMetadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Domain      string `yaml:"domain"`
	Selector    string `yaml:"selector"`
}

// Card is a parsed SKILL.md.
type Card struct {
	CardMetadata
	Body string
}

func cardName(s *skill.Skill) string {
	if s.Slug != "" {
		return s.Slug + "_" + s.ID
	}
	return s.ID
}

func cardDescription(s *skill.Skill) string {
	if s.Meta.Description != "" {
		return s.Meta.Description
	}
	label := s.Label
	if label == "" {
		label = s.Locators.Selector
	}
	return fmt.Sprintf("%s %s on %s", s.Action, label, s.Domain)
}

// SnippetHTML loads the evidence snippet of s from its source run, or "".
func SnippetHTML(s *skill.Skill) string {
	if s.Evidence == nil || s.Evidence.Snippet == "" || s.Meta.SourceDir == "" {
		return ""
	}
	data, err := os.ReadFile(rundir.Dir(s.Meta.SourceDir).Path(s.Evidence.Snippet))
	if err != nil {
		return ""
	}
	return string(data)
}

// RenderCard renders s as a SKILL.md document. snippet is the control's
// outerHTML and may be empty.
func RenderCard(s *skill.Skill, snippet string) (string, error) {
	front, err := yaml.Marshal(CardMetadata{
		Name:        cardName(s),
		Description: cardDescription(s),
		Domain:      s.Domain,
		Selector:    s.Locators.Selector,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal frontmatter")
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")

	title := s.Label
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Action: `%s`\n\n", s.Action)

	b.WriteString("## Locators\n\n")
	fmt.Fprintf(&b, "- primary: `%s`\n", s.Locators.Selector)
	for _, alt := range s.Locators.SelectorAlt {
		fmt.Fprintf(&b, "- alternative: `%s`\n", alt)
	}
	if r := s.Locators.ByRole; r != nil {
		fmt.Fprintf(&b, "- role: %s %q\n", r.Role, r.Name)
	}
	for _, t := range s.Locators.ByText {
		fmt.Fprintf(&b, "- text: %q\n", t)
	}

	b.WriteString("\n## Preconditions\n\n")
	for _, u := range s.Preconditions.URLMatches {
		fmt.Fprintf(&b, "- url matches `%s`\n", u)
	}
	for _, sel := range s.Preconditions.Exists {
		fmt.Fprintf(&b, "- exists `%s`\n", sel)
	}
	for _, sel := range s.Preconditions.NotExists {
		fmt.Fprintf(&b, "- not visible `%s`\n", sel)
	}
	if v := s.Preconditions.Viewport; v != nil {
		fmt.Fprintf(&b, "- viewport at least %dx%d\n", v.MinWidth, v.MinHeight)
	}

	if args := SchemaArgs(s.ArgsSchema); len(args) > 0 {
		b.WriteString("\n## Arguments\n\n")
		for _, a := range args {
			req := ""
			if a.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "- `%s` %s%s %s\n", a.Name, a.Type, req, a.Description)
		}
	}

	if snippet != "" {
		converter := htmlmd.NewConverter("", true, nil)
		text, err := converter.ConvertString(snippet)
		if err != nil {
			return "", errors.Wrap(err, "failed to convert snippet")
		}
		if text = strings.TrimSpace(text); text != "" {
			b.WriteString("\n## Evidence\n\n")
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	out := b.String()
	if _, err := ParseCard([]byte(out)); err != nil {
		return "", err
	}
	return out, nil
}

// ParseCard parses a SKILL.md document.
func ParseCard(content []byte) (*Card, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	card := &Card{Body: extractBodyContent(string(content))}
	card.Name, _ = metaData["name"].(string)
	card.Description, _ = metaData["description"].(string)
	card.Domain, _ = metaData["domain"].(string)
	card.Selector, _ = metaData["selector"].(string)

	if card.Name == "" {
		return nil, errors.New("card name is required in frontmatter")
	}
	return card, nil
}

// WriteCard renders s into <dir>/<name>/SKILL.md.
func WriteCard(dir string, s *skill.Skill) (string, error) {
	content, err := RenderCard(s, SnippetHTML(s))
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, cardName(s), CardFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create card directory")
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}
	return path, nil
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}
	if frontmatterEnd == -1 {
		return content
	}
	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
