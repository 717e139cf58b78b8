package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/types/skill"
)

func TestRenderCard(t *testing.T) {
	s := validSkill()
	s.Slug = "go"
	s.Label = "Go"
	s.Locators.SelectorAlt = []string{"button.go"}
	s.Meta.Description = "ProgramClick clicks Go on example.com."
	s.ArgsSchema, _ = ArgsSchema("type")

	out, err := RenderCard(s, `<button id="go"><b>Go</b> now</button>`)
	require.NoError(t, err)
	assert.Contains(t, out, "# Go\n")
	assert.Contains(t, out, "- alternative: `button.go`")
	assert.Contains(t, out, "- `text` string")
	assert.Contains(t, out, "## Evidence\n\n**Go** now")

	card, err := ParseCard([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "go_d1", card.Name)
	assert.Equal(t, "ProgramClick clicks Go on example.com.", card.Description)
	assert.Equal(t, "example.com", card.Domain)
	assert.Equal(t, "#go", card.Selector)
	assert.True(t, len(card.Body) > 0 && card.Body[0] == '#')
}

func TestParseCard_Errors(t *testing.T) {
	_, err := ParseCard([]byte("# no frontmatter"))
	assert.ErrorContains(t, err, "missing frontmatter")

	_, err = ParseCard([]byte("---\ndescription: x\n---\nbody"))
	assert.ErrorContains(t, err, "name is required")
}

func TestWriteCard(t *testing.T) {
	run := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(run, "snippets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(run, "snippets", "d1.html"), []byte(`<a href="/x">Deals</a>`), 0o644))

	s := validSkill()
	s.Meta.SourceDir = run
	s.Evidence = &skill.Evidence{Snippet: filepath.Join("snippets", "d1.html")}
	out := t.TempDir()

	path, err := WriteCard(out, s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "d1", CardFile), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	card, err := ParseCard(data)
	require.NoError(t, err)
	assert.Equal(t, "click #go on example.com", card.Description)
	assert.Contains(t, card.Body, "## Evidence\n\n[Deals](/x)")
}
