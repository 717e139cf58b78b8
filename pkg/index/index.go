// Package index builds a searchable index of skill cards and ranks
// candidate skills for a task on a page.
package index

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// FileName is the index file written at the root of a skill tree.
const FileName = "skills_index.json"

// intentCodeLimit bounds how much program code feeds intent tagging.
const intentCodeLimit = 4000

var tokenSplitRe = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fff}]+`)

// Card is the searchable summary of one skill.
type Card struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Domain      string       `json:"domain"`
	Selectors   []string     `json:"selectors"`
	URLMatches  []string     `json:"url_matches"`
	Args        []skills.Arg `json:"args"`
	SkillPath   string       `json:"skill_path"`
	Intents     []string     `json:"intents,omitempty"`
}

// BM25 holds the corpus statistics needed for scoring.
type BM25 struct {
	DocFreq   map[string]int `json:"doc_freq"`
	TotalDocs int            `json:"total_docs"`
}

// Index is the content of skills_index.json.
type Index struct {
	Skills []Card `json:"skills"`
	BM25   BM25   `json:"bm25"`
}

// Tokenize lowercases text and splits it on anything that is not an ASCII
// letter, a digit or a CJK ideograph.
func Tokenize(text string) []string {
	var out []string
	for _, t := range tokenSplitRe.Split(strings.ToLower(text), -1) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Terms returns the tokens a card is indexed under.
func (c Card) Terms() []string {
	parts := []string{c.ID, c.Name, c.Description, c.Domain}
	parts = append(parts, c.Selectors...)
	parts = append(parts, c.URLMatches...)
	for _, a := range c.Args {
		parts = append(parts, a.Name, a.Description)
	}
	var out []string
	for _, p := range parts {
		out = append(out, Tokenize(p)...)
	}
	return out
}

// NewCard summarizes s. path is recorded as an absolute path when possible.
func NewCard(s *skill.Skill, path string) Card {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	urls := s.Preconditions.URLMatches
	if urls == nil {
		urls = []string{}
	}
	return Card{
		ID:          s.ID,
		Name:        locator.FirstNonEmpty(s.Label, s.Slug, s.ID),
		Description: s.Meta.Description,
		Domain:      s.Domain,
		Selectors:   locator.Dedup(s.Locators.Selectors(), 0),
		URLMatches:  urls,
		Args:        skills.SchemaArgs(s.ArgsSchema),
		SkillPath:   path,
		Intents:     skillIntents(s),
	}
}

func skillIntents(s *skill.Skill) []string {
	text := strings.Join(s.Locators.ByText, " ") + " " + locator.Truncate(s.Program.Code, intentCodeLimit)
	return intentTags(text)
}

// New computes document frequencies over cards.
func New(cards []Card) *Index {
	df := make(map[string]int)
	for _, c := range cards {
		seen := make(map[string]bool)
		for _, t := range c.Terms() {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	if cards == nil {
		cards = []Card{}
	}
	return &Index{Skills: cards, BM25: BM25{DocFreq: df, TotalDocs: len(cards)}}
}

// BuildIndex loads every skill file below root. Unreadable skills are
// skipped with a warning.
func BuildIndex(ctx context.Context, root string) (*Index, error) {
	paths, err := skills.Discover(root)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, 0, len(paths))
	for _, p := range paths {
		s, err := skills.Load(p)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", p).Warn("skipping unreadable skill")
			continue
		}
		cards = append(cards, NewCard(s, p))
	}
	logger.G(ctx).WithField("root", root).WithField("skills", len(cards)).Debug("built skill index")
	return New(cards), nil
}

// Write stores idx at path.
func Write(path string, idx *Index) error {
	return rundir.WriteJSON(path, idx)
}

// Load reads an index written by Write.
func Load(path string) (*Index, error) {
	var idx Index
	if err := rundir.ReadJSON(path, &idx); err != nil {
		return nil, err
	}
	if idx.BM25.DocFreq == nil {
		idx.BM25.DocFreq = map[string]int{}
	}
	return &idx, nil
}

// BuildAndWrite builds the index of root and writes it to root/skills_index.json.
func BuildAndWrite(ctx context.Context, root string) (string, *Index, error) {
	idx, err := BuildIndex(ctx, root)
	if err != nil {
		return "", nil, err
	}
	out := filepath.Join(root, FileName)
	if err := Write(out, idx); err != nil {
		return "", nil, errors.Wrap(err, "failed to write skill index")
	}
	return out, idx, nil
}
