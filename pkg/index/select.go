package index

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Scoring constants.
const (
	K1             = 1.2
	B              = 0.75
	MaxQueryTerms  = 64
	MainBlockBonus = 0.5
	URLMatchBonus  = 0.2
	IntentBonus    = 0.6
	MaxIntentBonus = 0.8
)

// intentKeywords maps task keywords to coarse intent tags. Order is kept
// stable so tags come out in a predictable order.
var intentKeywords = []struct{ keyword, tag string }{
	{"酒店", "hotel"},
	{"机票", "flight"},
	{"航班", "flight"},
}

func intentTags(text string) []string {
	var tags []string
	for _, kw := range intentKeywords {
		if strings.Contains(text, kw.keyword) && !contains(tags, kw.tag) {
			tags = append(tags, kw.tag)
		}
	}
	return tags
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// PageContext describes the page a task is planned against.
type PageContext struct {
	Domain    string
	URL       string
	Title     string
	MainBlock *snapshot.Block
}

// PageContextFromRun reads meta.json and blocks.json of a run. The first
// block is taken as the main block.
func PageContextFromRun(dir rundir.Dir) (PageContext, error) {
	meta, err := dir.Meta()
	if err != nil {
		return PageContext{}, err
	}
	pc := PageContext{
		Domain: meta.Domain,
		URL:    meta.URL,
		Title:  meta.Title,
	}
	if meta.FinalURL != "" {
		pc.URL = meta.FinalURL
	}
	if rundir.Exists(dir.Path(rundir.BlocksFile)) {
		blocks, err := dir.Blocks()
		if err != nil {
			return PageContext{}, err
		}
		if len(blocks.Blocks) > 0 {
			b := blocks.Blocks[0]
			pc.MainBlock = &b
		}
	}
	return pc, nil
}

// Candidate is a ranked skill.
type Candidate struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Score     float64  `json:"score"`
	Reason    string   `json:"reason"`
	Selectors []string `json:"selectors"`
	Card      Card     `json:"card"`
}

// DomainOK reports whether a skill bound to skillDomain may run on pageDomain.
// Empty domains match anything; otherwise the domains must be equal or one a
// dotted suffix of the other.
func DomainOK(skillDomain, pageDomain string) bool {
	if skillDomain == "" || pageDomain == "" {
		return true
	}
	sd, pd := strings.ToLower(skillDomain), strings.ToLower(pageDomain)
	return sd == pd || strings.HasSuffix(sd, "."+pd) || strings.HasSuffix(pd, "."+sd)
}

// URLMatchOK reports whether url satisfies any pattern. Patterns that do not
// compile are matched as substrings.
func URLMatchOK(patterns []string, url string) bool {
	if len(patterns) == 0 || url == "" {
		return true
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			if strings.Contains(url, p) {
				return true
			}
			continue
		}
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func mainRelated(selectors []string, main string) bool {
	ms := strings.ToLower(strings.TrimSpace(main))
	if ms == "" {
		return false
	}
	for _, s := range selectors {
		ss := strings.ToLower(strings.TrimSpace(s))
		if ss == "" {
			continue
		}
		if strings.Contains(ms, ss) || strings.Contains(ss, ms) {
			return true
		}
	}
	return false
}

func (idx *Index) idf(term string) float64 {
	n := idx.BM25.TotalDocs
	if n <= 0 {
		n = 1
	}
	df := float64(idx.BM25.DocFreq[term])
	return math.Log((float64(n)-df+0.5)/(df+0.5) + 1)
}

func (idx *Index) score(query, doc []string, avgdl float64) (float64, []string) {
	if len(query) == 0 || len(doc) == 0 {
		return 0, nil
	}
	tf := make(map[string]int, len(doc))
	for _, t := range doc {
		tf[t]++
	}
	var (
		total   float64
		matched []string
	)
	for _, t := range query {
		f, ok := tf[t]
		if !ok {
			continue
		}
		ff := float64(f)
		denom := ff + K1*(1-B+B*float64(len(doc))/math.Max(1, avgdl))
		total += idx.idf(t) * (ff * (K1 + 1) / math.Max(1e-9, denom))
		matched = append(matched, t)
	}
	return total, matched
}

// Query builds the scoring terms for a task on a page.
func Query(task string, page PageContext) []string {
	parts := []string{task, page.Title}
	if page.MainBlock != nil {
		parts = append(parts, page.MainBlock.Name, page.MainBlock.Desc)
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	terms := Tokenize(strings.Join(nonEmpty, " "))
	if len(terms) > MaxQueryTerms {
		terms = terms[:MaxQueryTerms]
	}
	return terms
}

// SelectCandidates ranks the skills of idx for task on page and returns at
// most topK of them, best first.
func SelectCandidates(idx *Index, task string, page PageContext, topK int) []Candidate {
	if idx == nil || len(idx.Skills) == 0 {
		return nil
	}
	if topK < 1 {
		topK = 1
	}

	type entry struct {
		card  Card
		urlOK bool
	}
	var filtered []entry
	for _, c := range idx.Skills {
		if !DomainOK(c.Domain, page.Domain) {
			continue
		}
		filtered = append(filtered, entry{card: c, urlOK: URLMatchOK(c.URLMatches, page.URL)})
	}
	if len(filtered) == 0 {
		for _, c := range idx.Skills {
			filtered = append(filtered, entry{card: c, urlOK: true})
		}
	}

	query := Query(task, page)
	taskIntents := intentTags(task)
	var mainSelector string
	if page.MainBlock != nil {
		mainSelector = page.MainBlock.Selector
	}

	docs := make([][]string, len(filtered))
	totalLen := 0
	for i, e := range filtered {
		docs[i] = e.card.Terms()
		totalLen += len(docs[i])
	}
	avgdl := float64(totalLen) / float64(max(1, len(filtered)))

	out := make([]Candidate, 0, len(filtered))
	for i, e := range filtered {
		base, matched := idx.score(query, docs[i], avgdl)

		related := mainRelated(e.card.Selectors, mainSelector)
		bonus := 0.0
		if related {
			bonus += MainBlockBonus
		}
		if e.urlOK {
			bonus += URLMatchBonus
		}

		var overlap []string
		for _, t := range taskIntents {
			if contains(e.card.Intents, t) {
				overlap = append(overlap, t)
			}
		}
		intent := math.Min(IntentBonus*float64(len(overlap)), MaxIntentBonus)

		parts := []string{fmt.Sprintf("bm25=%.3f", base)}
		if bonus > 0 {
			parts = append(parts, fmt.Sprintf("bonus=%.3f", bonus))
		}
		if len(matched) > 0 {
			parts = append(parts, "matched="+strings.Join(firstSorted(matched, 5), ","))
		}
		if related {
			parts = append(parts, "main_block_related")
		}
		if e.urlOK {
			parts = append(parts, "url_match")
		}
		if intent > 0 {
			parts = append(parts, "intent="+strings.Join(firstSorted(overlap, 0), ","))
		}

		name := e.card.Name
		if name == "" {
			name = e.card.ID
		}
		out = append(out, Candidate{
			ID:        e.card.ID,
			Name:      name,
			Score:     base + bonus + intent,
			Reason:    strings.Join(parts, "; "),
			Selectors: e.card.Selectors,
			Card:      e.card,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// firstSorted returns the sorted unique values, truncated to n when n > 0.
func firstSorted(values []string, n int) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
