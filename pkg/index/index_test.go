package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

func hotelSkill() *skill.Skill {
	return &skill.Skill{
		ID:     "d1",
		Domain: "trip.com",
		Label:  "酒店 搜索",
		Action: skill.ActionClick,
		Locators: skill.Locators{
			Selector: "#hotel-search",
			ByText:   []string{"搜索酒店"},
		},
		Preconditions: skill.Preconditions{URLMatches: []string{`^https://www\.trip\.com/`}},
		Meta:          skill.Meta{Description: "search hotels"},
	}
}

func flightSkill() *skill.Skill {
	return &skill.Skill{
		ID:       "d2",
		Domain:   "trip.com",
		Label:    "flight search",
		Action:   skill.ActionClick,
		Locators: skill.Locators{Selector: "#flight-go", SelectorAlt: []string{"#flight-go", "button.go"}, ByText: []string{"机票"}},
	}
}

func otherSkill() *skill.Skill {
	return &skill.Skill{
		ID:         "d3",
		Domain:     "other.org",
		Action:     skill.ActionType,
		Locators:   skill.Locators{Selector: "#q"},
		ArgsSchema: []byte(`{"properties": {"text": {"type": "string", "description": "query text"}}}`),
	}
}

func writeSkills(t *testing.T, root string, ss ...*skill.Skill) {
	t.Helper()
	for _, s := range ss {
		require.NoError(t, skills.Save(filepath.Join(root, "run", rundir.SkillDir, skills.FileName(s)), s))
	}
}

func testIndex() *Index {
	return New([]Card{
		NewCard(hotelSkill(), "/skills/Skill_hotel_d1.json"),
		NewCard(flightSkill(), "/skills/Skill_flight_d2.json"),
		NewCard(otherSkill(), "/skills/Skill_q_d3.json"),
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"search", "酒店", "hotel", "2"}, Tokenize("Search 酒店-Hotel_2"))
	assert.Empty(t, Tokenize("  --  "))
}

func TestNewCard(t *testing.T) {
	c := NewCard(flightSkill(), "/skills/Skill_flight_d2.json")
	assert.Equal(t, "flight search", c.Name)
	assert.Equal(t, []string{"#flight-go", "button.go"}, c.Selectors)
	assert.Equal(t, []string{}, c.URLMatches)
	assert.Equal(t, []string{"flight"}, c.Intents)

	c = NewCard(otherSkill(), "Skill_q_d3.json")
	assert.Equal(t, "d3", c.Name)
	assert.True(t, filepath.IsAbs(c.SkillPath))
	require.Len(t, c.Args, 1)
	assert.Equal(t, skills.Arg{Name: "text", Type: "string", Description: "query text"}, c.Args[0])
	assert.Contains(t, c.Terms(), "query")
}

func TestNew_DocFreq(t *testing.T) {
	idx := testIndex()
	assert.Equal(t, 3, idx.BM25.TotalDocs)
	assert.Equal(t, 2, idx.BM25.DocFreq["trip"])
	assert.Equal(t, 2, idx.BM25.DocFreq["search"])
	assert.Equal(t, 1, idx.BM25.DocFreq["flight"])
}

func TestBuildIndex(t *testing.T) {
	root := t.TempDir()
	writeSkills(t, root, hotelSkill(), flightSkill(), otherSkill())
	require.NoError(t, os.WriteFile(filepath.Join(root, "run", rundir.SkillDir, "Skill_bad_d9.json"), []byte("{"), 0o644))

	out, idx, err := BuildAndWrite(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, FileName), out)
	assert.Len(t, idx.Skills, 3)

	loaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, idx.BM25, loaded.BM25)
	// files are discovered in name order
	assert.Equal(t, []string{"d2", "d1", "d3"}, []string{loaded.Skills[0].ID, loaded.Skills[1].ID, loaded.Skills[2].ID})
	assert.Equal(t, []string{"hotel"}, loaded.Skills[1].Intents)
}

func TestDomainOK(t *testing.T) {
	tests := []struct {
		skill, page string
		want        bool
	}{
		{"", "trip.com", true},
		{"trip.com", "", true},
		{"trip.com", "TRIP.com", true},
		{"trip.com", "www.trip.com", true},
		{"hotels.trip.com", "trip.com", true},
		{"trip.com", "strip.com", false},
		{"other.org", "trip.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.skill+"|"+tt.page, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainOK(tt.skill, tt.page))
		})
	}
}

func TestURLMatchOK(t *testing.T) {
	assert.True(t, URLMatchOK(nil, "https://a.com"))
	assert.True(t, URLMatchOK([]string{"^https://b"}, ""))
	assert.True(t, URLMatchOK([]string{`^https://a\.com/`}, "https://a.com/x"))
	assert.False(t, URLMatchOK([]string{`^https://a\.com/`}, "https://b.com/x"))
	assert.True(t, URLMatchOK([]string{"[trip"}, "https://x.com/[trip"))
	assert.False(t, URLMatchOK([]string{"[trip"}, "https://x.com/"))
}

func TestQuery(t *testing.T) {
	page := PageContext{Title: "Trip Home", MainBlock: &snapshot.Block{Name: "Search", Desc: "hotel form"}}
	assert.Equal(t, []string{"book", "trip", "home", "search", "hotel", "form"}, Query("book", page))

	long := ""
	for i := 0; i < 100; i++ {
		long += "w "
	}
	assert.Len(t, Query(long, PageContext{}), MaxQueryTerms)
}

func TestSelectCandidates(t *testing.T) {
	idx := testIndex()
	page := PageContext{
		Domain:    "www.trip.com",
		URL:       "https://www.trip.com/hotels",
		MainBlock: &snapshot.Block{Selector: "#hotel-search-form"},
	}

	got := SelectCandidates(idx, "预订酒店 hotel", page, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, "d2", got[1].ID)
	assert.Greater(t, got[0].Score, 1.3)
	assert.InDelta(t, URLMatchBonus, got[1].Score, 1e-9)

	assert.Contains(t, got[0].Reason, "bonus=0.700")
	assert.Contains(t, got[0].Reason, "matched=hotel")
	assert.Contains(t, got[0].Reason, "main_block_related")
	assert.Contains(t, got[0].Reason, "url_match")
	assert.Contains(t, got[0].Reason, "intent=hotel")
	assert.Equal(t, "bm25=0.000; bonus=0.200; url_match", got[1].Reason)

	t.Run("top k", func(t *testing.T) {
		assert.Len(t, SelectCandidates(idx, "hotel", page, 0), 1)
	})

	t.Run("domain fallback", func(t *testing.T) {
		got := SelectCandidates(idx, "query", PageContext{Domain: "nowhere.net", URL: "https://nowhere.net"}, 5)
		require.Len(t, got, 3)
		assert.Equal(t, "d3", got[0].ID)
		for _, c := range got {
			assert.Contains(t, c.Reason, "url_match")
		}
	})

	t.Run("url mismatch", func(t *testing.T) {
		got := SelectCandidates(idx, "hotel", PageContext{Domain: "trip.com", URL: "https://m.trip.com/"}, 5)
		require.Len(t, got, 2)
		for _, c := range got {
			if c.ID == "d1" {
				assert.NotContains(t, c.Reason, "url_match")
			}
		}
	})

	assert.Nil(t, SelectCandidates(New(nil), "x", PageContext{}, 3))
}

func TestPageContextFromRun(t *testing.T) {
	dir := rundir.Dir(t.TempDir())
	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.MetaFile), snapshot.Meta{
		Domain: "trip.com", URL: "https://trip.com", FinalURL: "https://www.trip.com/", Title: "Trip",
	}))

	pc, err := PageContextFromRun(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://www.trip.com/", pc.URL)
	assert.Nil(t, pc.MainBlock)

	require.NoError(t, rundir.WriteJSON(dir.Path(rundir.BlocksFile), snapshot.Blocks{
		Blocks: []snapshot.Block{{ID: "d4", Name: "Search", Selector: "form#s"}, {ID: "d9"}},
	}))
	pc, err = PageContextFromRun(dir)
	require.NoError(t, err)
	require.NotNil(t, pc.MainBlock)
	assert.Equal(t, "form#s", pc.MainBlock.Selector)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run", rundir.SkillDir), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builds := make(chan int, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, WatchOptions{
			Debounce: 50 * time.Millisecond,
			OnBuild: func(_ string, idx *Index, err error) {
				if err == nil {
					builds <- len(idx.Skills)
				}
			},
		})
	}()

	waitFor := func(want int) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case n := <-builds:
				if n == want {
					return
				}
			case <-deadline:
				t.Fatalf("index never reached %d skills", want)
			}
		}
	}

	waitFor(0)
	writeSkills(t, root, hotelSkill())
	waitFor(1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
