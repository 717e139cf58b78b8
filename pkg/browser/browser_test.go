package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/browser/browsertest"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

func TestSanitizeCookies(t *testing.T) {
	in := []skill.Cookie{
		{Name: " sid ", Value: " abc ", Domain: ".example.com", SameSite: "lax"},
		{Name: "token", URL: "https://example.com/", Secure: true, SameSite: "bogus"},
		{Name: "", Domain: "example.com"},
		{Name: "orphan", Value: "x"},
	}

	out := browser.SanitizeCookies(in)
	require.Len(t, out, 2)
	assert.Equal(t, skill.Cookie{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", SameSite: "Lax"}, out[0])
	assert.Equal(t, "https://example.com/", out[1].URL)
	assert.True(t, out[1].Secure)
	assert.Empty(t, out[1].SameSite)
}

func TestMissingCookies(t *testing.T) {
	jar := []skill.Cookie{{Name: "sid"}}
	assert.Equal(t, []string{"token"}, browser.MissingCookies(jar, []string{"sid", "token"}))
	assert.Empty(t, browser.MissingCookies(jar, nil))
}

func TestStartURL(t *testing.T) {
	tests := []struct {
		name  string
		skill skill.Skill
		want  string
	}{
		{"meta url", skill.Skill{Domain: "a.com", Meta: skill.Meta{URL: "https://a.com/search"}}, "https://a.com/search"},
		{"domain", skill.Skill{Domain: "a.com"}, "https://a.com/"},
		{"pattern host", skill.Skill{Preconditions: skill.Preconditions{URLMatches: []string{`https://www.b.com/`}}}, "https://www.b.com/"},
		{"nothing", skill.Skill{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, browser.StartURL(&tt.skill))
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	opts := browser.ResolveOptions{Retries: 2, Delay: time.Millisecond}

	t.Run("falls back to alternate", func(t *testing.T) {
		env := browsertest.New("https://a.com/", "button.go")
		got, err := browser.Resolve(ctx, env, skill.Locators{Selector: "#go", SelectorAlt: []string{"button.go"}}, opts)
		require.NoError(t, err)
		assert.Equal(t, "button.go", got)
	})

	t.Run("no match after retries", func(t *testing.T) {
		env := browsertest.New("https://a.com/")
		_, err := browser.Resolve(ctx, env, skill.Locators{Selector: "#go"}, opts)
		assert.ErrorIs(t, err, browser.ErrNoLiveLocator)
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := browser.Resolve(ctx, browsertest.New(""), skill.Locators{}, opts)
		assert.Error(t, err)
	})
}

func TestAllocatorOptions(t *testing.T) {
	opts := browser.DefaultOptions()
	headless := browser.AllocatorOptions(opts)
	opts.Headless = false
	opts.UserAgent = "webskill-test"
	headed := browser.AllocatorOptions(opts)
	assert.Len(t, headed, len(headless)+1)
}
