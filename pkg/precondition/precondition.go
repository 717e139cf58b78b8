// Package precondition evaluates skill guards against a live page.
package precondition

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Failure kinds.
const (
	KindURL      = "url_matches"
	KindExists   = "exists"
	KindOverlay  = "not_exists"
	KindViewport = "viewport"
	KindCookies  = "cookies"
	KindEnv      = "env"
)

// Failure is one unmet guard.
type Failure struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Result of evaluating preconditions.
type Result struct {
	OK       bool      `json:"ok"`
	Failures []Failure `json:"failures,omitempty"`
}

// MatchURL reports whether any pattern matches url. Patterns that are not
// valid regular expressions are treated as substrings.
func MatchURL(patterns []string, url string) bool {
	for _, p := range patterns {
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

// Evaluate checks every guard and collects all failures. Errors talking to
// the browser are reported as failures rather than aborting.
func Evaluate(ctx context.Context, env browser.Env, pre skill.Preconditions) Result {
	var res Result
	fail := func(kind, format string, args ...any) {
		res.Failures = append(res.Failures, Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	if len(pre.URLMatches) > 0 {
		u, err := env.CurrentURL(ctx)
		switch {
		case err != nil:
			fail(KindEnv, "current url: %v", err)
		case !MatchURL(pre.URLMatches, u):
			fail(KindURL, "%s does not match %v", u, pre.URLMatches)
		}
	}

	for _, sel := range pre.Exists {
		ok, err := env.Exists(ctx, sel)
		if err != nil {
			fail(KindEnv, "exists %s: %v", sel, err)
			continue
		}
		if !ok {
			fail(KindExists, "missing %s", sel)
		}
	}

	for _, sel := range pre.NotExists {
		vis, err := env.Visible(ctx, sel)
		if err != nil {
			fail(KindEnv, "not_exists %s: %v", sel, err)
			continue
		}
		if vis {
			fail(KindOverlay, "overlay visible %s", sel)
		}
	}

	if vb := pre.Viewport; vb != nil && (vb.MinWidth > 0 || vb.MinHeight > 0) {
		vp, err := env.ViewportSize(ctx)
		switch {
		case err != nil:
			fail(KindEnv, "viewport: %v", err)
		case vp.Width < vb.MinWidth || vp.Height < vb.MinHeight:
			fail(KindViewport, "viewport %dx%d below %dx%d", vp.Width, vp.Height, vb.MinWidth, vb.MinHeight)
		}
	}

	if c := pre.Cookies; c != nil && len(c.RequiredNames) > 0 {
		jar, err := env.Cookies(ctx)
		if err != nil {
			fail(KindEnv, "cookies: %v", err)
		} else if missing := browser.MissingCookies(jar, c.RequiredNames); len(missing) > 0 {
			fail(KindCookies, "missing cookies %s", strings.Join(missing, ","))
		}
	}

	res.OK = len(res.Failures) == 0
	if !res.OK {
		logger.G(ctx).WithField("failures", len(res.Failures)).Debug("preconditions not met")
	}
	return res
}
