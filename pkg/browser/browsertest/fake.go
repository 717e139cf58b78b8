// Package browsertest provides an in-memory browser.Env for tests.
package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Call records one action performed on the fake.
type Call struct {
	Op       string
	Selector string
	Value    string
}

// Env is a scriptable browser.Env. Selectors present in Present exist;
// those also in Shown are visible.
type Env struct {
	mu       sync.Mutex
	URL      string
	Present  map[string]bool
	Shown    map[string]bool
	Viewport snapshot.Viewport
	Jar      []skill.Cookie
	// Fail makes actions on the listed selectors return an error.
	Fail  map[string]bool
	Calls []Call
	// OnClick optionally navigates after a click on a selector.
	OnClick map[string]string
}

var _ browser.Env = (*Env)(nil)

// New returns a fake at url with the given selectors present and visible.
func New(url string, selectors ...string) *Env {
	e := &Env{
		URL:      url,
		Present:  map[string]bool{},
		Shown:    map[string]bool{},
		Viewport: snapshot.DefaultViewport,
		Fail:     map[string]bool{},
		OnClick:  map[string]string{},
	}
	for _, s := range selectors {
		e.Present[s] = true
		e.Shown[s] = true
	}
	return e
}

func (e *Env) record(op, sel, val string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, Call{Op: op, Selector: sel, Value: val})
	if e.Fail[sel] {
		return errors.Errorf("%s failed: %s", op, sel)
	}
	if sel != "" && !e.Present[sel] {
		return errors.Errorf("element not found: %s", sel)
	}
	return nil
}

// Ops returns the recorded operation names.
func (e *Env) Ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Calls))
	for i, c := range e.Calls {
		out[i] = c.Op
	}
	return out
}

func (e *Env) CurrentURL(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.URL, nil
}

func (e *Env) Exists(_ context.Context, sel string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Present[sel], nil
}

func (e *Env) Visible(_ context.Context, sel string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Present[sel] && e.Shown[sel], nil
}

func (e *Env) Click(_ context.Context, sel string) error {
	if err := e.record("click", sel, ""); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if u, ok := e.OnClick[sel]; ok {
		e.URL = u
	}
	return nil
}

func (e *Env) Type(_ context.Context, sel, text string) error {
	return e.record("type", sel, text)
}

func (e *Env) Select(_ context.Context, sel, value string) error {
	return e.record("select", sel, value)
}

func (e *Env) Press(_ context.Context, sel, key string) error {
	return e.record("press", sel, key)
}

func (e *Env) WaitForSelector(_ context.Context, sel, state string, _ time.Duration) error {
	e.mu.Lock()
	present, shown := e.Present[sel], e.Shown[sel]
	e.mu.Unlock()
	switch state {
	case browser.StateHidden:
		if present && shown {
			return errors.Errorf("still visible: %s", sel)
		}
		return nil
	case browser.StateAttached:
		if !present {
			return errors.Errorf("not attached: %s", sel)
		}
		return nil
	default:
		if !present || !shown {
			return errors.Errorf("not visible: %s", sel)
		}
		return nil
	}
}

func (e *Env) ViewportSize(context.Context) (snapshot.Viewport, error) {
	return e.Viewport, nil
}

func (e *Env) ScrollIntoView(_ context.Context, sel string) error {
	return e.record("scroll", sel, "")
}

func (e *Env) Highlight(_ context.Context, sel, _ string, _ int) error {
	return e.record("highlight", sel, "")
}

func (e *Env) ClearHighlights(context.Context) error {
	return e.record("clear_highlights", "", "")
}

func (e *Env) EnableClickFlash(context.Context, string, time.Duration) error {
	return e.record("click_flash", "", "")
}

func (e *Env) Cookies(context.Context) ([]skill.Cookie, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]skill.Cookie(nil), e.Jar...), nil
}

func (e *Env) SetCookies(_ context.Context, cookies []skill.Cookie) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Jar = append(e.Jar, browser.SanitizeCookies(cookies)...)
	return nil
}

func (e *Env) Navigate(_ context.Context, url string) error {
	if err := e.record("navigate", "", url); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.URL = url
	return nil
}
