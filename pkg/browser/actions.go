package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// query converts a chain selector into a chromedp query and its options.
func query(selector string) (string, []chromedp.QueryOption) {
	if xp, ok := locator.IsXPath(selector); ok {
		return xp, []chromedp.QueryOption{chromedp.BySearch}
	}
	return selector, []chromedp.QueryOption{chromedp.ByQuery}
}

// jsFindAll returns a JS expression evaluating to an array of matched elements.
func jsFindAll(selector string) string {
	q, _ := json.Marshal(selector)
	if xp, ok := locator.IsXPath(selector); ok {
		q, _ = json.Marshal(xp)
		return fmt.Sprintf(`(() => { const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null); const out = []; for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i)); return out; })()`, q)
	}
	return fmt.Sprintf(`(() => { try { return Array.from(document.querySelectorAll(%s)); } catch (_) { return []; } })()`, q)
}

// CurrentURL returns the tab location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.Run(ctx, chromedp.Location(&u)); err != nil {
		return "", errors.Wrap(err, "failed to read location")
	}
	return u, nil
}

// Exists reports whether any element matches selector.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var n int
	if err := s.Run(ctx, chromedp.Evaluate(jsFindAll(selector)+".length", &n)); err != nil {
		return false, errors.Wrapf(err, "failed to query %s", selector)
	}
	return n > 0, nil
}

// Visible reports whether any matched element is rendered and not hidden.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	js := jsFindAll(selector) + `.some(el => {
		const r = el.getBoundingClientRect();
		const st = getComputedStyle(el);
		return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none' && parseFloat(st.opacity || '1') > 0;
	})`
	var vis bool
	if err := s.Run(ctx, chromedp.Evaluate(js, &vis)); err != nil {
		return false, errors.Wrapf(err, "failed to check visibility of %s", selector)
	}
	return vis, nil
}

// Click waits for the element to be visible and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	q, opts := query(selector)
	if err := s.Run(ctx, chromedp.Click(q, append(opts, chromedp.NodeVisible)...)); err != nil {
		logger.G(ctx).WithField("selector", selector).WithError(err).Debug("click failed")
		return errors.Wrapf(err, "click failed: %s", selector)
	}
	return nil
}

// Type clears the field and types text.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	q, opts := query(selector)
	err := s.Run(ctx,
		chromedp.WaitVisible(q, opts...),
		chromedp.Clear(q, opts...),
		chromedp.SendKeys(q, text, opts...),
	)
	if err != nil {
		return errors.Wrapf(err, "type failed: %s", selector)
	}
	return nil
}

// Select sets the value of a select element and fires change events.
func (s *Session) Select(ctx context.Context, selector, value string) error {
	v, _ := json.Marshal(value)
	js := fmt.Sprintf(`(() => {
		const el = %s[0];
		if (!el) return false;
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, jsFindAll(selector), v)
	var ok bool
	if err := s.Run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return errors.Wrapf(err, "select failed: %s", selector)
	}
	if !ok {
		return errors.Errorf("select target not found: %s", selector)
	}
	return nil
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"arrowdown": kb.ArrowDown,
	"arrowup":   kb.ArrowUp,
}

// Press sends a key to the element. Named keys such as Enter are mapped.
func (s *Session) Press(ctx context.Context, selector, key string) error {
	if k, ok := namedKeys[strings.ToLower(key)]; ok {
		key = k
	}
	q, opts := query(selector)
	if err := s.Run(ctx, chromedp.SendKeys(q, key, opts...)); err != nil {
		return errors.Wrapf(err, "press %q failed: %s", key, selector)
	}
	return nil
}

// WaitForSelector waits until selector reaches state.
func (s *Session) WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	q, opts := query(selector)
	var action chromedp.Action
	switch state {
	case StateHidden:
		action = chromedp.WaitNotVisible(q, opts...)
	case StateAttached:
		action = chromedp.WaitReady(q, opts...)
	case StateVisible, "":
		action = chromedp.WaitVisible(q, opts...)
	default:
		return errors.Errorf("unknown wait state %q", state)
	}
	if err := s.RunWithTimeout(ctx, timeout, action); err != nil {
		return errors.Wrapf(err, "wait for %s (%s) failed", selector, state)
	}
	return nil
}

// ViewportSize returns the inner window size.
func (s *Session) ViewportSize(ctx context.Context) (snapshot.Viewport, error) {
	var vp snapshot.Viewport
	if err := s.Run(ctx, chromedp.Evaluate(`({width: window.innerWidth, height: window.innerHeight})`, &vp)); err != nil {
		return vp, errors.Wrap(err, "failed to read viewport")
	}
	return vp, nil
}

// ScrollIntoView scrolls the element into view.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	q, opts := query(selector)
	return errors.Wrapf(s.Run(ctx, chromedp.ScrollIntoView(q, opts...)), "scroll failed: %s", selector)
}

// Highlight outlines matched elements and marks them with data-afc-highlight.
func (s *Session) Highlight(ctx context.Context, selector, color string, width int) error {
	if color == "" {
		color = "rgba(255,0,0,0.9)"
	}
	if width <= 0 {
		width = 2
	}
	c, _ := json.Marshal(fmt.Sprintf("%dpx solid %s", width, color))
	js := fmt.Sprintf(`%s.forEach(el => {
		el.style.setProperty('outline', %s, 'important');
		el.setAttribute('data-afc-highlight', '1');
	})`, jsFindAll(selector), c)
	return errors.Wrap(s.Run(ctx, chromedp.Evaluate(js, nil)), "highlight failed")
}

// ClearHighlights removes outlines added by Highlight.
func (s *Session) ClearHighlights(ctx context.Context) error {
	js := `document.querySelectorAll('[data-afc-highlight]').forEach(el => {
		el.style.removeProperty('outline');
		el.removeAttribute('data-afc-highlight');
	})`
	return errors.Wrap(s.Run(ctx, chromedp.Evaluate(js, nil)), "clear highlights failed")
}

// EnableClickFlash installs a capture-phase listener that briefly tints
// clicked elements.
func (s *Session) EnableClickFlash(ctx context.Context, color string, duration time.Duration) error {
	if color == "" {
		color = "rgba(255,215,0,0.5)"
	}
	if duration <= 0 {
		duration = time.Second
	}
	c, _ := json.Marshal(color)
	js := fmt.Sprintf(`(() => {
		if (window.__afcClickFlashInstalled) return;
		window.addEventListener('click', e => {
			const el = e.target;
			if (!(el instanceof Element)) return;
			const prev = el.style.backgroundColor;
			el.style.setProperty('transition', 'background-color 120ms ease');
			el.style.backgroundColor = %s;
			setTimeout(() => { el.style.backgroundColor = prev || ''; }, %d);
		}, true);
		window.__afcClickFlashInstalled = true;
	})()`, c, duration.Milliseconds())
	return errors.Wrap(s.Run(ctx, chromedp.Evaluate(js, nil)), "enable click flash failed")
}

// Cookies returns the cookies visible to the current page.
func (s *Session) Cookies(ctx context.Context) ([]skill.Cookie, error) {
	var cookies []*network.Cookie
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cookies")
	}
	out := make([]skill.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, skill.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out, nil
}

// SetCookies seeds sanitized cookies into the browser.
func (s *Session) SetCookies(ctx context.Context, cookies []skill.Cookie) error {
	clean := SanitizeCookies(cookies)
	if len(clean) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(clean))
	for _, c := range clean {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      c.URL,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			t := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &t
		}
		params = append(params, p)
	}
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	return errors.Wrap(err, "failed to set cookies")
}

// Navigate loads url and waits for the body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.Run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body"))
	if err != nil {
		logger.G(ctx).WithField("url", url).WithError(err).Info("navigation failed")
		return errors.Wrapf(err, "navigation failed: %s", url)
	}
	return nil
}
