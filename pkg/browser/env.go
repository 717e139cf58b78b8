// Package browser provides the runtime environment skill programs operate
// on, backed by chromedp.
package browser

import (
	"context"
	"time"

	"github.com/jingkaihe/webskill/pkg/types/skill"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Wait states accepted by WaitForSelector.
const (
	StateVisible  = "visible"
	StateHidden   = "hidden"
	StateAttached = "attached"
)

// Env is the minimal page API exposed to skill programs. Selectors may be
// CSS or, when prefixed with "xpath=", XPath expressions.
type Env interface {
	CurrentURL(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	Visible(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// Type clears the field before typing text.
	Type(ctx context.Context, selector, text string) error
	Select(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error
	ViewportSize(ctx context.Context) (snapshot.Viewport, error)
	ScrollIntoView(ctx context.Context, selector string) error
	Highlight(ctx context.Context, selector, color string, width int) error
	ClearHighlights(ctx context.Context) error
	EnableClickFlash(ctx context.Context, color string, duration time.Duration) error
	Cookies(ctx context.Context) ([]skill.Cookie, error)
	SetCookies(ctx context.Context, cookies []skill.Cookie) error
	Navigate(ctx context.Context, url string) error
}
