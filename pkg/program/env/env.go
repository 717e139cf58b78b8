// Package env is the API surface available to interpreted skill programs,
// imported by them as "webskill/env".
package env

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// Env is the page a program operates on.
type Env = browser.Env

// Locators is the locator chain of the running skill.
type Locators = skill.Locators

// Options tune a program run.
type Options struct {
	Timeout time.Duration
	// Retries is how many extra passes Resolve makes over the chain.
	Retries   uint
	Highlight bool
}

// DefaultOptions match the runtime defaults.
func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second, Retries: browser.DefaultResolveOptions.Retries}
}

// Result is what a program reports back.
type Result struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	FinalURL string `json:"final_url,omitempty"`
}

// Resolve returns the first live query of the locator chain.
func Resolve(ctx context.Context, e Env, loc Locators, opts Options) (string, error) {
	ro := browser.DefaultResolveOptions
	ro.Retries = opts.Retries
	sel, err := browser.Resolve(ctx, e, loc, ro)
	if err != nil {
		return "", err
	}
	if opts.Highlight {
		_ = e.Highlight(ctx, sel, "#ff2d55", 3)
	}
	return sel, nil
}

// Fail returns a failed result.
func Fail(format string, a ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, a...)}
}

// Done returns a successful result carrying the page URL.
func Done(ctx context.Context, e Env, message string) Result {
	u, _ := e.CurrentURL(ctx)
	return Result{OK: true, Message: message, FinalURL: u}
}

// Arg returns args[key] as a string, or "".
func Arg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}
