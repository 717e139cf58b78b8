package browser

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// ErrNoLiveLocator is returned when no entry of a locator chain matches.
var ErrNoLiveLocator = errors.New("no locator in chain matched the page")

// ResolveOptions tune chain resolution.
type ResolveOptions struct {
	// Retries is how many extra passes over the chain are made.
	Retries uint
	Delay   time.Duration
}

// DefaultResolveOptions retries the whole chain twice.
var DefaultResolveOptions = ResolveOptions{Retries: 2, Delay: 300 * time.Millisecond}

// Resolve walks the locator chain and returns the first query present on
// the page, retrying the whole chain on a miss.
func Resolve(ctx context.Context, env Env, loc skill.Locators, opts ResolveOptions) (string, error) {
	chain := locator.Chain(loc)
	if len(chain) == 0 {
		return "", errors.New("empty locator chain")
	}

	var found string
	err := retry.Do(
		func() error {
			for _, entry := range chain {
				ok, err := env.Exists(ctx, entry.Query)
				if err != nil {
					logger.G(ctx).WithField("selector", entry.Query).WithError(err).Debug("locator probe failed")
					continue
				}
				if ok {
					found = entry.Query
					return nil
				}
			}
			return ErrNoLiveLocator
		},
		retry.Context(ctx),
		retry.Attempts(opts.Retries+1),
		retry.Delay(opts.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return found, nil
}
