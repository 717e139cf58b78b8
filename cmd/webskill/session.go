package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/detect"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

// SessionConfig holds the browser flags shared by commands that drive a page.
type SessionConfig struct {
	StartURL    string
	CookiesFile string
	SlowMo      time.Duration
	Highlight   bool
	FlashClicks bool
}

const (
	flashColor    = "rgba(255,215,0,0.5)"
	flashDuration = time.Second
)

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Start URL to open before running (defaults to the skill's page)")
	cmd.Flags().String("cookies", "", "JSON file with cookies to load into the browser")
	cmd.Flags().Duration("slow-mo", 0, "Pause after every browser action")
	cmd.Flags().Bool("highlight", false, "Highlight the resolved element before acting")
	cmd.Flags().Bool("flash-clicks", false, "Flash clicked elements")
}

func getSessionConfigFromFlags(cmd *cobra.Command) *SessionConfig {
	config := &SessionConfig{}
	config.StartURL, _ = cmd.Flags().GetString("url")
	config.CookiesFile, _ = cmd.Flags().GetString("cookies")
	config.SlowMo, _ = cmd.Flags().GetDuration("slow-mo")
	config.Highlight, _ = cmd.Flags().GetBool("highlight")
	config.FlashClicks, _ = cmd.Flags().GetBool("flash-clicks")
	if config.SlowMo == 0 {
		config.SlowMo = time.Duration(viper.GetInt("browser.slow_mo_ms")) * time.Millisecond
	}
	return config
}

// browserOptions reads the browser section of the configuration.
func browserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = viper.GetBool("browser.headless")
	if ms := viper.GetInt("browser.timeout_ms"); ms > 0 {
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}
	opts.SlowMo = time.Duration(viper.GetInt("browser.slow_mo_ms")) * time.Millisecond
	if vp := viper.GetString("detect.viewport"); vp != "" {
		opts.Viewport = detect.ParseViewport(vp)
	}
	return opts
}

// startSession launches a browser, loads cookies and opens startURL. The
// caller stops the returned session.
func startSession(ctx context.Context, startURL string, config *SessionConfig) (*browser.Session, error) {
	opts := browserOptions()
	if config.SlowMo > 0 {
		opts.SlowMo = config.SlowMo
	}
	session := browser.NewSession(opts)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}

	if config.CookiesFile != "" {
		var cookies []skill.Cookie
		if err := rundir.ReadJSON(config.CookiesFile, &cookies); err != nil {
			session.Stop()
			return nil, errors.Wrap(err, "failed to read cookies file")
		}
		if err := session.SetCookies(ctx, cookies); err != nil {
			session.Stop()
			return nil, err
		}
	}
	if config.FlashClicks {
		if err := session.EnableClickFlash(ctx, flashColor, flashDuration); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to enable click flash")
		}
	}

	if startURL != "" {
		if err := session.Navigate(ctx, startURL); err != nil {
			session.Stop()
			return nil, errors.Wrapf(err, "failed to open %s", startURL)
		}
	}
	return session, nil
}
