package detect

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/telemetry"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// SpecVersion is written to meta.json as detect_spec_version.
const SpecVersion = "v0.1"

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const (
	summaryLimit   = 20000
	snippetMaxLen  = 4000
	loadWaitScript = `new Promise(r => { if (document.readyState === 'complete') r(true); else window.addEventListener('load', () => r(true), {once: true}); })`
)

//go:embed domsummary.js
var domSummaryJS string

// CollectOptions configure Collect.
type CollectOptions struct {
	OutRoot         string
	Viewport        snapshot.Viewport
	Timeout         time.Duration
	NavRetries      int
	AutoscrollSteps int
	AutoscrollDelay time.Duration
	Headless        bool
	UserAgent       string
	Filter          *DomainFilter
}

// DefaultCollectOptions mirrors the configuration defaults.
func DefaultCollectOptions() CollectOptions {
	return CollectOptions{
		OutRoot:         filepath.Join("workspace", "data"),
		Viewport:        snapshot.DefaultViewport,
		Timeout:         45 * time.Second,
		NavRetries:      1,
		AutoscrollSteps: 50,
		AutoscrollDelay: 200 * time.Millisecond,
		Headless:        true,
	}
}

// CollectResult describes a finished run.
type CollectResult struct {
	OutDir string
	Meta   *snapshot.Meta
}

type collectRun struct {
	dir      rundir.Dir
	opts     CollectOptions
	session  *browser.Session
	meta     *snapshot.Meta
	counts   map[string]int
	timings  map[string]int64
	started  time.Time
	elements []snapshot.Element
	scrolled []snapshot.Element
}

func (r *collectRun) warn(ctx context.Context, code, stage string, err error) {
	logger.G(ctx).WithError(err).WithField("stage", stage).Warn("collection step failed")
	telemetry.AddEvent(ctx, "detect.warning", attribute.String("code", code), attribute.String("stage", stage))
	r.meta.Warnings = append(r.meta.Warnings, snapshot.Warning{Code: code, Stage: stage, Error: err.Error()})
}

// mark records a stage timing and reports it as an event of the current span.
func (r *collectRun) mark(ctx context.Context, name string, since time.Time) {
	ms := time.Since(since).Milliseconds()
	r.timings[name] = ms
	telemetry.AddEvent(ctx, "detect.stage", attribute.String("stage", name), attribute.Int64("duration_ms", ms))
}

// Collect opens rawURL in a fresh browser and writes a run directory under
// opts.OutRoot. Fatal failures return a *CollectError; whenever a run
// directory was created its meta.json is written, with status "failed" on
// error.
func Collect(ctx context.Context, rawURL string, opts CollectOptions) (*CollectResult, error) {
	var res *CollectResult
	err := telemetry.WithSpan(ctx, "detect.collect", func(ctx context.Context) error {
		var err error
		res, err = collect(ctx, rawURL, opts)
		return err
	}, attribute.String("url", rawURL))
	return res, err
}

func collect(ctx context.Context, rawURL string, opts CollectOptions) (*CollectResult, error) {
	if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
		opts.Viewport = snapshot.DefaultViewport
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}

	now := time.Now()
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	domainKey := SanitizeDomain(host)
	base := filepath.Join(opts.OutRoot, domainKey)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, newCollectError(CodeUnexpectedError, StageInit, err)
	}
	outDir, err := EnsureUniqueDir(filepath.Join(base, Timestamp(now)))
	if err != nil {
		return nil, newCollectError(CodeUnexpectedError, StageInit, err)
	}

	r := &collectRun{
		dir:     rundir.Dir(outDir),
		opts:    opts,
		counts:  map[string]int{},
		timings: map[string]int64{},
		started: now,
		meta: &snapshot.Meta{
			Status:            StatusOK,
			URL:               rawURL,
			Domain:            host,
			DomainSanitized:   domainKey,
			Viewport:          opts.Viewport,
			Timestamp:         Timestamp(now),
			DetectSpecVersion: SpecVersion,
		},
	}
	ctx = logger.WithRun(ctx, host, outDir)

	if cerr := r.execute(ctx, rawURL); cerr != nil {
		cerr.OutDir = outDir
		r.meta.Status = StatusFailed
		r.meta.Error = &snapshot.RunError{Code: cerr.Code, Stage: cerr.Stage, Message: cerr.Message}
		r.finish(ctx)
		return &CollectResult{OutDir: outDir, Meta: r.meta}, cerr
	}
	r.finish(ctx)
	telemetry.SetAttributes(ctx, attribute.String("run_dir", outDir), attribute.Int("controls", r.counts["controls"]))
	logger.G(ctx).WithField("controls", r.counts["controls"]).Info("collection finished")
	return &CollectResult{OutDir: outDir, Meta: r.meta}, nil
}

func (r *collectRun) finish(ctx context.Context) {
	r.mark(ctx, "total_ms", r.started)
	r.meta.Counts = r.counts
	r.meta.Timings = r.timings
	if err := rundir.WriteJSON(r.dir.Path(rundir.MetaFile), r.meta); err != nil {
		logger.G(ctx).WithError(err).Error("failed to write meta.json")
	}
}

func (r *collectRun) execute(ctx context.Context, rawURL string) *CollectError {
	if _, err := ValidateURL(rawURL); err != nil {
		var ce *CollectError
		if errors.As(err, &ce) {
			return ce
		}
		return newCollectError(CodeInvalidURL, StageInit, err)
	}
	if r.opts.Filter != nil {
		ok, err := r.opts.Filter.IsAllowed(rawURL)
		if err != nil || !ok {
			if err == nil {
				err = errors.Errorf("domain %s is not in the allowed domains list", r.meta.Domain)
			}
			return newCollectError(CodeDomainBlocked, StageInit, err)
		}
	}

	r.session = browser.NewSession(browser.Options{
		Headless:  r.opts.Headless,
		Viewport:  r.opts.Viewport,
		Timeout:   r.opts.Timeout,
		UserAgent: r.opts.UserAgent,
	})
	launched := time.Now()
	if err := r.session.Start(ctx); err != nil {
		return newCollectError(CodeLaunchError, StageLaunch, err)
	}
	defer r.session.Stop()
	r.mark(ctx, "launch_ms", launched)

	if cerr := r.navigate(ctx, rawURL); cerr != nil {
		return cerr
	}

	if err := r.capture(ctx); err != nil {
		return newCollectError(CodeUnexpectedError, StageCollect, err)
	}
	return nil
}

func (r *collectRun) navigate(ctx context.Context, rawURL string) *CollectError {
	started := time.Now()
	err := retry.Do(
		func() error {
			return r.session.RunWithTimeout(ctx, r.opts.Timeout, chromedp.Navigate(rawURL))
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(0, r.opts.NavRetries)+1)),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("navigation failed, retrying")
		}),
	)
	r.mark(ctx, "navigate_ms", started)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newCollectError(CodeNavTimeout, StageNavigate, err)
	}
	return newCollectError(CodeNavError, StageNavigate, err)
}

func (r *collectRun) eval(ctx context.Context, expr string, out any) error {
	return r.session.Run(ctx, chromedp.Evaluate(expr, out))
}

func (r *collectRun) screenshot(ctx context.Context, name string, full bool) error {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if full {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := r.session.Run(ctx, action); err != nil {
		return err
	}
	return os.WriteFile(r.dir.Path(name), buf, 0o644)
}

// capture records every artifact after navigation. Only failures to write
// the DOM summary are fatal; everything else becomes a warning.
func (r *collectRun) capture(ctx context.Context) error {
	if err := r.screenshot(ctx, rundir.ScreenshotInitial, true); err != nil {
		r.warn(ctx, "SCREENSHOT_INITIAL_ERROR", "screenshot_initial", err)
	}

	var injected bool
	if err := r.eval(ctx, domSummaryJS, &injected); err != nil {
		r.warn(ctx, "INJECT_JS_ERROR", "inject_js", err)
	}

	var html string
	if err := r.session.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		r.warn(ctx, "DOM_HTML_ERROR", "dom", err)
	}
	if err := os.WriteFile(r.dir.Path(rundir.DOMHTML), []byte(html), 0o644); err != nil {
		r.warn(ctx, "DOM_HTML_WRITE_ERROR", "dom", err)
	}

	r.captureAX(ctx)

	elements, err := r.summary(ctx)
	if err != nil {
		r.warn(ctx, "DOM_SUMMARY_ERROR", "dom_summary", err)
	}
	r.elements = elements
	if err := rundir.WriteJSON(r.dir.Path(rundir.DomSummaryFile), r.domSummary(elements)); err != nil {
		return err
	}
	r.counts["elements"] = len(elements)

	var loaded bool
	if err := r.session.Run(ctx, chromedp.Evaluate(loadWaitScript, &loaded, awaitPromise)); err != nil {
		r.warn(ctx, "LOAD_STATE_ERROR", "load_state", err)
	}

	info := r.autoscroll(ctx)

	if err := r.screenshot(ctx, rundir.ScreenshotTail, false); err != nil {
		r.warn(ctx, "SCREENSHOT_TAIL_ERROR", "screenshot_tail", err)
	}
	if err := r.screenshot(ctx, rundir.ScreenshotLoaded, true); err != nil {
		r.warn(ctx, "SCREENSHOT_LOADED_ERROR", "screenshot_loaded", err)
	}

	timing := map[string]any{}
	if err := r.eval(ctx, "window.__webskill.navTiming()", &timing); err != nil {
		r.warn(ctx, "TIMINGS_ERROR", "timings", err)
	}
	if err := rundir.WriteJSON(r.dir.Path(rundir.TimingsFile), timing); err != nil {
		r.warn(ctx, "TIMINGS_WRITE_ERROR", "timings", err)
	}

	// Summaries use viewport coordinates, so measure from the top again.
	if err := r.eval(ctx, "window.scrollTo(0, 0), true", new(bool)); err != nil {
		r.warn(ctx, "SCROLL_RESET_ERROR", "autoscroll", err)
	}
	scrolled, err := r.summary(ctx)
	if err != nil {
		r.warn(ctx, "DOM_SUMMARY_SCROLLED_ERROR", "dom_summary_scrolled", err)
	}
	r.scrolled = scrolled
	if err := rundir.WriteJSON(r.dir.Path(rundir.DomSummaryScrolled), r.domSummary(scrolled)); err != nil {
		r.warn(ctx, "DOM_SUMMARY_SCROLLED_WRITE_ERROR", "dom_summary_scrolled", err)
	}
	diff := ComputeScrollDiff(elements, scrolled)
	if err := rundir.WriteJSON(r.dir.Path(rundir.ScrolledNewFile), diff); err != nil {
		r.warn(ctx, "DOM_SCROLLED_NEW_ERROR", "dom_scrolled_new", err)
	}
	info.NewCount = diff.NewCount
	r.counts["scrolled"] = len(scrolled)
	r.counts["new"] = diff.NewCount
	if err := rundir.WriteJSON(r.dir.Path(rundir.ScrollInfoFile), info); err != nil {
		r.warn(ctx, "SCROLL_INFO_ERROR", "autoscroll", err)
	}

	tree := BuildControlsTree(rundir.MergeElements(scrolled, elements))
	vp := r.opts.Viewport
	tree.Meta.Viewport = &vp
	if err := rundir.WriteJSON(r.dir.Path(rundir.ControlsTreeFile), tree); err != nil {
		r.warn(ctx, "CONTROLS_TREE_ERROR", "controls_tree", err)
	}
	r.counts["controls"] = len(tree.Nodes)

	r.captureSnippets(ctx, tree)

	if err := r.session.Run(ctx, chromedp.Title(&r.meta.Title), chromedp.Location(&r.meta.FinalURL)); err != nil {
		r.warn(ctx, "PAGE_INFO_ERROR", "meta", err)
	}
	return nil
}

var awaitPromise chromedp.EvaluateOption = func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (r *collectRun) domSummary(elements []snapshot.Element) snapshot.DomSummary {
	if elements == nil {
		elements = []snapshot.Element{}
	}
	return snapshot.DomSummary{Count: len(elements), Viewport: r.opts.Viewport, Elements: elements}
}

func (r *collectRun) summary(ctx context.Context) ([]snapshot.Element, error) {
	var out []snapshot.Element
	expr := fmt.Sprintf("window.__webskill.summary(%d, {})", summaryLimit)
	if err := r.eval(ctx, expr, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *collectRun) captureAX(ctx context.Context) {
	var nodes []*accessibility.Node
	err := r.session.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_ = accessibility.Enable().Do(ctx)
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(ctx)
		return err
	}))
	if err != nil {
		r.warn(ctx, "AX_SNAPSHOT_ERROR", "ax", err)
	}
	if err := rundir.WriteJSON(r.dir.Path(rundir.AXFile), map[string]any{"nodes": nodes}); err != nil {
		r.warn(ctx, "AX_WRITE_ERROR", "ax", err)
	}
}

func (r *collectRun) autoscroll(ctx context.Context) ScrollInfo {
	info := ScrollInfo{MaxSteps: r.opts.AutoscrollSteps, DelayMs: int(r.opts.AutoscrollDelay.Milliseconds())}
	var metrics struct {
		ScrollHeight int `json:"scrollHeight"`
	}
	if err := r.eval(ctx, "window.__webskill.docMetrics()", &metrics); err == nil {
		info.ScrollHeightStart = metrics.ScrollHeight
	}

	started := time.Now()
	for info.Steps < r.opts.AutoscrollSteps {
		var pos ScrollPosition
		if err := r.eval(ctx, "window.__webskill.scrollStep()", &pos); err != nil {
			r.warn(ctx, "AUTOSCROLL_ERROR", "autoscroll", err)
			break
		}
		info.Steps++
		select {
		case <-time.After(r.opts.AutoscrollDelay):
		case <-ctx.Done():
			return info
		}
		if pos.AtBottom() {
			info.ReachedBottom = true
			break
		}
	}
	r.mark(ctx, "autoscroll_ms", started)
	if !info.ReachedBottom && r.opts.AutoscrollSteps > 0 {
		r.meta.Warnings = append(r.meta.Warnings, snapshot.Warning{
			Code: "AUTOSCROLL_CAP_REACHED", Stage: "autoscroll", Error: "max steps " + strconv.Itoa(r.opts.AutoscrollSteps),
		})
	}
	if err := r.eval(ctx, "window.__webskill.docMetrics()", &metrics); err == nil {
		info.ScrollHeightEnd = metrics.ScrollHeight
	}
	return info
}

// captureSnippets stores the outerHTML of every tree node under snippets/.
func (r *collectRun) captureSnippets(ctx context.Context, tree *snapshot.ControlsTree) {
	indices := make([]int, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		if idx, ok := ParseNodeID(n.ID); ok {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return
	}
	arg, _ := json.Marshal(indices)
	html := map[string]string{}
	if err := r.eval(ctx, fmt.Sprintf("window.__webskill.snippets(%s, %d)", arg, snippetMaxLen), &html); err != nil {
		r.warn(ctx, "SNIPPETS_ERROR", "snippets", err)
		return
	}
	if err := WriteSnippets(r.dir, html); err != nil {
		r.warn(ctx, "SNIPPETS_WRITE_ERROR", "snippets", err)
		return
	}
	r.counts["snippets"] = len(html)
}
