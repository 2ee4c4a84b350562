package content

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
)

// chromeFlags keep headless chrome small enough for containers.
var chromeFlags = []string{
	"disable-setuid-sandbox",
	"disable-dev-shm-usage",
	"disable-accelerated-2d-canvas",
	"no-first-run",
	"no-zygote",
	"disable-crash-reporter",
	"disable-crashpad",
	"disable-background-timer-throttling",
	"disable-backgrounding-occluded-windows",
	"disable-renderer-backgrounding",
	"disable-ipc-flooding-protection",
	"single-process",
}

// BrowserOptions configures BrowserLoader.
type BrowserOptions struct {
	ExecPath          string
	UserAgent         string
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
}

// BrowserLoader renders the page in an isolated headless chrome per call.
type BrowserLoader struct {
	opts BrowserOptions
}

func NewBrowserLoader(opts BrowserOptions) *BrowserLoader {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 10 * time.Second
	}
	return &BrowserLoader{opts: opts}
}

func (l *BrowserLoader) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-features", "TranslateUI"),
	)
	for _, f := range chromeFlags {
		opts = append(opts, chromedp.Flag(f, true))
	}
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if p := strings.TrimSpace(l.opts.ExecPath); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	return opts
}

func (l *BrowserLoader) Load(ctx context.Context, pageURL, waitSelector string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// Start the browser on the tab context itself; cancelling the context of the
	// first Run would tear the browser down.
	if err := chromedp.Run(tabCtx); err != nil {
		return "", errors.Wrap(err, "start browser")
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, l.opts.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(pageURL))
	cancelNav()
	if err != nil {
		return "", errors.Wrapf(err, "navigate %s", pageURL)
	}

	if waitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, l.opts.ElementTimeout)
		err = chromedp.Run(waitCtx, chromedp.WaitReady(waitSelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", errors.Wrapf(errors.CombineErrors(ErrElementMissing, err), "selector %q", waitSelector)
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", errors.Wrap(err, "read document")
	}
	return html, nil
}
