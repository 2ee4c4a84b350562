package content

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"horoscopebot/internal/observability/metrics"
	logx "horoscopebot/pkg/logx"
)

// Fetcher builds per-subject URLs and extracts their content via a Loader.
type Fetcher struct {
	loader  Loader
	baseURL string
	log     logx.Logger
	metrics metrics.Recorder
}

type Option func(*Fetcher)

func WithLogger(log logx.Logger) Option { return func(f *Fetcher) { f.log = log } }

func WithMetrics(m metrics.Recorder) Option { return func(f *Fetcher) { f.metrics = m } }

func NewFetcher(loader Loader, baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		loader:  loader,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logx.Nop(),
		metrics: metrics.Nop{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// URL returns the page for subject.
func (f *Fetcher) URL(subject Subject) string {
	return f.baseURL + "/" + string(subject)
}

// Fetch never fails: on any error the subject's Fallback is returned.
func (f *Fetcher) Fetch(ctx context.Context, subject Subject) Result {
	start := time.Now()
	res, err := f.FetchLive(ctx, subject)
	if err != nil {
		f.log.Warn("fetch failed; using fallback",
			logx.String("subject", string(subject)),
			logx.String("url", f.URL(subject)),
			logx.Err(err),
		)
		res = Fallback(subject)
	} else {
		f.log.Info("content extracted",
			logx.String("subject", string(subject)),
			logx.Int("daily_len", len(res.Daily)),
			logx.Int("weekly_len", len(res.Weekly)),
		)
	}
	f.metrics.RecordFetch(string(subject), string(res.Source), time.Since(start))
	return res
}

// FetchLive loads and extracts subject without falling back.
// A page without daily text is an error.
func (f *Fetcher) FetchLive(ctx context.Context, subject Subject) (Result, error) {
	if f.loader == nil {
		return Result{}, errors.New("content: no loader configured")
	}
	url := f.URL(subject)
	f.log.Debug("loading page", logx.String("subject", string(subject)), logx.String("url", url))

	html, err := f.loader.Load(ctx, url, DailySelector)
	if err != nil {
		return Result{}, err
	}
	res, err := Extract(subject, html)
	if err != nil {
		return Result{}, err
	}
	if res.Daily == "" {
		return Result{}, errors.Wrapf(ErrElementMissing, "selector %q", DailySelector)
	}
	return res, nil
}
