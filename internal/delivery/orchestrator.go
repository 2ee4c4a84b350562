// Package delivery runs one fetch, compose and send cycle per trigger.
package delivery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"horoscopebot/internal/compose"
	"horoscopebot/internal/content"
	"horoscopebot/internal/observability/metrics"
	"horoscopebot/internal/session"
	"horoscopebot/internal/storage"
	logx "horoscopebot/pkg/logx"
)

// ErrRunInProgress is returned when a trigger arrives while another run is active.
// The trigger is dropped, not queued.
var ErrRunInProgress = errors.New("delivery: run already in progress")

// Sender is the part of session.Session the orchestrator needs.
type Sender interface {
	State() session.State
	Send(ctx context.Context, to, text string) error
}

type Fetcher interface {
	Fetch(ctx context.Context, subject content.Subject) content.Result
}

type Composer interface {
	Compose(kind compose.Kind, results []content.Result, now time.Time) string
}

type Config struct {
	Recipient    string
	Subjects     []content.Subject
	SubjectDelay time.Duration // pause between successive fetches
	LogMessages  bool
}

type Orchestrator struct {
	cfg      Config
	sender   Sender
	fetcher  Fetcher
	composer Composer
	store    storage.Store
	log      logx.Logger
	metrics  metrics.Recorder

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running atomic.Bool
}

type Option func(*Orchestrator)

func WithComposer(c Composer) Option { return func(o *Orchestrator) { o.composer = c } }

// WithStore sets the run log. A nil store disables run logging.
func WithStore(st storage.Store) Option { return func(o *Orchestrator) { o.store = st } }

func WithLogger(log logx.Logger) Option { return func(o *Orchestrator) { o.log = log } }

func WithMetrics(m metrics.Recorder) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(cfg Config, sender Sender, fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		sender:   sender,
		fetcher:  fetcher,
		composer: compose.New(),
		log:      logx.Nop(),
		metrics:  metrics.Nop{},
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool { return o.running.Load() }

func (o *Orchestrator) RunDaily(ctx context.Context) error { return o.run(ctx, compose.Daily) }

func (o *Orchestrator) RunWeekly(ctx context.Context) error { return o.run(ctx, compose.Weekly) }

// RunTest sends the daily and then the weekly message.
func (o *Orchestrator) RunTest(ctx context.Context) error {
	o.log.Info("test run requested")
	var errs error
	if err := o.RunDaily(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "daily"))
		if errors.Is(err, session.ErrNotReady) {
			return errs
		}
	}
	if err := o.RunWeekly(ctx); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "weekly"))
	}
	return errs
}

func (o *Orchestrator) run(ctx context.Context, kind compose.Kind) error {
	log := o.log.With(logx.String("kind", string(kind)))

	if !o.running.CompareAndSwap(false, true) {
		log.Warn("run skipped; another run is in progress")
		o.metrics.RecordRun(string(kind), "skipped")
		return ErrRunInProgress
	}
	defer o.running.Store(false)

	if st := o.sender.State(); st.Phase != session.Ready {
		log.Warn("run skipped; session not ready", logx.String("state", st.String()))
		o.metrics.RecordRun(string(kind), "not_ready")
		return session.ErrNotReady
	}

	start := time.Now()
	log.Info("run started", logx.Int("subjects", len(o.cfg.Subjects)))

	results, err := o.fetchAll(ctx)
	if err != nil {
		log.Warn("run aborted", logx.Err(err))
		o.metrics.RecordRun(string(kind), "aborted")
		return err
	}

	now := o.now()
	msg := o.composer.Compose(kind, results, now)

	if err := o.sender.Send(ctx, o.cfg.Recipient, msg); err != nil {
		log.Error("send failed", logx.Err(err))
		o.metrics.RecordSend(string(kind), "error")
		o.sendApology(ctx, log)
		o.metrics.RecordRun(string(kind), "send_failed")
		return errors.Wrap(err, "send")
	}
	o.metrics.RecordSend(string(kind), "ok")
	log.Info("message sent",
		logx.Int("bytes", len(msg)),
		logx.Int("fallbacks", countFallbacks(results)),
		logx.Duration("took", time.Since(start)),
	)

	if o.cfg.LogMessages && o.store != nil {
		if err := o.store.AppendRun(ctx, storage.Entry{At: now, Kind: string(kind), Body: msg}); err != nil {
			log.Warn("run log append failed", logx.Err(err))
		}
	}
	o.metrics.RecordRun(string(kind), "ok")
	return nil
}

// fetchAll fetches subjects in order, pausing between fetches.
// It only fails when ctx ends during a pause.
func (o *Orchestrator) fetchAll(ctx context.Context) ([]content.Result, error) {
	results := make([]content.Result, 0, len(o.cfg.Subjects))
	for i, subject := range o.cfg.Subjects {
		if i > 0 && o.cfg.SubjectDelay > 0 {
			if err := o.sleep(ctx, o.cfg.SubjectDelay); err != nil {
				return nil, err
			}
		}
		results = append(results, o.fetcher.Fetch(ctx, subject))
	}
	return results, nil
}

func (o *Orchestrator) sendApology(ctx context.Context, log logx.Logger) {
	if err := o.sender.Send(ctx, o.cfg.Recipient, compose.Apology); err != nil {
		log.Error("apology send failed", logx.Err(err))
		o.metrics.RecordSend("apology", "error")
		return
	}
	log.Info("apology sent")
	o.metrics.RecordSend("apology", "ok")
}

func countFallbacks(results []content.Result) int {
	n := 0
	for _, r := range results {
		if r.Source == content.SourceFallback {
			n++
		}
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
