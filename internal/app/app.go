package app

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"

	"horoscopebot/internal/compose"
	"horoscopebot/internal/config"
	"horoscopebot/internal/delivery"
	"horoscopebot/internal/observability/metrics"
	"horoscopebot/internal/runtime/supervisor"
	"horoscopebot/internal/session"
	"horoscopebot/internal/storage"
	"horoscopebot/internal/task/scheduler"
	logx "horoscopebot/pkg/logx"
)

const (
	jobDaily   = "horoscope.daily"
	jobWeekly  = "horoscope.weekly"
	jobStartup = "horoscope.startup"
	jobSendNow = "horoscope.send_now"
)

// Options are process flags that are not part of the config file.
type Options struct {
	// SendNow triggers a daily+weekly test run shortly after start.
	SendNow bool
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	registry *prometheus.Registry
	metrics  metrics.Recorder

	sess  *session.Session
	sched *scheduler.Service
	orch  *delivery.Orchestrator

	sdNotify    sdNotifyFunc
	startupSent atomic.Bool
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.LogxConfig())
	log = log.With(logx.String("comp", "app"))

	registry := prometheus.NewRegistry()
	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewCollector(registry)
	}

	store, err := openRunLog(cfg, log)
	if err != nil {
		return nil, err
	}

	ch, err := buildChannel(cfg, log)
	if err != nil {
		_ = closeStore(store)
		return nil, err
	}
	sess := session.New(ch,
		session.WithLogger(log.With(logx.String("comp", "session"))),
		session.WithRateLimit(cfg.Channel.RatePerSec),
	)

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log.With(logx.String("comp", "scheduler")))
	loc := sched.Location()

	fetcher := BuildFetcher(cfg, log.With(logx.String("comp", "content")), rec)
	orch := delivery.New(mapDeliveryConfig(cfg), sess, fetcher,
		delivery.WithComposer(compose.New(compose.WithLocation(loc))),
		delivery.WithStore(store),
		delivery.WithLogger(log.With(logx.String("comp", "delivery"))),
		delivery.WithMetrics(rec),
	)

	a := &App{
		opts:     opts,
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		store:    store,
		registry: registry,
		metrics:  rec,
		sess:     sess,
		sched:    sched,
		orch:     orch,
		sdNotify: daemon.SdNotify,
	}
	sess.OnReady(a.onReady)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.log.Info("starting",
		logx.String("channel", a.cfg.Channel.Driver),
		logx.String("content", a.cfg.Content.Driver),
		logx.String("subjects", strings.Join(a.cfg.Content.Subjects, ",")),
		logx.String("send_time", a.cfg.Schedule.SendTime),
		logx.Bool("weekly", a.cfg.Schedule.WeeklyEnabled),
	)

	a.sched.Start(a.sup.Context())

	if a.cfg.Metrics.Enabled {
		srv := metrics.NewServer(a.cfg.Metrics.Addr, a.registry, a.log.With(logx.String("comp", "metrics")))
		a.sup.Go("metrics.serve", srv.Serve)
	}

	if err := a.sess.Initialize(a.sup.Context()); err != nil {
		return errors.Wrap(err, "initialize session")
	}

	if a.opts.SendNow {
		delay := config.MustDuration(a.cfg.Schedule.SendNowDelay, config.DefaultSendNowDelay)
		a.log.Info("test run requested via flag", logx.Duration("in", delay))
		if _, err := a.sched.AddOnce(jobSendNow, time.Now().Add(delay), a.job(a.orch.RunTest)); err != nil {
			return err
		}
	}

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	a.notifySystemd(sdReady)
	return nil
}

// onReady arms the triggers. Registration is upsert-by-name, so a reconnect
// re-arms without duplicating jobs.
func (a *App) onReady(context.Context) {
	sc := a.cfg.Schedule
	if _, err := a.sched.AddDaily(jobDaily, sc.SendTime, a.job(a.orch.RunDaily)); err != nil {
		a.log.Error("daily schedule not armed", logx.Err(err))
	}
	if sc.WeeklyEnabled {
		day, err := config.ParseWeekday(sc.WeeklyDay)
		if err == nil {
			_, err = a.sched.AddWeekly(jobWeekly, day, sc.WeeklyTime, a.job(a.orch.RunWeekly))
		}
		if err != nil {
			a.log.Error("weekly schedule not armed", logx.Err(err))
		}
	}

	if sc.SendOnStartup && a.startupSent.CompareAndSwap(false, true) {
		delay := config.MustDuration(sc.StartupDelay, config.DefaultStartupDelay)
		a.log.Info("startup test run scheduled", logx.Duration("in", delay))
		if _, err := a.sched.AddOnce(jobStartup, time.Now().Add(delay), a.job(a.orch.RunTest)); err != nil {
			a.log.Error("startup run not scheduled", logx.Err(err))
		}
	}

	a.reportTriggers()
}

// reportTriggers logs the armed triggers and publishes the next daily run as
// the service status.
func (a *App) reportTriggers() {
	snap := a.sched.Snapshot()
	status := "STATUS=session ready"
	for _, it := range snap.Schedules {
		a.log.Info("trigger armed",
			logx.String("name", it.Name),
			logx.String("spec", it.Spec),
			logx.Time("next", it.Next),
			logx.String("tz", snap.Timezone),
		)
		if it.Name == jobDaily && !it.Next.IsZero() {
			status += "; next delivery " + it.Next.Format("2006-01-02 15:04 MST")
		}
	}
	a.notifySystemd(status)
}

// job adapts an orchestrator run to a scheduler job. Runs log their own
// failures, so errors are not propagated to the job supervisor.
func (a *App) job(run func(ctx context.Context) error) scheduler.Job {
	return func(ctx context.Context) error {
		_ = run(ctx)
		return nil
	}
}

func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}

			a.logs.Apply(newCfg.Logging.LogxConfig())

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			if config.RequiresRestart(sections) {
				a.log.Warn("config changed; restart required for non-logging sections to take effect", fields...)
				continue
			}
			a.log.Info("config reloaded", fields...)
		}
	}
}

// Stop tears the process down: session, scheduler, supervised goroutines, then storage.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return closeStore(a.store)
	}
	a.log.Info("stopping")
	a.notifySystemd(sdStopping)

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- errors.Newf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("session", 3*time.Second, a.sess.Shutdown)
	step("scheduler", 2*time.Second, a.sched.Stop)
	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return closeStore(a.store) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Run starts the app and blocks until ctx is done or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx)
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx)
	return a.Err()
}

// openRunLog opens the run log when delivery.log_messages is set. A config
// error is fatal; a store that fails to open only disables run logging.
func openRunLog(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled || !cfg.Delivery.LogMessages {
		return nil, nil
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		log.Warn("run log unavailable; messages will not be logged",
			logx.String("driver", sc.Driver), logx.String("path", sc.Path), logx.Err(err))
		return nil, nil
	}
	log.Info("run log enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	return st, nil
}

func closeStore(st storage.Store) error {
	if st == nil {
		return nil
	}
	return st.Close()
}
