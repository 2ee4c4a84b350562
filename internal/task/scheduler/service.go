package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"horoscopebot/internal/runtime/supervisor"
	logx "horoscopebot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		once:   map[string]*onceDef{},
	}
	s.loc = s.loadLocationLocked()
	return s
}

// Location is the timezone triggers are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Start starts cron triggering and arms pending one-time triggers.
// Jobs run under a supervisor derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Warn("schedule not registered", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.armOnceTimers()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering, cancels running jobs and waits for them until ctx expires.
// Registered definitions remain so a later Start resumes them.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	sup := s.sup
	s.c = nil
	s.sup = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	s.tmu.Lock()
	for _, d := range s.once {
		if d.timer != nil {
			_ = d.timer.Stop()
			d.timer = nil
		}
	}
	s.tmu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}

	var err error
	if sup != nil {
		sup.Cancel()
		if werr := sup.Wait(ctx); werr != nil && ctx.Err() != nil {
			err = werr
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

// dispatch runs job on its own goroutine. Fired triggers never block the cron loop.
func (s *Service) dispatch(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		s.log.Debug("trigger ignored; service stopped", logx.String("name", name))
		return
	}
	s.log.Info("trigger fired", logx.String("name", name))
	s.sup.Go("job."+name, job)
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
