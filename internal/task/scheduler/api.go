package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	logx "horoscopebot/pkg/logx"
)

// AddCron registers job under name with a cron spec, replacing any trigger with the same name.
func (s *Service) AddCron(name, spec string, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", errors.Wrapf(err, "invalid cron spec %q", spec)
	}

	s.removeOnce(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, job: job})
	d := &s.defs[len(s.defs)-1]
	if s.c == nil {
		s.log.Debug("schedule stored", logx.String("name", name), logx.String("spec", spec))
		return name, nil
	}
	if err := s.addCronLocked(d); err != nil {
		s.defs = s.defs[:len(s.defs)-1]
		return "", err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Info("schedule registered", fields...)
	return name, nil
}

// AddDaily fires job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, job Job) (string, error) {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), job)
}

// AddWeekly fires job at HH:MM on weekday in the scheduler timezone.
func (s *Service) AddWeekly(name string, weekday time.Weekday, atHHMM string, job Job) (string, error) {
	h, m, err := ParseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return "", errors.Newf("invalid weekday %d", weekday)
	}
	dow := int(weekday) // Sunday=0
	return s.AddCron(name, fmt.Sprintf("%d %d * * %d", m, h, dow), job)
}

// AddOnce fires job a single time at at. A past instant fires immediately once
// the service runs. Re-adding the same name replaces the pending trigger.
func (s *Service) AddOnce(name string, at time.Time, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	_ = s.removeScheduleLocked(name)
	running := s.c != nil
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.once[name]; ok && old.timer != nil {
		_ = old.timer.Stop()
	}
	s.onceVer++
	d := &onceDef{at: at, job: job, ver: s.onceVer}
	s.once[name] = d
	if running {
		s.armLocked(name, d)
	}
	s.log.Debug("one-time trigger registered", logx.String("name", name), logx.Time("at", at))
	return name, nil
}

// Remove unschedules every trigger with the given name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	removed = s.removeOnce(name) || removed

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them from cron if running.
// Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) removeOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[name]
	if !ok {
		return false
	}
	if d.timer != nil {
		_ = d.timer.Stop()
	}
	delete(s.once, name)
	return true
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, job := d.name, d.job
	eid, err := s.c.AddFunc(d.spec, func() { s.dispatch(name, job) })
	if err != nil {
		return errors.Wrapf(err, "register %s", name)
	}
	d.entryID = eid
	return nil
}

func (s *Service) armOnceTimers() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for name, d := range s.once {
		s.armLocked(name, d)
	}
}

// armLocked starts the runtime timer for d. Call with s.tmu held.
func (s *Service) armLocked(name string, d *onceDef) {
	delay := time.Until(d.at)
	if delay < 0 {
		delay = 0
	}
	ver := d.ver
	d.timer = time.AfterFunc(delay, func() {
		// stale callback from a replaced or removed trigger
		s.tmu.Lock()
		cur, ok := s.once[name]
		if !ok || cur.ver != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()

		s.dispatch(name, cur.job)
	})
}

// previewNextRunsLocked returns a short list of upcoming run times for spec. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	var b strings.Builder
	t := time.Now()
	for i := 0; i < n; i++ {
		next, err := s.nextRun(spec, t, s.loc)
		if err != nil || next.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(next.Format("2006-01-02 15:04"))
		t = next
	}
	return b.String()
}

// nextRun reports when spec fires after from, evaluated in loc.
func (s *Service) nextRun(spec string, from time.Time, loc *time.Location) (time.Time, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid cron spec %q", spec)
	}
	return sched.Next(from.In(loc)), nil
}

// ParseHHMM parses a 24h "H:MM" or "HH:MM" time. The minute always has two digits.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, errors.Newf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Newf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || len(ms) != 2 || minute < 0 || minute > 59 {
		return 0, 0, errors.Newf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
