package scheduler

import (
	"sort"
	"time"
)

// Snapshot reports the registered triggers. While the service is stopped the
// Next time of a schedule is projected from its spec.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	sup := s.sup
	loc := s.loc
	s.mu.Unlock()

	snap := Snapshot{Timezone: loc.String(), Running: c != nil}
	if sup != nil {
		cnt := sup.Counters()
		snap.Active = cnt.Active
		snap.Started = cnt.Started
	}

	snap.Schedules = make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		} else {
			it.Next, _ = s.nextRun(d.spec, time.Now(), loc)
		}
		snap.Schedules = append(snap.Schedules, it)
	}

	s.tmu.Lock()
	for name, d := range s.once {
		snap.Once = append(snap.Once, OnceInfo{Name: name, At: d.at})
	}
	s.tmu.Unlock()
	sort.Slice(snap.Once, func(i, j int) bool { return snap.Once[i].At.Before(snap.Once[j].At) })

	return snap
}
