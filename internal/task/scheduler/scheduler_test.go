package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	logx "horoscopebot/pkg/logx"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"23:15", 23, 15, true},
		{"8:00", 8, 0, true},
		{"08:05", 8, 5, true},
		{" 23:59 ", 23, 59, true},
		{"24:00", 0, 0, false},
		{"8:5", 0, 0, false},
		{"8", 0, 0, false},
		{"aa:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		h, m, err := ParseHHMM(tc.in)
		if tc.wantOK != (err == nil) {
			t.Fatalf("ParseHHMM(%q) err=%v", tc.in, err)
		}
		if tc.wantOK && (h != tc.h || m != tc.m) {
			t.Fatalf("ParseHHMM(%q)=%d:%d", tc.in, h, m)
		}
	}
}

func TestAddDailyIsUpsertByName(t *testing.T) {
	t.Parallel()
	s := newService(t)
	job := func(context.Context) error { return nil }

	if _, err := s.AddDaily("horoscope.daily", "8:00", job); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if _, err := s.AddDaily("horoscope.daily", "9:30", job); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("want 1 schedule, got %d", len(snap.Schedules))
	}
	if got := snap.Schedules[0].Spec; got != "30 9 * * *" {
		t.Fatalf("unexpected spec %q", got)
	}
	if snap.Schedules[0].Next.IsZero() {
		t.Fatal("expected next run time")
	}
	if snap.Timezone != "UTC" || !snap.Running {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestAddWeeklySpec(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	job := func(context.Context) error { return nil }

	if _, err := s.AddWeekly("horoscope.weekly", time.Sunday, "9:00", job); err != nil {
		t.Fatalf("AddWeekly: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "0 9 * * 0" {
		t.Fatalf("unexpected schedules: %+v", snap.Schedules)
	}
	if snap.Running {
		t.Fatal("service should not be running before Start")
	}

	if _, err := s.AddWeekly("bad", time.Weekday(9), "9:00", job); err == nil {
		t.Fatal("expected error for invalid weekday")
	}
}

func TestNextUsesTimezone(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Europe/Madrid"}, logx.Nop())

	// 2026-10-19 05:30 UTC is 07:30 in Madrid (CEST, UTC+2)
	from := time.Date(2026, time.October, 19, 5, 30, 0, 0, time.UTC)
	next, err := s.nextRun("0 8 * * *", from, s.Location())
	if err != nil {
		t.Fatalf("nextRun: %v", err)
	}
	want := time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next=%s want %s", next.UTC(), want)
	}

	// Sunday 2026-10-25 09:00 Madrid; DST ends that night so it is UTC+1
	weekly, err := s.nextRun("0 9 * * 0", from, s.Location())
	if err != nil {
		t.Fatalf("nextRun: %v", err)
	}
	if want := time.Date(2026, time.October, 25, 8, 0, 0, 0, time.UTC); !weekly.Equal(want) {
		t.Fatalf("weekly=%s want %s", weekly.UTC(), want)
	}
}

func TestSnapshotProjectsNextWhileStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	if _, err := s.AddDaily("daily", "8:00", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	snap := s.Snapshot()
	if snap.Running || len(snap.Schedules) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	next := snap.Schedules[0].Next
	if next.IsZero() || next.UTC().Hour() != 8 || next.Minute() != 0 || !next.After(time.Now()) {
		t.Fatalf("next=%s", next)
	}
}

func TestInvalidTimezoneFallsBackToLocal(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Mars/Olympus"}, logx.Nop())
	if s.Location() != time.Local {
		t.Fatalf("expected Local, got %s", s.Location())
	}
}

func TestAddOnceFires(t *testing.T) {
	t.Parallel()
	s := newService(t)

	fired := make(chan struct{}, 1)
	if _, err := s.AddOnce("once", time.Now().Add(10*time.Millisecond), func(context.Context) error {
		fired <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-time trigger did not fire")
	}
	if n := len(s.Snapshot().Once); n != 0 {
		t.Fatalf("fired trigger should be removed, %d left", n)
	}
}

func TestAddOnceReplacesPending(t *testing.T) {
	t.Parallel()
	s := newService(t)

	var first, second atomic.Int32
	done := make(chan struct{})
	_, _ = s.AddOnce("startup", time.Now().Add(20*time.Millisecond), func(context.Context) error {
		first.Add(1)
		return nil
	})
	_, _ = s.AddOnce("startup", time.Now().Add(40*time.Millisecond), func(context.Context) error {
		second.Add(1)
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement trigger did not fire")
	}
	time.Sleep(50 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("first=%d second=%d", first.Load(), second.Load())
	}
}

func TestAddOnceBeforeStartArmsOnStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	fired := make(chan struct{}, 1)
	_, _ = s.AddOnce("early", time.Now(), func(context.Context) error {
		fired <- struct{}{}
		return nil
	})

	select {
	case <-fired:
		t.Fatal("trigger fired before Start")
	case <-time.After(30 * time.Millisecond):
	}

	s.Start(context.Background())
	defer func() { _ = s.Stop(context.Background()) }()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not fire after Start")
	}
}

func TestStopCancelsRunningJobs(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	s.Start(context.Background())

	started := make(chan struct{})
	var cancelled atomic.Bool
	_, _ = s.AddOnce("long", time.Now(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !cancelled.Load() {
		t.Fatal("running job was not cancelled")
	}
	if s.Snapshot().Running {
		t.Fatal("service still running after Stop")
	}
	// second stop is a no-op
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestPanickingJobDoesNotStopService(t *testing.T) {
	t.Parallel()
	s := newService(t)

	_, _ = s.AddOnce("boom", time.Now(), func(context.Context) error { panic("boom") })

	ok := make(chan struct{}, 1)
	_, _ = s.AddOnce("after", time.Now().Add(20*time.Millisecond), func(context.Context) error {
		ok <- struct{}{}
		return nil
	})
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("service stopped dispatching after a panic")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := newService(t)
	job := func(context.Context) error { return nil }

	_, _ = s.AddDaily("d", "8:00", job)
	_, _ = s.AddOnce("o", time.Now().Add(time.Hour), job)
	if !s.Remove("d") || !s.Remove("o") {
		t.Fatal("expected removals")
	}
	if s.Remove("d") {
		t.Fatal("second removal should report false")
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 0 || len(snap.Once) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
