package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"horoscopebot/internal/runtime/supervisor"
	logx "horoscopebot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Madrid"; empty means Local
}

// Job is the unit of work fired by a trigger. Its context is cancelled by Stop.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // 5-field cron spec
	job     Job
	entryID cron.EntryID
}

type onceDef struct {
	at    time.Time
	job   Job
	ver   uint64
	timer *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	sup    *supervisor.Supervisor

	// one-time triggers; timers only exist while the service runs
	tmu     sync.Mutex
	once    map[string]*onceDef
	onceVer uint64
}

type ScheduleInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type OnceInfo struct {
	Name string
	At   time.Time
}

type Snapshot struct {
	Timezone  string
	Running   bool
	Active    int64
	Started   uint64
	Schedules []ScheduleInfo
	Once      []OnceInfo
}
