package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "alertd/pkg/logx"
)

// ErrStopped is returned by Arm after Stop.
var ErrStopped = errors.New("timer service stopped")

// Config controls the timer service.
type Config struct {
	Timezone string // IANA TZ for cron schedules and log output; empty means Local
}

// Handler receives the name of a fired timer. It runs on the timer's own
// goroutine; Cancel for the same name blocks until it returns, so a handler
// must not cancel its own name.
type Handler func(ctx context.Context, name string)

// Job is a maintenance job.
type Job func(ctx context.Context) error

type oneShot struct {
	t   *time.Timer
	at  time.Time
	ver uint64
}

type maintenanceDef struct {
	name    string
	spec    string
	job     Job
	entryID cron.EntryID
}

// Service is the timer service. The zero value is not usable; call New.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []maintenanceDef

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// one-shot timers
	tmu      sync.Mutex
	handler  Handler
	timers   map[string]*oneShot
	seq      uint64 // arm generation; a callback only fires if its generation is still current
	inflight map[string]chan struct{}
	stopped  bool
}

// Entry describes an armed timer.
type Entry struct {
	Name string
	At   time.Time
}

// ScheduleInfo describes a registered maintenance job.
type ScheduleInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}
