package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

// Events published on the bus after each run.
const (
	EventTaskFinished = "task.finished"
	EventTaskFailed   = "task.failed"
	EventTaskSkipped  = "task.skipped"
)

const historySize = 50

// Config controls the scheduler.
type Config struct {
	Enabled bool
	// Location is the zone cron expressions are evaluated in. Nil means time.Local.
	Location *time.Location
	// DefaultTimeout bounds jobs registered without their own timeout.
	DefaultTimeout time.Duration
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          ParsedSpec
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	running       *atomic.Bool
	runs          *atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	hmu     sync.Mutex
	history []HistoryItem

	wg sync.WaitGroup
	// runCtx is cancelled on Stop so in-flight jobs can bail out early.
	runCtx    context.Context
	runCancel context.CancelFunc
}

type ScheduleInfo struct {
	Name          string        `json:"name"`
	Spec          string        `json:"spec"`
	Timeout       time.Duration `json:"timeout"`
	StartupSpread time.Duration `json:"startup_spread,omitempty"`
	Running       bool          `json:"running"`
	Runs          uint64        `json:"runs"`
	Next          time.Time     `json:"next,omitzero"`
	Prev          time.Time     `json:"prev,omitzero"`
}

type HistoryItem struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// TaskEvent is the Data of scheduler bus events.
type TaskEvent struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Timezone  string         `json:"timezone"`
	Running   bool           `json:"running"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []HistoryItem  `json:"history"`
}
