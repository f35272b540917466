package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Task is a unit of periodic work.
type Task struct {
	Name       string
	Interval   time.Duration
	Jitter     time.Duration // random extra delay in [0, Jitter] added to each interval
	RunOnStart bool
	Run        func(ctx context.Context)
}

// Scheduler runs tasks on fixed intervals. A tick that arrives while the previous
// run of the same task is still going is skipped, so runs never overlap.
type Scheduler struct {
	cron  *cron.Cron
	tasks []Task
}

// New creates an idle scheduler.
func New() *Scheduler {
	logger := cronLogger{entry: log.WithField("component", "scheduler")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c}
}

// Add registers a task. It must be called before Run.
func (s *Scheduler) Add(task Task) error {
	if task.Name == "" {
		return errors.New("scheduler: task name is required")
	}
	if task.Run == nil {
		return fmt.Errorf("scheduler: task %s has no Run func", task.Name)
	}
	if task.Interval <= 0 {
		return fmt.Errorf("scheduler: task %s interval must be positive", task.Name)
	}
	if task.Jitter < 0 {
		return fmt.Errorf("scheduler: task %s jitter must not be negative", task.Name)
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Run executes RunOnStart tasks once, then drives all tasks until ctx is done.
// It waits for running tasks to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.tasks) == 0 {
		return errors.New("scheduler: no tasks registered")
	}

	for _, task := range s.tasks {
		if task.RunOnStart {
			runTask(ctx, task)
		}
		if ctx.Err() != nil {
			return nil
		}
		t := task
		s.cron.Schedule(newJitterSchedule(t.Interval, t.Jitter), cron.FuncJob(func() {
			runTask(ctx, t)
		}))
		log.WithField("task", t.Name).Infof("Scheduled every %s (jitter %s)", t.Interval, t.Jitter)
	}

	s.cron.Start()
	<-ctx.Done()

	log.Info("Scheduler stopping, waiting for running tasks...")
	<-s.cron.Stop().Done()
	return nil
}

func runTask(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}
	runID := uuid.NewString()
	entry := log.WithFields(log.Fields{"task": task.Name, "run": runID[:8]})
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("Task panicked: %v", r)
		}
	}()
	entry.Debug("Task started")
	task.Run(ctx)
	entry.Debugf("Task finished in %s", time.Since(start).Round(time.Millisecond))
}

// jitterSchedule implements cron.Schedule with a constant delay plus random jitter.
type jitterSchedule struct {
	every  time.Duration
	jitter time.Duration
	rand   func(n int64) int64
}

func newJitterSchedule(every, jitter time.Duration) jitterSchedule {
	return jitterSchedule{every: every, jitter: jitter, rand: rand.Int64N}
}

// Next returns the next activation time after t.
func (s jitterSchedule) Next(t time.Time) time.Time {
	d := s.every
	if s.jitter > 0 {
		d += time.Duration(s.rand(int64(s.jitter) + 1))
	}
	return t.Add(d)
}

// cronLogger adapts logrus to cron.Logger. cron's own chatter goes to debug,
// except skipped runs which are worth a warning.
type cronLogger struct {
	entry *log.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	fields := toFields(keysAndValues)
	if msg == "skip" {
		l.entry.WithFields(fields).Warn("Previous run still in progress, skipping tick")
		return
	}
	l.entry.WithFields(fields).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

func toFields(keysAndValues []interface{}) log.Fields {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

var _ cron.Schedule = jitterSchedule{}
var _ cron.Logger = cronLogger{}
