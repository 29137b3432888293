package scheduler

import (
	"context"
	"fmt"
	"time"

	"StockIt/pkg/logger"
	"StockIt/pkg/queue"

	"github.com/robfig/cron/v3"
)

// Scheduler publishes queue messages on cron schedules. Specs take a leading
// seconds field.
type Scheduler struct {
	cron    *cron.Cron
	queue   queue.QueueService
	log     *logger.Logger
	timeout time.Duration
}

func New(l *logger.Logger, q queue.QueueService, timeout time.Duration) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	lg := l.With("scheduler")
	adapter := cronLogger{l: lg}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		queue:   q,
		log:     lg,
		timeout: timeout,
	}
}

// Schedule registers msgType to be published with payload on spec.
func (s *Scheduler) Schedule(spec, msgType string, payload interface{}) error {
	if _, err := s.cron.AddFunc(spec, func() { s.Fire(msgType, payload) }); err != nil {
		return fmt.Errorf("schedule %s: %w", msgType, err)
	}
	s.log.Info("task scheduled", logger.String("type", msgType), logger.String("spec", spec))
	return nil
}

// Fire publishes one message now.
func (s *Scheduler) Fire(msgType string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.queue.PublishMessage(ctx, msgType, payload); err != nil {
		s.log.Error("scheduled task failed", logger.String("type", msgType), logger.Error(err))
		return
	}
	s.log.Debug("scheduled task published", logger.String("type", msgType))
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("tasks", s.Entries()))
}

// Stop prevents new runs and waits for running ones until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
