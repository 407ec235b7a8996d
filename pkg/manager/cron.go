package manager

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/godspeedsystems/ingestor-sdk/pkg/task"
)

// CronEvaluator decides whether a cron task is currently due. The process
// owns no timer: an external tick source drives evaluation, and the window
// absorbs its jitter relative to the schedule.
type CronEvaluator struct {
	parser cron.Parser
	window time.Duration
}

// NewCronEvaluator creates an evaluator with the given due window
func NewCronEvaluator(window time.Duration) *CronEvaluator {
	if window <= 0 {
		window = DefaultCronWindow
	}
	return &CronEvaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		window: window,
	}
}

// Validate checks if a cron expression is valid
func (e *CronEvaluator) Validate(expr string) error {
	if _, err := e.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// PreviousScheduled returns the largest scheduled moment <= now that still
// falls inside the due window. The zero time means no recent slot exists.
func (e *CronEvaluator) PreviousScheduled(expr string, now time.Time) (time.Time, error) {
	sched, err := e.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	var prev time.Time
	t := now.Add(-e.window)
	for {
		next := sched.Next(t)
		if next.IsZero() || next.After(now) {
			break
		}
		prev = next
		t = next
	}
	return prev, nil
}

// IsDue reports whether the task's schedule has an unconsumed slot at now.
// lastRun < previousScheduled is the idempotence check: each scheduled
// moment fires at most once.
func (e *CronEvaluator) IsDue(expr string, lastRun *time.Time, now time.Time) (bool, time.Time, error) {
	prev, err := e.PreviousScheduled(expr, now)
	if err != nil {
		return false, time.Time{}, err
	}
	if prev.IsZero() {
		return false, time.Time{}, nil
	}
	if lastRun != nil && !lastRun.Before(prev) {
		return false, prev, nil
	}
	return true, prev, nil
}

// CronRun reports one cron-triggered execution
type CronRun struct {
	TaskID      string    `json:"task_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
}

// TriggerAllEnabledCronTasks evaluates every enabled cron task against the
// wall clock and runs the due ones. Invoked by an external tick source.
func (m *Manager) TriggerAllEnabledCronTasks(ctx context.Context) ([]CronRun, error) {
	return m.TriggerDueCronTasks(ctx, m.now())
}

// TriggerDueCronTasks evaluates every enabled cron task against an explicit
// tick time and runs the due ones. The consumed scheduled moment is recorded
// as LastRun so the slot cannot fire twice.
func (m *Manager) TriggerDueCronTasks(ctx context.Context, now time.Time) ([]CronRun, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	evaluator := NewCronEvaluator(m.cronWindow)

	var runs []CronRun
	for _, t := range tasks {
		if !t.Enabled || t.Trigger.Type != task.TriggerCron {
			continue
		}

		due, scheduledAt, err := evaluator.IsDue(t.Trigger.Expression, t.LastRun, now)
		if err != nil {
			log.Printf("[CRON] Task %s has invalid expression %q: %v", t.ID, t.Trigger.Expression, err)
			continue
		}
		if !due {
			continue
		}

		log.Printf("[CRON] Task %s due for slot %v", t.ID, scheduledAt)

		payload := m.enrichPayload(ctx, t, nil)
		result, err := m.runTask(ctx, t, payload, scheduledAt)
		if err != nil {
			runs = append(runs, CronRun{TaskID: t.ID, ScheduledAt: scheduledAt, Success: false, Message: err.Error()})
			continue
		}
		runs = append(runs, CronRun{TaskID: t.ID, ScheduledAt: scheduledAt, Success: result.Success, Message: result.Message})
	}

	return runs, nil
}
