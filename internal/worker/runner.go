package worker

import (
	"context"
	"errors"
	"time"

	"github.com/tradewatch/cryptobot/internal/domain"
	"github.com/tradewatch/cryptobot/internal/store"
	"github.com/tradewatch/cryptobot/pkg/logger"
)

// Runner drives one worker task on a fixed interval. The first run
// fires immediately, then the ticker takes over. Each cycle is recorded
// as a job run in the store; task errors are logged and the loop keeps
// going, except domain.ErrFatal which stops the runner.
type Runner struct {
	Name     string
	WorkerID string
	Interval time.Duration
	Store    *store.Store
	Task     func(ctx context.Context) error
}

// Run blocks until ctx is cancelled or the task returns a fatal error.
func (r *Runner) Run(ctx context.Context) error {
	logger.WithFields(map[string]interface{}{
		"job":      r.Name,
		"interval": r.Interval.String(),
	}).Infof("worker started")

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		if err := r.cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			logger.WithField("job", r.Name).Infof("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) cycle(ctx context.Context) error {
	runID, err := r.Store.StartJobRun(ctx, r.Name, r.WorkerID)
	if err != nil {
		// Audit failing must not stop the work itself.
		logger.WithField("job", r.Name).Warnf("start job run: %v", err)
	}

	taskErr := r.Task(ctx)

	if runID != 0 {
		var msg *string
		if taskErr != nil {
			s := taskErr.Error()
			msg = &s
		}
		// Close the audit row even when the cycle's context was cancelled
		// by shutdown.
		finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Store.FinishJobRun(finishCtx, runID, taskErr == nil, msg, nil); err != nil {
			logger.WithField("job", r.Name).Warnf("finish job run: %v", err)
		}
	}

	switch {
	case taskErr == nil:
	case errors.Is(taskErr, context.Canceled):
	case errors.Is(taskErr, domain.ErrFatal):
		logger.WithField("job", r.Name).Errorf("fatal: %v", taskErr)
		return taskErr
	case errors.Is(taskErr, domain.ErrSkipped):
		logger.WithField("job", r.Name).Debugf("cycle skipped: %v", taskErr)
	default:
		logger.WithField("job", r.Name).Warnf("cycle failed: %v", taskErr)
	}
	return nil
}
