package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/clock"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobCompensationRetry = "compensation_retry"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	PaymentSvc   paymentdomain.Service
	Config       Config                       `optional:"true"`
	Clock        clock.Clock                  `optional:"true"`
	SchedMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	paymentSvc   paymentdomain.Service
	schedMetrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.PaymentSvc == nil {
		return nil, ErrInvalidConfig
	}
	c := clock.Or(p.Clock)
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        c,
		paymentSvc:   p.PaymentSvc,
		schedMetrics: p.SchedMetrics,
	}, nil
}

// runJob bounds fn by timeout. A run cut short by its deadline is counted
// and logged but not returned as an error; the next tick picks up the rest.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.begin(ctx, name, batchSize)
	err := fn(ctx, run)
	s.finish(run, err)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.schedMetrics.RunTimedOut(name)
		run.log.Warn("scheduler.job.timeout", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobCompensationRetry, s.cfg.BatchSize, s.cfg.JobTimeout, s.CompensationRetryJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now()

	for {
		s.schedMetrics.LoopLag(time.Since(nextRun))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = time.Now().Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CompensationRetryJob drains due compensations batch by batch until a
// batch settles nothing.
func (s *Scheduler) CompensationRetryJob(ctx context.Context, run *jobRun) error {
	var jobErr error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}

		settled, err := s.paymentSvc.RetryCompensations(ctx, s.cfg.BatchSize)
		run.AddProcessed(settled)
		if err != nil {
			run.fail("scheduler.compensation.retry.failed", err, zap.Int("limit", s.cfg.BatchSize))
			jobErr = errors.Join(jobErr, err)
			return jobErr
		}
		if settled < s.cfg.BatchSize {
			return jobErr
		}
	}
}
