package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	obslogger "github.com/smallbiznis/eventreg/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun is one execution of a job. Its logger carries the job name and run
// id so every line of a run can be grouped.
type jobRun struct {
	job       string
	id        string
	batchSize int
	startedAt time.Time
	elapsed   func() time.Duration
	processed int
	failures  int
	log       *zap.Logger
}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

// fail records a failed step without ending the run.
func (r *jobRun) fail(msg string, err error, fields ...zap.Field) {
	r.failures++
	r.log.Error(msg, append([]zap.Field{
		zap.String("error_type", obsmetrics.ClassifyTxReason(err)),
		zap.Error(err),
	}, fields...)...)
}

// begin attributes the run to the system actor so compensation audit entries
// name the scheduler.
func (s *Scheduler) begin(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	mono := time.Now()
	run := &jobRun{
		job:       job,
		id:        s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
		elapsed:   func() time.Duration { return time.Since(mono) },
	}
	run.log = obslogger.WithContext(ctx, s.log).With(zap.String("job", job), zap.String("run_id", run.id))
	run.log.Debug("scheduler.job.start", zap.Int("batch_size", batchSize), zap.Time("started_at", run.startedAt))
	s.schedMetrics.RunStarted(job)
	return ctx, run
}

func (s *Scheduler) finish(run *jobRun, err error) {
	elapsed := run.elapsed()
	s.schedMetrics.RunFinished(run.job, elapsed, run.processed, err)
	if err != nil && run.failures == 0 {
		run.failures++
	}

	level := zapcore.DebugLevel
	switch {
	case run.failures > 0:
		level = zapcore.WarnLevel
	case run.processed > 0:
		level = zapcore.InfoLevel
	}
	if ce := run.log.Check(level, "scheduler.job.finish"); ce != nil {
		ce.Write(
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.Int("processed_count", run.processed),
			zap.Int("error_count", run.failures),
		)
	}
}
