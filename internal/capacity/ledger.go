package capacity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	regdomain "github.com/smallbiznis/eventreg/internal/registration/domain"
	pkgdb "github.com/smallbiznis/eventreg/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrLockTimeout = errors.New("lock_timeout")

type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeWaitlisted Outcome = "waitlisted"
	OutcomeRejected   Outcome = "rejected"
)

// Decision is the result of one reservation attempt. Reason is set only for
// rejections and is one of the registration domain errors.
type Decision struct {
	Outcome      Outcome
	Reason       error
	Registration *regdomain.Registration
}

func (d Decision) Rejected() bool {
	return d.Outcome == OutcomeRejected
}

type ReserveOptions struct {
	// Pending inserts a confirmed slot as pending while payment is collected.
	Pending bool
	// WaitlistDisabled rejects with capacity_reached instead of waitlisting.
	WaitlistDisabled bool
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Policy    *config.PolicyHolder
	EventRepo catalogdomain.Repository
	RegRepo   regdomain.Repository
	Locker    *Locker                         `optional:"true"`
	Metrics   *obsmetrics.RegistrationMetrics `optional:"true"`
	Clock     clock.Clock                     `optional:"true"`
}

// Ledger owns the capacity critical section of every event.
type Ledger struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	policy    *config.PolicyHolder
	eventRepo catalogdomain.Repository
	regRepo   regdomain.Repository
	locker    *Locker
	metrics   *obsmetrics.RegistrationMetrics
	clock     clock.Clock
	stripes   *stripedMutex
}

func New(p Params) *Ledger {
	c := clock.Or(p.Clock)
	return &Ledger{
		db:        p.DB,
		log:       p.Log.Named("capacity.ledger"),
		genID:     p.GenID,
		policy:    p.Policy,
		eventRepo: p.EventRepo,
		regRepo:   p.RegRepo,
		locker:    p.Locker,
		metrics:   p.Metrics,
		clock:     c,
		stripes:   newStripedMutex(defaultStripes),
	}
}

// WithEventLock runs fn inside a transaction holding the lock for one event.
func (l *Ledger) WithEventLock(ctx context.Context, eventID snowflake.ID, fn func(tx *gorm.DB, event *catalogdomain.Event) error) error {
	return l.WithEventLocks(ctx, []snowflake.ID{eventID}, func(tx *gorm.DB, events map[snowflake.ID]*catalogdomain.Event) error {
		return fn(tx, events[eventID])
	})
}

// WithEventLocks locks every distinct event in ascending id order, then runs
// fn in a single transaction with the event rows locked.
func (l *Ledger) WithEventLocks(ctx context.Context, eventIDs []snowflake.ID, fn func(tx *gorm.DB, events map[snowflake.ID]*catalogdomain.Event) error) error {
	ids := uniqueSorted(eventIDs)
	if len(ids) == 0 {
		return catalogdomain.ErrEventNotFound
	}

	timeout := l.policy.Get().LockWaitTimeout
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	unlock, err := l.stripes.lock(lockCtx, ids)
	if err != nil {
		return l.lockErr(ctx, err, obsmetrics.LockResourceEventMutex, ids)
	}
	defer unlock()
	l.observe(obsmetrics.LockResourceEventMutex, started)

	if l.locker != nil {
		started = time.Now()
		lease, err := l.locker.Acquire(lockCtx, ids)
		if err != nil {
			return l.lockErr(ctx, err, obsmetrics.LockResourceEventRedis, ids)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := lease.Release(releaseCtx); err != nil {
				l.log.Warn("release event locks", zap.Error(err))
			}
		}()
		l.observe(obsmetrics.LockResourceEventRedis, started)
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())).Error; err != nil {
				return err
			}
		}

		started := time.Now()
		events := make(map[snowflake.ID]*catalogdomain.Event, len(ids))
		for _, id := range ids {
			event, err := l.eventRepo.LockByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if event == nil {
				return catalogdomain.ErrEventNotFound
			}
			events[id] = event
		}
		l.observe(obsmetrics.LockResourceEventRow, started)

		return fn(tx, events)
	})
	if err != nil && pkgdb.IsLockTimeoutErr(err) {
		l.log.Warn("event row lock timed out", zap.Int("events", len(ids)), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}

func (l *Ledger) lockErr(ctx context.Context, err error, resource string, ids []snowflake.ID) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		l.log.Warn("event lock wait exceeded",
			zap.String("resource", resource),
			zap.Int("events", len(ids)),
		)
		return ErrLockTimeout
	}
	return err
}

func (l *Ledger) observe(resource string, started time.Time) {
	if l.metrics != nil {
		l.metrics.ObserveLockWait(resource, time.Since(started))
	}
}

// ReserveTx decides and records one reservation. The caller must hold the
// event lock and pass the row read under it.
func (l *Ledger) ReserveTx(ctx context.Context, tx *gorm.DB, event *catalogdomain.Event, participant identitydomain.Participant, opts ReserveOptions) (Decision, error) {
	if event == nil {
		return Decision{}, catalogdomain.ErrEventNotFound
	}
	if !event.AcceptsRegistrations() {
		return l.reject(regdomain.ErrEventClosed), nil
	}
	if !event.Accepts(participant.Kind) {
		return l.reject(regdomain.ErrTypeMismatch), nil
	}

	existing, err := l.regRepo.FindActive(ctx, tx, event.ID, participant)
	if err != nil {
		return Decision{}, err
	}
	if existing != nil {
		return l.reject(regdomain.ErrDuplicateRegistration), nil
	}

	held, err := l.regRepo.CountHeld(ctx, tx, event.ID)
	if err != nil {
		return Decision{}, err
	}

	outcome := OutcomeConfirmed
	status := regdomain.StatusConfirmed
	switch {
	case event.Unlimited() || held < int64(event.Capacity):
		if opts.Pending {
			status = regdomain.StatusPending
		}
	case opts.WaitlistDisabled:
		return l.reject(regdomain.ErrCapacityReached), nil
	default:
		outcome = OutcomeWaitlisted
		status = regdomain.StatusWaitlisted
	}

	now := l.clock.Now()
	registration := regdomain.Registration{
		ID:              l.genID.Generate(),
		EventID:         event.ID,
		ParticipantKind: participant.Kind,
		ParticipantID:   participant.ID,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.regRepo.Insert(ctx, tx, &registration); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return l.reject(regdomain.ErrDuplicateRegistration), nil
		}
		return Decision{}, err
	}

	if l.metrics != nil {
		l.metrics.IncDecision(string(outcome), "")
	}
	return Decision{Outcome: outcome, Registration: &registration}, nil
}

func (l *Ledger) reject(reason error) Decision {
	if l.metrics != nil {
		l.metrics.IncDecision(string(OutcomeRejected), reason.Error())
	}
	return Decision{Outcome: OutcomeRejected, Reason: reason}
}

// Reserve locks the event and records one reservation in its own transaction.
func (l *Ledger) Reserve(ctx context.Context, eventID snowflake.ID, participant identitydomain.Participant) (Decision, error) {
	var decision Decision
	err := l.WithEventLock(ctx, eventID, func(tx *gorm.DB, event *catalogdomain.Event) error {
		var err error
		decision, err = l.ReserveTx(ctx, tx, event, participant, ReserveOptions{})
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// Release cancels an active registration. The caller must hold the event
// lock; a released pending or confirmed slot is free for the next reserve.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, registration *regdomain.Registration) error {
	if registration == nil {
		return regdomain.ErrRegistrationNotFound
	}
	if !registration.Status.Active() {
		return regdomain.ErrInvalidStatus
	}
	now := l.clock.Now()
	if err := l.regRepo.MarkCancelled(ctx, tx, registration.ID, now); err != nil {
		return err
	}
	registration.Status = regdomain.StatusCancelled
	registration.CancelledAt = &now
	registration.UpdatedAt = now
	return nil
}

func uniqueSorted(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
