package capacity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/capacity"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/eventreg/internal/catalog/repository"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/dbtest"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	regdomain "github.com/smallbiznis/eventreg/internal/registration/domain"
	regrepo "github.com/smallbiznis/eventreg/internal/registration/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newLedger(t *testing.T, lockWait time.Duration) (*capacity.Ledger, *gorm.DB, *snowflake.Node) {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	policy := config.DefaultRegistrationPolicy()
	policy.LockWaitTimeout = lockWait

	ledger := capacity.New(capacity.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Policy:    config.NewStaticPolicyHolder(policy),
		EventRepo: catalogrepo.Provide(),
		RegRepo:   regrepo.Provide(),
	})
	return ledger, db, node
}

func TestReserveConcurrentAttemptsRespectCapacity(t *testing.T) {
	ledger, db, node := newLedger(t, time.Minute)
	eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 100})

	const attempts = 500
	participants := make([]snowflake.ID, attempts)
	for i := range participants {
		participants[i] = node.Generate()
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[capacity.Outcome]int{}
	)
	for _, participantID := range participants {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			decision, err := ledger.Reserve(context.Background(), eventID, identitydomain.Individual(id))
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			mu.Lock()
			counts[decision.Outcome]++
			mu.Unlock()
		}(participantID)
	}
	wg.Wait()

	assert.Equal(t, 100, counts[capacity.OutcomeConfirmed])
	assert.Equal(t, 400, counts[capacity.OutcomeWaitlisted])
	assert.Equal(t, 0, counts[capacity.OutcomeRejected])
	assert.EqualValues(t, 100, dbtest.Count(t, db, `SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status = 'confirmed'`, eventID))
	assert.EqualValues(t, 400, dbtest.Count(t, db, `SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status = 'waitlisted'`, eventID))
}

func TestReserveConcurrentDuplicate(t *testing.T) {
	ledger, db, node := newLedger(t, 10*time.Second)
	eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 10})
	participant := identitydomain.Individual(node.Generate())

	decisions := make([]capacity.Decision, 2)
	var wg sync.WaitGroup
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := ledger.Reserve(context.Background(), eventID, participant)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			decisions[i] = decision
		}(i)
	}
	wg.Wait()

	var confirmed, duplicates int
	for _, decision := range decisions {
		switch {
		case decision.Outcome == capacity.OutcomeConfirmed:
			confirmed++
		case decision.Rejected() && errors.Is(decision.Reason, regdomain.ErrDuplicateRegistration):
			duplicates++
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, duplicates)
	assert.EqualValues(t, 1, dbtest.Count(t, db, `SELECT COUNT(*) FROM registrations WHERE event_id = ?`, eventID))
}

func TestReserveRejectsClosedEvents(t *testing.T) {
	ledger, db, node := newLedger(t, time.Second)

	for _, status := range []string{"draft", "cancelled", "completed"} {
		eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 5, Status: status})
		decision, err := ledger.Reserve(context.Background(), eventID, identitydomain.Individual(node.Generate()))
		require.NoError(t, err)
		require.True(t, decision.Rejected(), status)
		require.ErrorIs(t, decision.Reason, regdomain.ErrEventClosed)
	}
	assert.EqualValues(t, 0, dbtest.Count(t, db, `SELECT COUNT(*) FROM registrations`))

	_, err := ledger.Reserve(context.Background(), node.Generate(), identitydomain.Individual(node.Generate()))
	require.ErrorIs(t, err, catalogdomain.ErrEventNotFound)
}

func TestReserveRejectsTypeMismatch(t *testing.T) {
	ledger, db, node := newLedger(t, time.Second)
	eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 5, RegistrationType: "team"})

	decision, err := ledger.Reserve(context.Background(), eventID, identitydomain.Individual(node.Generate()))
	require.NoError(t, err)
	require.ErrorIs(t, decision.Reason, regdomain.ErrTypeMismatch)

	decision, err = ledger.Reserve(context.Background(), eventID, identitydomain.Team(node.Generate()))
	require.NoError(t, err)
	require.Equal(t, capacity.OutcomeConfirmed, decision.Outcome)
}

func TestReserveUnlimitedAndWaitlistDisabled(t *testing.T) {
	ledger, db, node := newLedger(t, time.Second)
	unlimited := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 0})
	for i := 0; i < 5; i++ {
		decision, err := ledger.Reserve(context.Background(), unlimited, identitydomain.Individual(node.Generate()))
		require.NoError(t, err)
		require.Equal(t, capacity.OutcomeConfirmed, decision.Outcome)
	}

	full := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 1})
	_, err := ledger.Reserve(context.Background(), full, identitydomain.Individual(node.Generate()))
	require.NoError(t, err)

	var decision capacity.Decision
	err = ledger.WithEventLock(context.Background(), full, func(tx *gorm.DB, event *catalogdomain.Event) error {
		var err error
		decision, err = ledger.ReserveTx(context.Background(), tx, event, identitydomain.Individual(node.Generate()), capacity.ReserveOptions{WaitlistDisabled: true})
		return err
	})
	require.NoError(t, err)
	require.ErrorIs(t, decision.Reason, regdomain.ErrCapacityReached)
}

func TestReservePendingHoldsSlot(t *testing.T) {
	ledger, db, node := newLedger(t, time.Second)
	eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 1, Fee: 500, IsPaid: true})

	err := ledger.WithEventLock(context.Background(), eventID, func(tx *gorm.DB, event *catalogdomain.Event) error {
		decision, err := ledger.ReserveTx(context.Background(), tx, event, identitydomain.Individual(node.Generate()), capacity.ReserveOptions{Pending: true})
		if err != nil {
			return err
		}
		require.Equal(t, regdomain.StatusPending, decision.Registration.Status)
		return nil
	})
	require.NoError(t, err)

	decision, err := ledger.Reserve(context.Background(), eventID, identitydomain.Individual(node.Generate()))
	require.NoError(t, err)
	require.Equal(t, capacity.OutcomeWaitlisted, decision.Outcome)
}

func TestReleaseFreesSlotWithoutPromotion(t *testing.T) {
	ledger, db, node := newLedger(t, time.Second)
	eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 1})
	ctx := context.Background()

	a, err := ledger.Reserve(ctx, eventID, identitydomain.Individual(node.Generate()))
	require.NoError(t, err)
	require.Equal(t, capacity.OutcomeConfirmed, a.Outcome)

	b, err := ledger.Reserve(ctx, eventID, identitydomain.Individual(node.Generate()))
	require.NoError(t, err)
	require.Equal(t, capacity.OutcomeWaitlisted, b.Outcome)

	err = ledger.WithEventLock(ctx, eventID, func(tx *gorm.DB, _ *catalogdomain.Event) error {
		return ledger.Release(ctx, tx, a.Registration)
	})
	require.NoError(t, err)
	assert.Equal(t, regdomain.StatusCancelled, a.Registration.Status)

	c, err := ledger.Reserve(ctx, eventID, identitydomain.Individual(node.Generate()))
	require.NoError(t, err)
	require.Equal(t, capacity.OutcomeConfirmed, c.Outcome)

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM registrations WHERE id = ?`, b.Registration.ID).Scan(&status).Error)
	assert.Equal(t, string(regdomain.StatusWaitlisted), status)

	// A released registration cannot be released again.
	err = ledger.WithEventLock(ctx, eventID, func(tx *gorm.DB, _ *catalogdomain.Event) error {
		return ledger.Release(ctx, tx, a.Registration)
	})
	require.ErrorIs(t, err, regdomain.ErrInvalidStatus)
}

func TestLockWaitIsBounded(t *testing.T) {
	ledger, db, node := newLedger(t, 50*time.Millisecond)
	eventID := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 1})

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = ledger.WithEventLock(context.Background(), eventID, func(tx *gorm.DB, _ *catalogdomain.Event) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	_, err := ledger.Reserve(context.Background(), eventID, identitydomain.Individual(node.Generate()))
	close(done)
	require.ErrorIs(t, err, capacity.ErrLockTimeout)
}

func TestWithEventLocksLocksEveryEvent(t *testing.T) {
	ledger, db, node := newLedger(t, time.Second)
	first := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 1})
	second := dbtest.SeedEvent(t, db, node, dbtest.EventFixture{Capacity: 1})

	err := ledger.WithEventLocks(context.Background(), []snowflake.ID{second, first, second}, func(tx *gorm.DB, events map[snowflake.ID]*catalogdomain.Event) error {
		require.Len(t, events, 2)
		require.Equal(t, first, events[first].ID)
		return nil
	})
	require.NoError(t, err)

	err = ledger.WithEventLocks(context.Background(), nil, func(*gorm.DB, map[snowflake.ID]*catalogdomain.Event) error { return nil })
	require.ErrorIs(t, err, catalogdomain.ErrEventNotFound)
}
