package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/dbtest"
	ledgerservice "github.com/smallbiznis/eventreg/internal/ledger/service"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/mock"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/payment/repository"
	"github.com/smallbiznis/eventreg/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type compensationHarness struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	gateway *mock.Gateway
	svc     paymentdomain.Service
}

func newCompensationHarness(t *testing.T, maxAttempts int) *compensationHarness {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	gateway := mock.NewGateway()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	cfg := config.Config{Payments: config.PaymentConfig{
		Gateway:                 mock.Provider,
		CompensationMaxAttempts: maxAttempts,
		CompensationBackoff:     time.Minute,
		CompensationMaxBackoff:  10 * time.Minute,
	}}
	svc := service.NewService(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Cfg:       cfg,
		Repo:      repository.Provide(),
		Adapters:  adapters.NewRegistry([]paymentdomain.Gateway{gateway}, mock.NewFactory()),
		LedgerSvc: ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node}),
		Clock:     fake,
	})
	return &compensationHarness{db: db, node: node, clock: fake, gateway: gateway, svc: svc}
}

func (h *compensationHarness) completedPayment(txnID string) paymentdomain.Payment {
	return paymentdomain.Payment{
		ID:            h.node.Generate(),
		EventID:       h.node.Generate(),
		Provider:      mock.Provider,
		Amount:        500,
		Currency:      "USD",
		Status:        paymentdomain.StatusCompleted,
		TransactionID: &txnID,
	}
}

func (h *compensationHarness) compensation(t *testing.T) paymentdomain.Compensation {
	t.Helper()
	var rows []paymentdomain.Compensation
	require.NoError(t, h.db.Raw(`SELECT * FROM payment_compensations`).Scan(&rows).Error)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestFailedCompensationIsQueued(t *testing.T) {
	h := newCompensationHarness(t, 3)
	h.gateway.SetRefundErr(errors.New("gateway unavailable"))

	payment := h.completedPayment("mock_txn_queued")
	err := h.svc.Compensate(context.Background(), payment, "registration_rolled_back")
	require.ErrorIs(t, err, paymentdomain.ErrRefundFailed)

	queued := h.compensation(t)
	assert.Equal(t, paymentdomain.CompensationPending, queued.Status)
	assert.Equal(t, payment.ID, queued.PaymentID)
	assert.Equal(t, "mock_txn_queued", queued.TransactionID)
	assert.Equal(t, 1, queued.Attempts)
	require.NotNil(t, queued.LastError)
	assert.Contains(t, *queued.LastError, "gateway unavailable")

	// a second failure for the same charge does not duplicate the row
	require.Error(t, h.svc.Compensate(context.Background(), payment, "registration_rolled_back"))
	assert.EqualValues(t, 1, dbtest.Count(t, h.db, `SELECT COUNT(*) FROM payment_compensations`))
}

func TestRetryCompensationsWaitsForBackoff(t *testing.T) {
	h := newCompensationHarness(t, 3)
	h.gateway.SetRefundErr(errors.New("gateway unavailable"))
	require.Error(t, h.svc.Compensate(context.Background(), h.completedPayment("mock_txn_wait"), "registration_rolled_back"))
	h.gateway.SetRefundErr(nil)

	settled, err := h.svc.RetryCompensations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
	assert.Equal(t, 1, h.gateway.Refunds())

	h.clock.Advance(time.Minute)
	settled, err = h.svc.RetryCompensations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, 2, h.gateway.Refunds())

	done := h.compensation(t)
	assert.Equal(t, paymentdomain.CompensationDone, done.Status)
	assert.Equal(t, 2, done.Attempts)
	assert.Nil(t, done.LastError)
	require.NotNil(t, done.RefundTransactionID)

	h.clock.Advance(time.Hour)
	settled, err = h.svc.RetryCompensations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
	assert.Equal(t, 2, h.gateway.Refunds())
}

func TestRetryCompensationsAbandonsAfterMaxAttempts(t *testing.T) {
	h := newCompensationHarness(t, 3)
	h.gateway.SetRefundErr(errors.New("card closed"))
	require.Error(t, h.svc.Compensate(context.Background(), h.completedPayment("mock_txn_abandon"), "registration_rolled_back"))

	h.clock.Advance(time.Minute)
	settled, err := h.svc.RetryCompensations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	pending := h.compensation(t)
	assert.Equal(t, paymentdomain.CompensationPending, pending.Status)
	assert.Equal(t, 2, pending.Attempts)
	assert.Equal(t, h.clock.Now().Add(2*time.Minute), pending.NextAttemptAt.UTC())

	h.clock.Advance(2 * time.Minute)
	settled, err = h.svc.RetryCompensations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	abandoned := h.compensation(t)
	assert.Equal(t, paymentdomain.CompensationAbandoned, abandoned.Status)
	assert.Equal(t, 3, abandoned.Attempts)
	assert.Equal(t, 3, h.gateway.Refunds())
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, paymentdomain.RetryBackoff(time.Minute, 10*time.Minute, 1))
	assert.Equal(t, 2*time.Minute, paymentdomain.RetryBackoff(time.Minute, 10*time.Minute, 2))
	assert.Equal(t, 8*time.Minute, paymentdomain.RetryBackoff(time.Minute, 10*time.Minute, 4))
	assert.Equal(t, 10*time.Minute, paymentdomain.RetryBackoff(time.Minute, 10*time.Minute, 9))
	assert.Equal(t, time.Duration(0), paymentdomain.RetryBackoff(0, time.Minute, 3))
}
