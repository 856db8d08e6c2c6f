package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/clock"
	ledgerdomain "github.com/smallbiznis/eventreg/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics

	// ids of accounts seen committed; never evicted
	accounts sync.Map // ledgerdomain.AccountCode -> snowflake.ID
}

func NewService(p Params) ledgerdomain.Service {
	clk := clock.Or(p.Clock)
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   clk,
		metrics: p.ObsMetrics,
	}
}

func (s *Service) RecordPayment(ctx context.Context, tx *gorm.DB, settlement ledgerdomain.Settlement) error {
	_, err := s.Post(ctx, tx, settlement.PaymentJournal())
	return err
}

func (s *Service) RecordRefund(ctx context.Context, tx *gorm.DB, settlement ledgerdomain.Settlement) error {
	_, err := s.Post(ctx, tx, settlement.RefundJournal())
	return err
}

func (s *Service) Post(ctx context.Context, tx *gorm.DB, j ledgerdomain.Journal) (bool, error) {
	j, err := j.Normalize()
	if err != nil {
		return false, err
	}
	if tx != nil {
		return s.post(ctx, tx.WithContext(ctx), j)
	}

	var posted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err = s.post(ctx, tx, j)
		return err
	})
	return posted, err
}

func (s *Service) post(ctx context.Context, tx *gorm.DB, j ledgerdomain.Journal) (bool, error) {
	now := s.clock.Now()
	entry := ledgerdomain.Entry{
		ID:         s.genID.Generate(),
		SourceType: j.Source,
		SourceID:   j.SourceID,
		EventID:    j.EventID,
		Currency:   j.Currency,
		OccurredAt: j.OccurredAt,
		CreatedAt:  now,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return false, fmt.Errorf("insert ledger entry: %w", res.Error)
	}
	log := s.log.With(zap.String("source_type", string(j.Source)), zap.String("source_id", j.SourceID.String()))
	if res.RowsAffected == 0 {
		log.Debug("ledger entry already posted")
		return false, nil
	}

	lines := make([]ledgerdomain.Line, len(j.Postings))
	for i, p := range j.Postings {
		accountID, err := s.accountID(tx, p.Account)
		if err != nil {
			return false, err
		}
		lines[i] = ledgerdomain.Line{
			ID:            s.genID.Generate(),
			LedgerEntryID: entry.ID,
			AccountID:     accountID,
			Direction:     p.Direction,
			Amount:        p.Amount,
			CreatedAt:     now,
		}
	}
	if err := tx.Create(&lines).Error; err != nil {
		return false, fmt.Errorf("insert ledger lines: %w", err)
	}

	s.metrics.RecordLedgerEntry(ctx, string(j.Source))
	log.Debug("ledger entry posted", zap.String("ledger_entry_id", entry.ID.String()), zap.Int("lines", len(lines)))
	return true, nil
}

// accountID resolves a code, creating the account on first use.
func (s *Service) accountID(tx *gorm.DB, code ledgerdomain.AccountCode) (snowflake.ID, error) {
	if id, ok := s.accounts.Load(code); ok {
		return id.(snowflake.ID), nil
	}

	res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&ledgerdomain.Account{
			ID:        s.genID.Generate(),
			Code:      code,
			Name:      ledgerdomain.AccountName(code),
			CreatedAt: s.clock.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("ensure ledger account %s: %w", code, res.Error)
	}

	var id snowflake.ID
	if err := tx.Raw(`SELECT id FROM ledger_accounts WHERE code = ?`, code).Scan(&id).Error; err != nil {
		return 0, err
	}
	// an account created here disappears if tx rolls back
	if res.RowsAffected == 0 {
		s.accounts.Store(code, id)
	}
	return id, nil
}

func (s *Service) Balance(ctx context.Context, code ledgerdomain.AccountCode) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN l.direction = ? THEN l.amount ELSE -l.amount END), 0)
		 FROM ledger_entry_lines l
		 JOIN ledger_accounts a ON a.id = l.account_id
		 WHERE a.code = ?`,
		ledgerdomain.Debit, code,
	).Scan(&balance).Error
	return balance, err
}
