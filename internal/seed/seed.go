package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/config"
	ledgerdomain "github.com/smallbiznis/eventreg/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	demoUserEmail    = "demo@eventreg.local"
	demoUserDisplay  = "Demo Participant"
	demoTeamName     = "Demo Team"
	demoTeamEmail    = "team@eventreg.local"
	demoFreeSlug     = "demo-meetup"
	demoPaidSlug     = "demo-workshop"
	demoPaidFee      = 2500
	demoPaidCurrency = "USD"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

// Run seeds startup data after migrations. Demo rows are only written when
// SEED_DEMO is set.
func Run(db *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
	log = log.Named("seed")
	if !db.Migrator().HasTable("ledger_accounts") {
		log.Warn("seed skipped, schema not migrated")
		return nil
	}
	if err := EnsureLedgerAccounts(db, node); err != nil {
		return err
	}
	if !cfg.SeedDemo {
		return nil
	}
	if cfg.IsProduction() {
		log.Warn("demo seed skipped in production")
		return nil
	}
	if err := EnsureDemoData(db, node); err != nil {
		return err
	}
	log.Info("demo data ready")
	return nil
}

// EnsureLedgerAccounts creates the chart of accounts registration postings use.
func EnsureLedgerAccounts(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()
	for _, account := range ledgerdomain.Chart {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO ledger_accounts (id, code, name, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (code) DO NOTHING`,
			node.Generate(),
			account.Code,
			account.Name,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// EnsureDemoData seeds one user, one team, a free individual event and a
// paid team event. Rows are matched by email or slug so reruns are no-ops.
func EnsureDemoData(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		if err := tx.Exec(
			`INSERT INTO users (id, email, display_name, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (email) DO NOTHING`,
			node.Generate(), demoUserEmail, demoUserDisplay, true, now,
		).Error; err != nil {
			return err
		}

		var teams int64
		if err := tx.Raw(`SELECT COUNT(*) FROM teams WHERE contact_email = ?`, demoTeamEmail).Scan(&teams).Error; err != nil {
			return err
		}
		if teams == 0 {
			if err := tx.Exec(
				`INSERT INTO teams (id, name, contact_email, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
				node.Generate(), demoTeamName, demoTeamEmail, true, now,
			).Error; err != nil {
				return err
			}
		}

		events := []struct {
			name             string
			slug             string
			capacity         int
			fee              int64
			isPaid           bool
			registrationType string
		}{
			{"Demo Meetup", demoFreeSlug, 50, 0, false, "individual"},
			{"Demo Workshop", demoPaidSlug, 10, demoPaidFee, true, "team"},
		}
		for _, e := range events {
			if err := tx.Exec(
				`INSERT INTO events (id, name, slug, capacity, fee, currency, is_paid, status, registration_type, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (slug) DO NOTHING`,
				node.Generate(), e.name, e.slug, e.capacity, e.fee, demoPaidCurrency, e.isPaid, "published", e.registrationType, now, now,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
