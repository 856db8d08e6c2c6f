// Package dbtest opens throwaway in-memory databases carrying the
// registration schema for package tests.
package dbtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE users (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_users_email ON users(email)`,
	`CREATE TABLE teams (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_email TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE events (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		fee BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'draft',
		registration_type TEXT NOT NULL DEFAULT 'individual',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_events_slug ON events(slug)`,
	`CREATE TABLE registrations (
		id BIGINT PRIMARY KEY,
		event_id BIGINT NOT NULL,
		participant_kind TEXT NOT NULL,
		participant_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		payment_id BIGINT,
		refund_attempted BOOLEAN NOT NULL DEFAULT FALSE,
		refund_error TEXT,
		cancelled_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_registrations_active_participant
		ON registrations(event_id, participant_kind, participant_id)
		WHERE status IN ('pending', 'confirmed', 'waitlisted')`,
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		registration_id BIGINT,
		event_id BIGINT NOT NULL,
		participant_kind TEXT NOT NULL,
		participant_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		mode TEXT NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT,
		refund_transaction_id TEXT,
		refund_reason TEXT,
		failure_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		refunded_at DATETIME
	)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payment_id BIGINT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event_id ON payment_events(provider, provider_event_id)`,
	`CREATE TABLE payment_compensations (
		id BIGINT PRIMARY KEY,
		payment_id BIGINT NOT NULL,
		event_id BIGINT NOT NULL,
		provider TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		refund_transaction_id TEXT,
		next_attempt_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payment_compensations_transaction ON payment_compensations(provider, transaction_id)`,
	`CREATE TABLE ledger_accounts (
		id BIGINT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_accounts_code ON ledger_accounts(code)`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id BIGINT NOT NULL,
		event_id BIGINT NOT NULL,
		currency TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_source ON ledger_entries(source_type, source_id)`,
	`CREATE TABLE ledger_entry_lines (
		id BIGINT PRIMARY KEY,
		ledger_entry_id BIGINT NOT NULL,
		account_id BIGINT NOT NULL,
		direction TEXT NOT NULL,
		amount BIGINT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh shared-cache in-memory database limited to one
// connection, so callers inside a transaction must keep using tx.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	return db
}

// Node returns a snowflake node for test fixtures.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(int64(seq.Add(1) % 1024))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// EventFixture describes an event row seeded directly into the database.
type EventFixture struct {
	Name             string
	Capacity         int
	Fee              int64
	Currency         string
	IsPaid           bool
	Status           string
	RegistrationType string
}

func SeedEvent(t testing.TB, db *gorm.DB, node *snowflake.Node, f EventFixture) snowflake.ID {
	t.Helper()

	id := node.Generate()
	if f.Name == "" {
		f.Name = "Event " + id.String()
	}
	if f.Currency == "" {
		f.Currency = "USD"
	}
	if f.Status == "" {
		f.Status = "published"
	}
	if f.RegistrationType == "" {
		f.RegistrationType = "individual"
	}
	now := time.Now().UTC()
	err := db.WithContext(context.Background()).Exec(
		`INSERT INTO events (id, name, slug, capacity, fee, currency, is_paid, status, registration_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.Name, "event-"+id.String(), f.Capacity, f.Fee, f.Currency, f.IsPaid, f.Status, f.RegistrationType, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return id
}

func SeedUser(t testing.TB, db *gorm.DB, node *snowflake.Node) snowflake.ID {
	t.Helper()

	id := node.Generate()
	err := db.Exec(
		`INSERT INTO users (id, email, display_name, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, "user-"+id.String()+"@example.com", "User "+id.String(), true, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func SeedTeam(t testing.TB, db *gorm.DB, node *snowflake.Node) snowflake.ID {
	t.Helper()

	id := node.Generate()
	err := db.Exec(
		`INSERT INTO teams (id, name, contact_email, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, "Team "+id.String(), "team-"+id.String()+"@example.com", true, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed team: %v", err)
	}
	return id
}

// Count runs a COUNT(*) query and fails the test on error.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
