package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Source names what caused an entry. An entry is unique per source and id.
type Source string

const (
	SourcePayment Source = "payment"
	SourceRefund  Source = "refund"
)

type AccountCode string

const (
	AccountCash    AccountCode = "cash"
	AccountRevenue AccountCode = "registration_revenue"
	AccountRefunds AccountCode = "refunds"
)

// Chart is the fixed chart of accounts, in display order.
var Chart = []struct {
	Code AccountCode
	Name string
}{
	{AccountCash, "Cash"},
	{AccountRevenue, "Registration Revenue"},
	{AccountRefunds, "Refunds"},
}

func AccountName(code AccountCode) string {
	for _, a := range Chart {
		if a.Code == code {
			return a.Name
		}
	}
	return string(code)
}

type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Code      AccountCode  `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_code"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Account) TableName() string { return "ledger_accounts" }

// Entry is the header of one balanced journal posting.
type Entry struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	SourceType Source       `gorm:"type:text;not null"`
	SourceID   snowflake.ID `gorm:"not null"`
	EventID    snowflake.ID `gorm:"not null"`
	Currency   string       `gorm:"type:text;not null"`
	OccurredAt time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

func (Entry) TableName() string { return "ledger_entries" }

type Line struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID `gorm:"not null;index"`
	AccountID     snowflake.ID `gorm:"not null;index"`
	Direction     Direction    `gorm:"type:text;not null"`
	Amount        int64        `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null"`
}

func (Line) TableName() string { return "ledger_entry_lines" }

type Posting struct {
	Account   AccountCode
	Direction Direction
	Amount    int64
}

// Journal is a request to post one entry.
type Journal struct {
	Source     Source
	SourceID   snowflake.ID
	EventID    snowflake.ID
	Currency   string
	OccurredAt time.Time
	Postings   []Posting
}

// Normalize trims and upper-cases the currency, lower-cases directions and
// checks that the postings balance and move a positive amount.
func (j Journal) Normalize() (Journal, error) {
	j.Source = Source(strings.TrimSpace(string(j.Source)))
	j.Currency = strings.ToUpper(strings.TrimSpace(j.Currency))
	switch {
	case j.Source == "":
		return j, ErrInvalidSourceType
	case j.SourceID == 0:
		return j, ErrInvalidSourceID
	case j.Currency == "":
		return j, ErrInvalidCurrency
	case j.OccurredAt.IsZero():
		return j, ErrInvalidOccurredAt
	case len(j.Postings) < 2:
		return j, ErrInvalidEntryLines
	}

	postings := make([]Posting, len(j.Postings))
	var net, debits int64
	for i, p := range j.Postings {
		if p.Amount < 0 {
			return j, ErrInvalidLineAmount
		}
		p.Direction = Direction(strings.ToLower(strings.TrimSpace(string(p.Direction))))
		switch p.Direction {
		case Debit:
			net += p.Amount
			debits += p.Amount
		case Credit:
			net -= p.Amount
		default:
			return j, ErrInvalidLineDirection
		}
		postings[i] = p
	}
	if net != 0 {
		return j, ErrUnbalancedEntry
	}
	if debits == 0 {
		return j, ErrInvalidLineAmount
	}
	j.Postings = postings
	j.OccurredAt = j.OccurredAt.UTC()
	return j, nil
}

// Settlement is money moving for one payment.
type Settlement struct {
	PaymentID snowflake.ID
	EventID   snowflake.ID
	Amount    int64
	Currency  string
	At        time.Time
}

// PaymentJournal debits cash and credits registration revenue.
func (s Settlement) PaymentJournal() Journal {
	return s.journal(SourcePayment, AccountCash, AccountRevenue)
}

// RefundJournal debits refunds and credits cash.
func (s Settlement) RefundJournal() Journal {
	return s.journal(SourceRefund, AccountRefunds, AccountCash)
}

func (s Settlement) journal(source Source, debit, credit AccountCode) Journal {
	return Journal{
		Source:     source,
		SourceID:   s.PaymentID,
		EventID:    s.EventID,
		Currency:   s.Currency,
		OccurredAt: s.At,
		Postings: []Posting{
			{Account: debit, Direction: Debit, Amount: s.Amount},
			{Account: credit, Direction: Credit, Amount: s.Amount},
		},
	}
}
