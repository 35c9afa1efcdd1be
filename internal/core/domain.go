package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly    Pattern = "Weekly"
	BiWeekly  Pattern = "Bi-Weekly"
	Monthly   Pattern = "Monthly"
	Yearly    Pattern = "Yearly"
	Irregular Pattern = "Irregular"
)

const (
	MatchFuzzy MatchMode = "fuzzy"
	MatchExact MatchMode = "exact"
)

type (
	// Pattern is the cadence label derived from the median gap of a group.
	Pattern string

	// MatchMode reports which vendor matching capability produced a grouping.
	MatchMode string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is one outgoing ledger record as supplied by a source.
	Transaction struct {
		Date        Date
		Description string
		Amount      Money
	}

	// EnrichedTransaction is a transaction annotated with the vendor group
	// and amount bucket it was assigned to.
	EnrichedTransaction struct {
		Transaction
		VendorKey    string
		BucketAmount decimal.Decimal
	}

	// Cadence is the periodicity of a recurring group.
	Cadence struct {
		MedianGapDays int
		Pattern       Pattern
	}

	// RecurringGroup is one row of the recurring payments table.
	RecurringGroup struct {
		VendorKey string
		Amount    decimal.Decimal
		Count     int
		FirstDate Date
		LastDate  Date
		Cadence   *Cadence // nil when fewer than two occurrences exist
	}

	// Report is the outcome of one analysis run, handed to report sinks.
	Report struct {
		RunID        string
		GeneratedAt  time.Time
		MatchMode    MatchMode
		Groups       []RecurringGroup
		Transactions []EnrichedTransaction
	}
)

var (
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// DaysUntil returns the number of whole calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(DateOf(other.Time).Sub(DateOf(d.Time).Time).Hours() / 24)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	return t.Amount.Validate()
}

// HasCadence reports whether a median gap could be computed for the group.
func (g RecurringGroup) HasCadence() bool {
	return g.Cadence != nil
}
