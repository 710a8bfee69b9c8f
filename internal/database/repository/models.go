package repository

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// UnknownPayee is shown when a transaction has no payee row.
const UnknownPayee = "Unknown"

// Transaction is a read-only view of one ZTRANSACTION row and its joins.
type Transaction struct {
	ID     int64
	Date   civil.Date
	Payee  string
	Amount decimal.Decimal

	Category    *string
	Memo        *string
	Reference   *string
	CheckNumber *string
	AccountID   int64

	// Filled only when TransactionFilters.WithAccountContext is set.
	AccountName *string
	AccountType *string
	FINote      *string

	// DateMissing marks rows with neither a posted nor an entered timestamp.
	// Date then holds the day the row was read, not a real transaction date.
	DateMissing bool
}

// DateRange is an interval of calendar days, ends included. A zero Start or
// End leaves that side unbounded.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// Contains reports whether d lies within the range.
func (r DateRange) Contains(d civil.Date) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	return r.End.IsZero() || !d.After(r.End)
}

// Str dereferences an optional text field.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
