// Package report filters, totals and exports transaction lists.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// Period selects a time window relative to now.
type Period string

const (
	PeriodAll    Period = "ALL"
	PeriodToday  Period = "TODAY"
	PeriodWeek   Period = "WEEK"
	PeriodMonth  Period = "MONTH"
	PeriodCustom Period = "CUSTOM"
)

const (
	// All matches every value of a string criterion.
	All = "ALL"

	defaultCurrency       = "USD"
	defaultPaymentMethod  = "Other"
	defaultPaymentAccount = "Unspecified"
)

// ParsePeriod maps s onto a Period. Empty input means PeriodAll.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodToday, PeriodWeek, PeriodMonth, PeriodCustom:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Filter narrows a transaction list. Empty or "ALL" string criteria and nil
// amount bounds match everything.
type Filter struct {
	// Query is matched case-insensitively against category, note, payment
	// method and payment account.
	Query         string
	Type          domain.Type
	PaymentMethod string
	Currency      string
	Period        Period
	MinAmount     *float64
	MaxAmount     *float64
	// Start and End bound a CUSTOM period. Zero values mean today.
	Start time.Time
	End   time.Time
}

// Range returns the window selected by the filter's period, in now's
// location. ok is false when the period is unbounded.
func (f Filter) Range(now time.Time) (from, to time.Time, ok bool) {
	switch f.Period {
	case PeriodToday:
		return startOfDay(now), endOfDay(now), true
	case PeriodWeek:
		start := startOfDay(now)
		return start.AddDate(0, 0, -int(start.Weekday())), endOfDay(now), true
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), endOfDay(now), true
	case PeriodCustom:
		start, end := now, now
		if !f.Start.IsZero() {
			start = f.Start.In(now.Location())
		}
		if !f.End.IsZero() {
			end = f.End.In(now.Location())
		}
		if startOfDay(start).After(startOfDay(end)) {
			start, end = end, start
		}
		return startOfDay(start), endOfDay(end), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Normalize fills the display defaults used for filtering and export:
// upper-case type and currency, and placeholder payment fields.
func Normalize(tx domain.Transaction) domain.Transaction {
	tx.Type = domain.NormalizeType(tx.Type)
	tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	if tx.Currency == "" {
		tx.Currency = defaultCurrency
	}
	if tx.PaymentMethod == "" {
		tx.PaymentMethod = defaultPaymentMethod
	}
	if tx.PaymentAccount == "" {
		tx.PaymentAccount = defaultPaymentAccount
	}
	return tx
}

// Apply returns the normalized items that pass f, most recent first.
func Apply(items []domain.Transaction, f Filter, now time.Time) []domain.Transaction {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	from, to, bounded := f.Range(now)

	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		tx := Normalize(item)

		if isSet(string(f.Type)) && domain.NormalizeType(f.Type) != tx.Type {
			continue
		}
		if isSet(f.PaymentMethod) && tx.PaymentMethod != f.PaymentMethod {
			continue
		}
		if isSet(f.Currency) && tx.Currency != strings.ToUpper(f.Currency) {
			continue
		}

		abs := math.Abs(tx.Amount)
		if f.MinAmount != nil && abs < *f.MinAmount {
			continue
		}
		if f.MaxAmount != nil && abs > *f.MaxAmount {
			continue
		}

		if bounded && (tx.CreatedAt.Before(from) || tx.CreatedAt.After(to)) {
			continue
		}

		if query != "" {
			haystack := strings.ToLower(strings.Join([]string{tx.Category, tx.Note, tx.PaymentMethod, tx.PaymentAccount}, " "))
			if !strings.Contains(haystack, query) {
				continue
			}
		}

		out = append(out, tx)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// isSet reports whether a string criterion is neither empty nor ALL.
func isSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, All)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}
