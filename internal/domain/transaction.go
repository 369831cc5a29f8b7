package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ISOLayout is the canonical wire format for event times (millisecond precision, UTC).
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// Type is the transaction kind. The storage layer accepts any string;
// ParseType and NormalizeType enforce the closed set at the boundaries.
type Type string

const (
	TypeIncome   Type = "INCOME"
	TypeExpense  Type = "EXPENSE"
	TypeTransfer Type = "TRANSFER"
)

// ErrUnknownType is returned by ParseType for values outside the closed set.
var ErrUnknownType = errors.New("unknown transaction type")

// ParseType maps s onto one of the known types, ignoring case and surrounding whitespace.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// NormalizeType upper-cases t and defaults an empty value to EXPENSE.
// Unknown values are kept (upper-cased) so that nothing is silently rewritten.
func NormalizeType(t Type) Type {
	upper := Type(strings.ToUpper(strings.TrimSpace(string(t))))
	if upper == "" {
		return TypeExpense
	}
	return upper
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

// Sign is -1 for expenses and +1 for everything else.
func (t Type) Sign() float64 {
	if NormalizeType(t) == TypeExpense {
		return -1
	}
	return 1
}

// Transaction is a single income/expense/transfer record as it is cached on
// the device and stored remotely.
type Transaction struct {
	ID             string     `json:"id" yaml:"id"`
	UserID         string     `json:"userId" yaml:"userId"`
	Amount         float64    `json:"amount" yaml:"amount"`
	Type           Type       `json:"type" yaml:"type"`
	Category       string     `json:"category,omitempty" yaml:"category,omitempty"`
	Note           string     `json:"note,omitempty" yaml:"note,omitempty"`
	PaymentMethod  string     `json:"paymentMethod,omitempty" yaml:"paymentMethod,omitempty"`
	PaymentAccount string     `json:"paymentAccount,omitempty" yaml:"paymentAccount,omitempty"`
	Currency       string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`

	// Synced is only meaningful in the local cache.
	Synced bool `json:"synced" yaml:"synced"`
}

// SignedAmount returns |Amount| with the sign implied by Type.
func (t Transaction) SignedAmount() float64 {
	return math.Abs(t.Amount) * t.Type.Sign()
}

// UnmarshalJSON accepts the loosely typed shapes found in stored records:
// numeric strings for amount, and date/time/timestamp as fallbacks for createdAt.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	aux := struct {
		*plain
		Amount    json.RawMessage `json:"amount"`
		CreatedAt json.RawMessage `json:"createdAt"`
		Date      json.RawMessage `json:"date"`
		Time      json.RawMessage `json:"time"`
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t.Amount = decodeAmount(aux.Amount)
	t.CreatedAt = time.Time{}
	for _, raw := range []json.RawMessage{aux.CreatedAt, aux.Date, aux.Time, aux.Timestamp} {
		if ts, ok := decodeEventTime(raw); ok {
			t.CreatedAt = ts
			break
		}
	}
	return nil
}

// NormalizeAmount maps NaN and infinities to zero.
func NormalizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseAmount converts free-form input to an amount; invalid input yields 0.
func ParseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return NormalizeAmount(v)
}

// NormalizeCreatedAt resolves an event time from the shapes callers hand us.
// Anything unrecognised, unparsable or zero falls back to now. The result is UTC.
func NormalizeCreatedAt(v any, now time.Time) time.Time {
	var ts time.Time
	switch val := v.(type) {
	case time.Time:
		ts = val
	case *time.Time:
		if val != nil {
			ts = *val
		}
	case interface{ AsTime() time.Time }:
		ts = val.AsTime()
	case string:
		ts, _ = parseTimeString(val)
	}
	if ts.IsZero() {
		return now.UTC()
	}
	return ts.UTC()
}

// FormatISO renders t in ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// NewLocalID builds an id for a record created on the device.
func NewLocalID(now time.Time) string {
	return fmt.Sprintf("local-%d-%s", now.UnixMilli(), randomSuffix(8))
}

// IsLocalID reports whether id was assigned on the device.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, "local-")
}

func randomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:n]
}

func decodeAmount(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return NormalizeAmount(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseAmount(s)
	}
	return 0
}

func decodeEventTime(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		return parseTimeString(s)
	case '{':
		// Exported document-store timestamps.
		var ts struct {
			Seconds     int64 `json:"seconds"`
			Nanoseconds int64 `json:"nanoseconds"`
		}
		if err := json.Unmarshal(raw, &ts); err != nil || (ts.Seconds == 0 && ts.Nanoseconds == 0) {
			return time.Time{}, false
		}
		return time.Unix(ts.Seconds, ts.Nanoseconds).UTC(), true
	default:
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil && !ts.IsZero() {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
