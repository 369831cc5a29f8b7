package remote

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// BuildRemoteTransaction normalizes tx into the shape written remotely:
// amount coerced to a finite number, type upper-cased (empty means EXPENSE),
// createdAt defaulted to now and updatedAt stamped with now.
func BuildRemoteTransaction(uid string, tx domain.Transaction, now time.Time) domain.Transaction {
	tx.UserID = uid
	tx.Amount = domain.NormalizeAmount(tx.Amount)
	tx.Type = domain.NormalizeType(tx.Type)
	tx.CreatedAt = domain.NormalizeCreatedAt(tx.CreatedAt, now)
	updated := now.UTC()
	tx.UpdatedAt = &updated
	tx.Synced = true
	return tx
}

// toDocument renders the stored fields. Event times are ISO strings so that
// ordering by createdAt is lexical and matches chronological order.
func toDocument(tx domain.Transaction) map[string]interface{} {
	doc := map[string]interface{}{
		"userId":         tx.UserID,
		"amount":         tx.Amount,
		"type":           string(tx.Type),
		"category":       tx.Category,
		"note":           tx.Note,
		"paymentMethod":  tx.PaymentMethod,
		"paymentAccount": tx.PaymentAccount,
		"currency":       tx.Currency,
		"createdAt":      domain.FormatISO(tx.CreatedAt),
	}
	if tx.UpdatedAt != nil {
		doc["updatedAt"] = domain.FormatISO(*tx.UpdatedAt)
	}
	return doc
}

// fromDocument maps a stored document back to a record. Older documents may
// carry date/time/timestamp instead of createdAt.
func fromDocument(id string, data map[string]interface{}, now time.Time) domain.Transaction {
	tx := domain.Transaction{
		ID:             id,
		UserID:         stringField(data, "userId"),
		Amount:         amountField(data["amount"]),
		Type:           domain.NormalizeType(domain.Type(stringField(data, "type"))),
		Category:       stringField(data, "category"),
		Note:           stringField(data, "note"),
		PaymentMethod:  stringField(data, "paymentMethod"),
		PaymentAccount: stringField(data, "paymentAccount"),
		Currency:       stringField(data, "currency"),
		Synced:         true,
	}

	tx.CreatedAt = now.UTC()
	for _, key := range []string{"createdAt", "date", "time", "timestamp"} {
		if ts, ok := timeField(data[key]); ok {
			tx.CreatedAt = ts
			break
		}
	}
	if ts, ok := timeField(data["updatedAt"]); ok {
		tx.UpdatedAt = &ts
	}
	return tx
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func amountField(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return domain.NormalizeAmount(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		return domain.ParseAmount(n)
	default:
		return 0
	}
}

func timeField(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val.UTC(), true
	case string:
		if strings.TrimSpace(val) == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC(), true
		}
		ts := domain.NormalizeCreatedAt(val, time.Time{})
		return ts, !ts.IsZero()
	case int64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(val).UTC(), true
	case float64:
		if val <= 0 || math.IsNaN(val) || math.IsInf(val, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// sortByCreatedAt orders records most recent first.
func sortByCreatedAt(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
