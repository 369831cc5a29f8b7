package remote

import (
	"math"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRemoteTransaction(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	got := BuildRemoteTransaction("u1", domain.Transaction{
		ID:     "local-1-abc",
		UserID: "other",
		Amount: math.NaN(),
		Type:   "income",
	}, now)

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 0.0, got.Amount)
	assert.Equal(t, domain.TypeIncome, got.Type)
	assert.True(t, now.Equal(got.CreatedAt), "missing createdAt defaults to now")
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, now.Equal(*got.UpdatedAt))
}

func TestBuildRemoteTransaction_TypePolicy(t *testing.T) {
	now := time.Now()
	assert.Equal(t, domain.TypeExpense, BuildRemoteTransaction("u", domain.Transaction{}, now).Type)
	assert.Equal(t, domain.Type("REFUND"), BuildRemoteTransaction("u", domain.Transaction{Type: "refund"}, now).Type)
}

func TestDocumentRoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	updated := created.Add(time.Minute)
	in := domain.Transaction{
		ID:             "doc-1",
		UserID:         "u1",
		Amount:         12.5,
		Type:           domain.TypeExpense,
		Category:       "Food",
		Note:           "lunch",
		PaymentMethod:  "Card",
		PaymentAccount: "Main Checking",
		Currency:       "USD",
		CreatedAt:      created,
		UpdatedAt:      &updated,
		Synced:         true,
	}

	doc := toDocument(in)
	assert.Equal(t, "2024-01-02T03:04:05.000Z", doc["createdAt"])
	assert.NotContains(t, doc, "synced")
	assert.NotContains(t, doc, "id")

	out := fromDocument("doc-1", doc, time.Now())
	assert.Equal(t, in, out)
}

func TestFromDocument_LegacyShapes(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stamp := time.Date(2023, 12, 24, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		data map[string]interface{}
		want time.Time
	}{
		{"native timestamp", map[string]interface{}{"createdAt": stamp}, stamp},
		{"date string", map[string]interface{}{"date": "2023-12-24"}, time.Date(2023, 12, 24, 0, 0, 0, 0, time.UTC)},
		{"millis int", map[string]interface{}{"time": stamp.UnixMilli()}, stamp},
		{"millis float", map[string]interface{}{"timestamp": float64(stamp.UnixMilli())}, stamp},
		{"createdAt wins", map[string]interface{}{"createdAt": stamp, "date": "2020-01-01"}, stamp},
		{"nothing usable", map[string]interface{}{"createdAt": "soon"}, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromDocument("x", tt.data, now)
			assert.True(t, tt.want.Equal(got.CreatedAt), "got %s", got.CreatedAt)
		})
	}
}

func TestFromDocument_LooseAmountAndType(t *testing.T) {
	got := fromDocument("x", map[string]interface{}{"amount": "7.25", "type": "transfer"}, time.Now())
	assert.Equal(t, 7.25, got.Amount)
	assert.Equal(t, domain.TypeTransfer, got.Type)
	assert.True(t, got.Synced)

	got = fromDocument("y", map[string]interface{}{"amount": int64(3)}, time.Now())
	assert.Equal(t, 3.0, got.Amount)
	assert.Equal(t, domain.TypeExpense, got.Type)
}
