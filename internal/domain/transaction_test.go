package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimestamp struct{ t time.Time }

func (f fakeTimestamp) AsTime() time.Time { return f.t }

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"INCOME", TypeIncome, false},
		{"income", TypeIncome, false},
		{"  Expense ", TypeExpense, false},
		{"transfer", TypeTransfer, false},
		{"refund", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, TypeExpense, NormalizeType(""))
	assert.Equal(t, TypeIncome, NormalizeType("income"))
	assert.Equal(t, Type("REFUND"), NormalizeType("refund"))
}

func TestSignedAmount(t *testing.T) {
	assert.Equal(t, -42.0, Transaction{Amount: 42, Type: TypeExpense}.SignedAmount())
	assert.Equal(t, -42.0, Transaction{Amount: -42, Type: "expense"}.SignedAmount())
	assert.Equal(t, 10.0, Transaction{Amount: -10, Type: TypeIncome}.SignedAmount())
	assert.Equal(t, -3.0, Transaction{Amount: 3}.SignedAmount(), "missing type counts as expense")
}

func TestNormalizeAmount(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeAmount(math.NaN()))
	assert.Equal(t, 0.0, NormalizeAmount(math.Inf(1)))
	assert.Equal(t, 12.5, NormalizeAmount(12.5))
	assert.Equal(t, 12.5, ParseAmount(" 12.5 "))
	assert.Equal(t, 0.0, ParseAmount("twelve"))
}

func TestNormalizeCreatedAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  time.Time
	}{
		{"time value", fixed, fixed},
		{"time pointer", &fixed, fixed},
		{"nil time pointer", (*time.Time)(nil), now},
		{"remote timestamp", fakeTimestamp{fixed}, fixed},
		{"iso string", "2024-01-02T03:04:05.000Z", fixed},
		{"date only", "2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"garbage string", "yesterday", now},
		{"zero time", time.Time{}, now},
		{"number", 12345, now},
		{"nil", nil, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NormalizeCreatedAt(tt.input, now)))
		})
	}
}

func TestTransactionUnmarshal_LooseShapes(t *testing.T) {
	raw := `{"id":"a","amount":"12.50","type":"income","date":"2024-03-04","synced":true}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))

	assert.Equal(t, "a", tx.ID)
	assert.Equal(t, 12.5, tx.Amount)
	assert.Equal(t, Type("income"), tx.Type, "type is passed through verbatim")
	assert.True(t, tx.Synced)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), tx.CreatedAt)
}

func TestTransactionUnmarshal_CreatedAtWins(t *testing.T) {
	raw := `{"id":"a","createdAt":"2024-03-05T10:00:00.000Z","date":"2024-01-01","time":1700000000000}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), tx.CreatedAt)
}

func TestTransactionUnmarshal_TimestampFallbacks(t *testing.T) {
	var millis Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m","time":1700000000000}`), &millis))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), millis.CreatedAt)

	var exported Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"e","timestamp":{"seconds":1700000000,"nanoseconds":0}}`), &exported))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), exported.CreatedAt)
}

func TestTransactionRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	in := Transaction{ID: "x", UserID: "u", Amount: 12.5, Type: TypeIncome, CreatedAt: created, Synced: true}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"date"`)

	var out Transaction
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestTransactionUnmarshal_ZeroCreatedAtStaysZero(t *testing.T) {
	data, err := json.Marshal(Transaction{ID: "z"})
	require.NoError(t, err)

	var out Transaction
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.CreatedAt.IsZero())
}

func TestNewLocalID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewLocalID(now)

	assert.True(t, strings.HasPrefix(id, "local-1700000000123-"))
	assert.True(t, IsLocalID(id))
	assert.False(t, IsLocalID("abc123"))
	assert.NotEqual(t, id, NewLocalID(now))
}

func TestIdentity(t *testing.T) {
	anon := Anonymous()
	assert.False(t, anon.IsAuthenticated())
	assert.Equal(t, LocalUserID, anon.StorageKey())
	assert.Equal(t, "", anon.UserID())

	user := Authenticated(" uid-1 ")
	assert.True(t, user.IsAuthenticated())
	assert.Equal(t, "uid-1", user.StorageKey())

	assert.False(t, Authenticated("   ").IsAuthenticated())
}

func TestIdentity_LocalUserIDIsNeverSignedIn(t *testing.T) {
	id := Authenticated(LocalUserID)
	assert.False(t, id.IsAuthenticated())
	assert.Equal(t, LocalUserID, id.StorageKey())

	_, err := ParseUserID(" " + LocalUserID + " ")
	assert.ErrorIs(t, err, ErrReservedUserID)

	user, err := ParseUserID("uid-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.StorageKey())

	anon, err := ParseUserID("")
	require.NoError(t, err)
	assert.False(t, anon.IsAuthenticated())
}

func TestTransactionPatchApply(t *testing.T) {
	base := Transaction{ID: "a", UserID: "u", Amount: 1, Type: TypeExpense, Note: "old"}
	amount := 7.25
	note := "new"
	synced := true

	got := TransactionPatch{Amount: &amount, Note: &note, Synced: &synced}.Apply(base)

	assert.Equal(t, "a", got.ID)
	assert.Equal(t, 7.25, got.Amount)
	assert.Equal(t, "new", got.Note)
	assert.Equal(t, TypeExpense, got.Type)
	assert.True(t, got.Synced)
}

func TestNormalizeBankAccount(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	got := NormalizeBankAccount(BankAccount{Balance: 10}, now)

	assert.True(t, strings.HasPrefix(got.ID, "local-bank-1700000000000-"))
	assert.Equal(t, "Unnamed account", got.Name)
	assert.Equal(t, "Account", got.Type)
	assert.Equal(t, "USD", got.Currency)
	require.NotNil(t, got.StartingBalance)
	assert.Equal(t, 10.0, *got.StartingBalance)
}
