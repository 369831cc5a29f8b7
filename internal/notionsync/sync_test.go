package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockNotion struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error
	QueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	created  []notionapi.Properties
	archived []string
}

func (m *MockNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, properties)
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	return &notionapi.Page{ID: notionapi.ObjectID("page-new")}, nil
}

func (m *MockNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *MockNotion) ArchivePage(ctx context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	return nil
}

func (m *MockNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, req)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func pageFor(pageID, txID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			PropTransactionID: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: txID}},
			},
		},
	}
}

func testTransactions() []domain.Transaction {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	return []domain.Transaction{
		{ID: "r1", Amount: 12.5, Type: domain.TypeExpense, Category: "Food", CreatedAt: created, Synced: true},
		{ID: "r2", Amount: 2500, Type: domain.TypeIncome, CreatedAt: created, Synced: true},
		{ID: "local-1-abc", Amount: 1, CreatedAt: created},
	}
}

func TestSyncTransactions_CreatesMissingPages(t *testing.T) {
	mock := &MockNotion{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageFor("p1", "r1")}}, nil
		},
	}

	stats, err := SyncTransactions(context.Background(), mock, "db", testTransactions(), Options{})
	require.NoError(t, err)

	assert.Equal(t, Stats{Created: 1, Skipped: 2}, stats)
	require.Len(t, mock.created, 1)
	assert.Equal(t, "r2", plainText(mock.created[0][PropTransactionID].(notionapi.RichTextProperty).RichText))
}

func TestSyncTransactions_DryRunWritesNothing(t *testing.T) {
	mock := &MockNotion{}

	stats, err := SyncTransactions(context.Background(), mock, "db", testTransactions(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Created)
	assert.Empty(t, mock.created)
}

func TestSyncTransactions_Paginates(t *testing.T) {
	calls := 0
	mock := &MockNotion{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			if req.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageFor("p1", "r1")}, HasMore: true, NextCursor: "next"}, nil
			}
			assert.Equal(t, notionapi.Cursor("next"), req.StartCursor)
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageFor("p2", "r2")}}, nil
		},
	}

	stats, err := SyncTransactions(context.Background(), mock, "db", testTransactions(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, stats.Created)
	assert.Empty(t, mock.created)
}

func TestSyncTransactions_PruneArchivesStalePages(t *testing.T) {
	mock := &MockNotion{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageFor("p1", "r1"), pageFor("p9", "gone")}}, nil
		},
	}

	stats, err := SyncTransactions(context.Background(), mock, "db", testTransactions(), Options{Prune: true})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Archived)
	assert.Equal(t, []string{"p9"}, mock.archived)
}

func TestSyncTransactions_PageFailuresAreCounted(t *testing.T) {
	mock := &MockNotion{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("rate limited")
		},
	}

	stats, err := SyncTransactions(context.Background(), mock, "db", testTransactions(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 0, stats.Created)
}

func TestSyncTransactions_QueryFailureAborts(t *testing.T) {
	mock := &MockNotion{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("unauthorized")
		},
	}

	_, err := SyncTransactions(context.Background(), mock, "db", testTransactions(), Options{})
	assert.Error(t, err)
	assert.Empty(t, mock.created)
}

func TestTransactionToNotionProperties(t *testing.T) {
	props := TransactionToNotionProperties(domain.Transaction{ID: "r1", Amount: 12.5, Type: "expense", Note: "lunch"})

	assert.Equal(t, "EXPENSE", props[PropType].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, 12.5, props[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, -12.5, props[PropSignedAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "USD", props[PropCurrency].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "EXPENSE", plainText(props[PropTitle].(notionapi.TitleProperty).Title))
	assert.NotContains(t, props, PropCategory)
	assert.Contains(t, props, PropNote)
}
