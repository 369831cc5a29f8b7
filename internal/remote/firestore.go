package remote

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
)

const (
	usersCollection        = "users"
	transactionsCollection = "transactions"
)

// FirestoreStore keeps each user's records under users/{uid}/transactions.
type FirestoreStore struct {
	client *firestore.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewFirestoreStore connects to Firestore in projectID.
func NewFirestoreStore(ctx context.Context, projectID string, log zerolog.Logger) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewFirestoreStore: failed to create firestore client: %w", err)
	}
	return NewFirestoreStoreWithClient(client, log), nil
}

// NewFirestoreStoreWithClient wraps an existing client.
func NewFirestoreStoreWithClient(client *firestore.Client, log zerolog.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, log: log, now: time.Now}
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *FirestoreStore) check(uid string) error {
	if uid == "" {
		return ErrUserIDRequired
	}
	if s.client == nil {
		return ErrNotConfigured
	}
	return nil
}

func (s *FirestoreStore) transactions(uid string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(uid).Collection(transactionsCollection)
}

// ensureUserDocument touches users/{uid} so the parent document exists.
func (s *FirestoreStore) ensureUserDocument(ctx context.Context, uid string) error {
	_, err := s.client.Collection(usersCollection).Doc(uid).Set(ctx, map[string]interface{}{
		"lastActivityAt": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("ensureUserDocument: %w", err)
	}
	return nil
}

// CreateTransaction normalizes tx and adds it as a new document.
func (s *FirestoreStore) CreateTransaction(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error) {
	if err := s.check(uid); err != nil {
		return domain.Transaction{}, fmt.Errorf("CreateTransaction: %w", err)
	}

	if err := s.ensureUserDocument(ctx, uid); err != nil {
		return domain.Transaction{}, fmt.Errorf("CreateTransaction: %w", err)
	}

	record := BuildRemoteTransaction(uid, tx, s.now())
	ref, _, err := s.transactions(uid).Add(ctx, toDocument(record))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("CreateTransaction: failed to add document: %w", err)
	}
	record.ID = ref.ID

	s.log.Debug().
		Str("user_id", uid).
		Str("transaction_id", record.ID).
		Msg("Created remote transaction")
	return record, nil
}

// UpdateTransaction merges the normalized fields of tx into document id.
func (s *FirestoreStore) UpdateTransaction(ctx context.Context, uid, id string, tx domain.Transaction) (domain.Transaction, error) {
	if err := s.check(uid); err != nil {
		return domain.Transaction{}, fmt.Errorf("UpdateTransaction: %w", err)
	}
	if id == "" {
		return domain.Transaction{}, fmt.Errorf("UpdateTransaction: transaction id is required")
	}

	record := BuildRemoteTransaction(uid, tx, s.now())
	record.ID = id
	if _, err := s.transactions(uid).Doc(id).Set(ctx, toDocument(record), firestore.MergeAll); err != nil {
		return domain.Transaction{}, fmt.Errorf("UpdateTransaction: failed to set document %s: %w", id, err)
	}
	return record, nil
}

// DeleteTransaction removes document id.
func (s *FirestoreStore) DeleteTransaction(ctx context.Context, uid, id string) error {
	if err := s.check(uid); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	if id == "" {
		return fmt.Errorf("DeleteTransaction: transaction id is required")
	}
	if _, err := s.transactions(uid).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("DeleteTransaction: failed to delete document %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) query(uid string) firestore.Query {
	return s.transactions(uid).OrderBy("createdAt", firestore.Desc)
}

// FetchTransactions reads the user's records once, most recent first.
func (s *FirestoreStore) FetchTransactions(ctx context.Context, uid string) ([]domain.Transaction, error) {
	if err := s.check(uid); err != nil {
		return nil, fmt.Errorf("FetchTransactions: %w", err)
	}

	docs, err := s.query(uid).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("FetchTransactions: failed to query transactions: %w", err)
	}
	return s.fromSnapshots(docs), nil
}

// Subscribe streams the user's full record set on every change. Setup
// failures are reported through h.OnError before Subscribe returns.
func (s *FirestoreStore) Subscribe(ctx context.Context, uid string, h Handlers) Unsubscribe {
	if err := s.check(uid); err != nil {
		h.error(fmt.Errorf("Subscribe: %w", err))
		return noopUnsubscribe
	}

	ctx, cancel := context.WithCancel(ctx)
	it := s.query(uid).Snapshots(ctx)

	next := func() ([]domain.Transaction, error) {
		snap, err := it.Next()
		if err != nil {
			return nil, err
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return nil, err
		}
		return s.fromSnapshots(docs), nil
	}

	log := s.log.With().Str("user_id", uid).Logger()
	wrapped := Handlers{
		OnData: h.OnData,
		OnError: func(err error) {
			log.Warn().Err(err).Msg("Transaction subscription failed")
			h.error(fmt.Errorf("Subscribe: %w", err))
		},
	}

	sub := startSubscription(ctx, cancel, next, wrapped, it.Stop)
	return sub.Unsubscribe
}

func (s *FirestoreStore) fromSnapshots(docs []*firestore.DocumentSnapshot) []domain.Transaction {
	now := s.now()
	out := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc.Ref.ID, doc.Data(), now))
	}
	sortByCreatedAt(out)
	return out
}
