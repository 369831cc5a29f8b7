package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/google/uuid"
)

// ErrUnavailable is returned by a MemoryStore switched offline.
var ErrUnavailable = errors.New("remote store unavailable")

// MemoryStore is an in-process TransactionStore. Subscribers are notified
// synchronously after every write.
type MemoryStore struct {
	mu          sync.Mutex
	notifyMu    sync.Mutex
	records     map[string]map[string]domain.Transaction
	subscribers map[string]map[int]Handlers
	nextSub     int
	offline     bool
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]map[string]domain.Transaction),
		subscribers: make(map[string]map[int]Handlers),
		now:         time.Now,
	}
}

// SetOffline makes every subsequent call fail with ErrUnavailable. Going
// offline also fails the open subscriptions.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	var failed []Handlers
	if offline {
		for uid, subs := range m.subscribers {
			for _, h := range subs {
				failed = append(failed, h)
			}
			delete(m.subscribers, uid)
		}
	}
	m.mu.Unlock()

	for _, h := range failed {
		h.error(ErrUnavailable)
	}
}

func (m *MemoryStore) checkLocked(uid string) error {
	if uid == "" {
		return ErrUserIDRequired
	}
	if m.offline {
		return ErrUnavailable
	}
	return nil
}

// CreateTransaction stores a normalized copy of tx under a fresh id.
func (m *MemoryStore) CreateTransaction(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, fmt.Errorf("CreateTransaction: %w", err)
	}

	m.mu.Lock()
	if err := m.checkLocked(uid); err != nil {
		m.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("CreateTransaction: %w", err)
	}
	record := BuildRemoteTransaction(uid, tx, m.now())
	record.ID = uuid.NewString()
	m.userRecordsLocked(uid)[record.ID] = record
	m.mu.Unlock()

	m.notify(uid)
	return record, nil
}

// UpdateTransaction overwrites record id.
func (m *MemoryStore) UpdateTransaction(ctx context.Context, uid, id string, tx domain.Transaction) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, fmt.Errorf("UpdateTransaction: %w", err)
	}

	m.mu.Lock()
	if err := m.checkLocked(uid); err != nil {
		m.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("UpdateTransaction: %w", err)
	}
	record := BuildRemoteTransaction(uid, tx, m.now())
	record.ID = id
	m.userRecordsLocked(uid)[id] = record
	m.mu.Unlock()

	m.notify(uid)
	return record, nil
}

// DeleteTransaction removes record id. Missing records are not an error.
func (m *MemoryStore) DeleteTransaction(ctx context.Context, uid, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}

	m.mu.Lock()
	if err := m.checkLocked(uid); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("DeleteTransaction: %w", err)
	}
	delete(m.userRecordsLocked(uid), id)
	m.mu.Unlock()

	m.notify(uid)
	return nil
}

// FetchTransactions returns the user's records, most recent first.
func (m *MemoryStore) FetchTransactions(ctx context.Context, uid string) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("FetchTransactions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(uid); err != nil {
		return nil, fmt.Errorf("FetchTransactions: %w", err)
	}
	return m.snapshotLocked(uid), nil
}

// Subscribe delivers the current set immediately and again after every write
// until ctx is done or the returned func is called.
func (m *MemoryStore) Subscribe(ctx context.Context, uid string, h Handlers) Unsubscribe {
	m.mu.Lock()
	if err := m.checkLocked(uid); err != nil {
		m.mu.Unlock()
		h.error(fmt.Errorf("Subscribe: %w", err))
		return noopUnsubscribe
	}
	id := m.nextSub
	m.nextSub++
	if m.subscribers[uid] == nil {
		m.subscribers[uid] = make(map[int]Handlers)
	}
	m.subscribers[uid][id] = h
	m.mu.Unlock()

	m.notifyOne(uid, id)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers[uid], id)
			m.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}
}

func (m *MemoryStore) userRecordsLocked(uid string) map[string]domain.Transaction {
	recs, ok := m.records[uid]
	if !ok {
		recs = make(map[string]domain.Transaction)
		m.records[uid] = recs
	}
	return recs
}

func (m *MemoryStore) snapshotLocked(uid string) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(m.records[uid]))
	for _, tx := range m.records[uid] {
		out = append(out, tx)
	}
	sortByCreatedAt(out)
	return out
}

// notify pushes the current set to every subscriber of uid. Handlers run
// without m.mu held, one broadcast at a time.
func (m *MemoryStore) notify(uid string) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	items := m.snapshotLocked(uid)
	handlers := make([]Handlers, 0, len(m.subscribers[uid]))
	for _, h := range m.subscribers[uid] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h.data(cloneTransactions(items))
	}
}

func (m *MemoryStore) notifyOne(uid string, id int) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	h, ok := m.subscribers[uid][id]
	items := m.snapshotLocked(uid)
	m.mu.Unlock()

	if ok {
		h.data(items)
	}
}

func cloneTransactions(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out
}
