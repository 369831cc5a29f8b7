package localstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// GetBankAccounts returns the user's accounts, seeding the defaults on first use.
func (s *Store) GetBankAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	userID = userKey(userID)

	if stored := decodeAccounts(s.readRoot(ctx, BankAccountsKey)[userID]); len(stored) > 0 {
		return s.normalizeAccounts(stored), nil
	}

	defaults := s.normalizeAccounts(domain.DefaultBankAccounts())
	var accounts []domain.BankAccount
	err := s.mutate(ctx, BankAccountsKey, func(root map[string]json.RawMessage) error {
		if stored := decodeAccounts(root[userID]); len(stored) > 0 {
			accounts = s.normalizeAccounts(stored)
			return nil
		}
		accounts = defaults
		return putAccounts(root, userID, defaults)
	})
	if err != nil {
		return defaults, fmt.Errorf("GetBankAccounts: seeding defaults: %w", err)
	}
	return accounts, nil
}

// SetBankAccounts replaces the user's accounts. A nil slice restores the defaults.
func (s *Store) SetBankAccounts(ctx context.Context, userID string, accounts []domain.BankAccount) error {
	userID = userKey(userID)
	if accounts == nil {
		accounts = domain.DefaultBankAccounts()
	}
	normalized := s.normalizeAccounts(accounts)

	err := s.mutate(ctx, BankAccountsKey, func(root map[string]json.RawMessage) error {
		return putAccounts(root, userID, normalized)
	})
	if err != nil {
		return fmt.Errorf("SetBankAccounts: %w", err)
	}
	return nil
}

func (s *Store) normalizeAccounts(accounts []domain.BankAccount) []domain.BankAccount {
	now := s.now()
	out := make([]domain.BankAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, domain.NormalizeBankAccount(a, now))
	}
	return out
}

func putAccounts(root map[string]json.RawMessage, userID string, accounts []domain.BankAccount) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("encoding bank accounts: %w", err)
	}
	root[userID] = data
	return nil
}

func decodeAccounts(raw json.RawMessage) []domain.BankAccount {
	objects := decodeObjects(raw)
	out := make([]domain.BankAccount, 0, len(objects))
	for _, obj := range objects {
		var a domain.BankAccount
		if err := json.Unmarshal(obj, &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
