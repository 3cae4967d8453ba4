// Package bookkeeper implements the AccountMapper (§4.2) and Bookkeeper
// (§4.4): resolving parsed splits to stable account identities and turning
// a transaction's ParseResult into a persisted, priced JournalEntry.
package bookkeeper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cryptotax/internal/models"
)

// ErrDuplicateLabel is returned by AccountStore.CreateAccount when a
// concurrent creator already inserted a row for the same label (I3). The
// AccountMapper responds by re-reading rather than retrying the insert.
var ErrDuplicateLabel = errors.New("bookkeeper: account label already exists")

// AccountStore is the persistence boundary AccountMapper depends on.
type AccountStore interface {
	FindAccountByLabel(ctx context.Context, label string) (*models.Account, error)
	CreateAccount(ctx context.Context, acc *models.Account) error
}

// LabelParams carries the disambiguators the label-key algorithm (§4.2)
// switches on, beyond wallet identity and subtype.
type LabelParams struct {
	Symbol             string
	TokenAddress       string
	Protocol           string
	IncomeTag          string
	CounterpartAddress string
}

// LabelKey computes the deterministic label string for (wallet, subtype,
// params) per the §4.2 table. wallet identity is wallet.Prefix(); for
// on-chain wallets that's "{chain}:{address}", for CEX
// "cex:{exchange}:{wallet_id}", and "wallet:{wallet_id}" as a last resort.
func LabelKey(wallet *models.Wallet, subtype models.AccountSubtype, p LabelParams) string {
	prefix := wallet.Prefix()
	switch subtype {
	case models.SubtypeNativeAsset:
		return prefix + ":native_asset"
	case models.SubtypeERC20Token:
		return fmt.Sprintf("%s:erc20:%s:%s", prefix, p.Symbol, p.TokenAddress)
	case models.SubtypeProtocolAsset:
		return fmt.Sprintf("%s:protocol:%s:asset:%s", prefix, p.Protocol, p.Symbol)
	case models.SubtypeProtocolDebt:
		return fmt.Sprintf("%s:protocol:%s:debt:%s", prefix, p.Protocol, p.Symbol)
	case models.SubtypeWalletExpense:
		if wallet.Kind == models.WalletKindCex {
			return fmt.Sprintf("%s:expense:%s", prefix, p.Symbol)
		}
		return prefix + ":expense:gas"
	case models.SubtypeWalletIncome:
		return fmt.Sprintf("%s:income:%s:%s", prefix, p.IncomeTag, p.Symbol)
	case models.SubtypeExternalTransfer:
		return fmt.Sprintf("%s:external:%s:%s", prefix, p.Symbol, p.CounterpartAddress)
	case models.SubtypeCexAsset:
		return fmt.Sprintf("%s:asset:%s", prefix, p.Symbol)
	default:
		return fmt.Sprintf("%s:unknown:%s", prefix, p.Symbol)
	}
}

// accountTypeOf derives the top-level AccountType a subtype belongs to.
func accountTypeOf(subtype models.AccountSubtype) models.AccountType {
	switch subtype {
	case models.SubtypeProtocolDebt:
		return models.AccountLiability
	case models.SubtypeWalletIncome:
		return models.AccountIncome
	case models.SubtypeWalletExpense:
		return models.AccountExpense
	default:
		return models.AccountAsset
	}
}

// AccountMapper resolves (wallet, subtype, disambiguators) to a stable
// Account, memoizing within one request/transaction so repeated splits
// against the same account only round-trip to storage once (§4.2).
type AccountMapper struct {
	store AccountStore
	mu    sync.Mutex
	memo  map[string]*models.Account
}

func NewAccountMapper(store AccountStore) *AccountMapper {
	return &AccountMapper{store: store, memo: map[string]*models.Account{}}
}

// Resolve returns the Account for (wallet, subtype, params), creating it
// on first reference. Creation is idempotent under concurrent callers: a
// unique-constraint collision on label is resolved by re-reading rather
// than treating it as an error (§4.2 "a concurrent second creator must
// observe the first").
func (m *AccountMapper) Resolve(ctx context.Context, wallet *models.Wallet, subtype models.AccountSubtype, p LabelParams) (*models.Account, error) {
	label := LabelKey(wallet, subtype, p)

	m.mu.Lock()
	if acc, ok := m.memo[label]; ok {
		m.mu.Unlock()
		return acc, nil
	}
	m.mu.Unlock()

	acc, err := m.store.FindAccountByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("looking up account %s: %w", label, err)
	}
	if acc == nil {
		acc = &models.Account{
			WalletID:     wallet.ID,
			Label:        label,
			AccountType:  accountTypeOf(subtype),
			Subtype:      subtype,
			Symbol:       p.Symbol,
			TokenAddress: p.TokenAddress,
			Protocol:     p.Protocol,
		}
		if err := m.store.CreateAccount(ctx, acc); err != nil {
			if errors.Is(err, ErrDuplicateLabel) {
				acc, err = m.store.FindAccountByLabel(ctx, label)
				if err != nil {
					return nil, fmt.Errorf("re-reading account %s after collision: %w", label, err)
				}
				if acc == nil {
					return nil, fmt.Errorf("account %s vanished after duplicate-label collision", label)
				}
			} else {
				return nil, fmt.Errorf("creating account %s: %w", label, err)
			}
		}
	}

	m.mu.Lock()
	m.memo[label] = acc
	m.mu.Unlock()
	return acc, nil
}
