package bookkeeper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/models"
)

type fakeAccountStore struct {
	byLabel map[string]*models.Account
	nextID  uint64
	failDup bool
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{byLabel: map[string]*models.Account{}}
}

func (s *fakeAccountStore) FindAccountByLabel(ctx context.Context, label string) (*models.Account, error) {
	if s.failDup {
		// Simulate a concurrent creator: the first lookup misses even
		// though the label exists, so the following create collides.
		s.failDup = false
		return nil, nil
	}
	if a, ok := s.byLabel[label]; ok {
		return a, nil
	}
	return nil, nil
}

func (s *fakeAccountStore) CreateAccount(ctx context.Context, acc *models.Account) error {
	if _, ok := s.byLabel[acc.Label]; ok {
		return ErrDuplicateLabel
	}
	s.nextID++
	acc.ID = s.nextID
	s.byLabel[acc.Label] = acc
	return nil
}

func onChainWallet(id uint64, chain, addr string) *models.Wallet {
	return &models.Wallet{
		ID:      id,
		Kind:    models.WalletKindOnChain,
		OnChain: &models.OnChainWallet{Chain: chain, Address: addr},
	}
}

func TestLabelKeyDeterministic(t *testing.T) {
	w := onChainWallet(1, "ethereum", "0xabc")
	k1 := LabelKey(w, models.SubtypeNativeAsset, LabelParams{})
	k2 := LabelKey(w, models.SubtypeNativeAsset, LabelParams{})
	assert.Equal(t, k1, k2)
	assert.Equal(t, "ethereum:0xabc:native_asset", k1)

	erc20 := LabelKey(w, models.SubtypeERC20Token, LabelParams{Symbol: "USDC", TokenAddress: "0xdef"})
	assert.Equal(t, "ethereum:0xabc:erc20:USDC:0xdef", erc20)
}

func TestLabelKeyDistinguishesProtocolAssetFromDebt(t *testing.T) {
	w := onChainWallet(1, "ethereum", "0xabc")
	asset := LabelKey(w, models.SubtypeProtocolAsset, LabelParams{Protocol: "aave_v3", Symbol: "USDC"})
	debt := LabelKey(w, models.SubtypeProtocolDebt, LabelParams{Protocol: "aave_v3", Symbol: "USDC"})
	assert.NotEqual(t, asset, debt)
}

func TestAccountMapperResolveCreatesOnce(t *testing.T) {
	store := newFakeAccountStore()
	m := NewAccountMapper(store)
	w := onChainWallet(1, "ethereum", "0xabc")

	acc1, err := m.Resolve(context.Background(), w, models.SubtypeNativeAsset, LabelParams{Symbol: "ETH"})
	require.NoError(t, err)
	require.NotZero(t, acc1.ID)

	acc2, err := m.Resolve(context.Background(), w, models.SubtypeNativeAsset, LabelParams{Symbol: "ETH"})
	require.NoError(t, err)
	assert.Equal(t, acc1.ID, acc2.ID)
	assert.Equal(t, 1, len(store.byLabel))
}

func TestAccountMapperResolveSurvivesDuplicateCreateRace(t *testing.T) {
	store := newFakeAccountStore()
	w := onChainWallet(1, "ethereum", "0xabc")
	label := LabelKey(w, models.SubtypeNativeAsset, LabelParams{})
	store.byLabel[label] = &models.Account{ID: 99, Label: label}
	store.failDup = true

	m := NewAccountMapper(store)
	acc, err := m.Resolve(context.Background(), w, models.SubtypeNativeAsset, LabelParams{})
	require.NoError(t, err)
	assert.Equal(t, uint64(99), acc.ID)
}

func TestAccountTypeOfBySubtype(t *testing.T) {
	assert.Equal(t, models.AccountLiability, accountTypeOf(models.SubtypeProtocolDebt))
	assert.Equal(t, models.AccountIncome, accountTypeOf(models.SubtypeWalletIncome))
	assert.Equal(t, models.AccountExpense, accountTypeOf(models.SubtypeWalletExpense))
	assert.Equal(t, models.AccountAsset, accountTypeOf(models.SubtypeNativeAsset))
}
