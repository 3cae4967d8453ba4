package loader

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/extract"
	"cryptotax/internal/models"
)

type stubEtherscan struct {
	tip      uint64
	normal   map[[2]uint64][]extract.EVMNormalTx
	internal map[[2]uint64][]InternalTransferRow
	token    map[[2]uint64][]TokenTransferRow
	calls    int
}

func (s *stubEtherscan) BlockNumber(ctx context.Context) (uint64, error) { return s.tip, nil }

func (s *stubEtherscan) NormalTransactions(ctx context.Context, address string, from, to uint64) ([]extract.EVMNormalTx, error) {
	s.calls++
	return s.normal[[2]uint64{from, to}], nil
}

func (s *stubEtherscan) InternalTransactions(ctx context.Context, address string, from, to uint64) ([]InternalTransferRow, error) {
	return s.internal[[2]uint64{from, to}], nil
}

func (s *stubEtherscan) TokenTransfers(ctx context.Context, address string, from, to uint64) ([]TokenTransferRow, error) {
	return s.token[[2]uint64{from, to}], nil
}

type stubStore struct {
	existing map[string]bool
	stored   []*models.Transaction
	wallet   *models.Wallet
}

func (s *stubStore) ExistingTxHashes(ctx context.Context, walletID uint64, chain string) (map[string]bool, error) {
	return s.existing, nil
}
func (s *stubStore) InsertTransactions(ctx context.Context, txs []*models.Transaction) error {
	s.stored = append(s.stored, txs...)
	return nil
}
func (s *stubStore) UpdateWalletCursor(ctx context.Context, wallet *models.Wallet) error {
	s.wallet = wallet
	return nil
}

func TestFetchRangeAcceptsPartialResultUnderSize(t *testing.T) {
	fetch := func(from, to uint64) ([]int, error) { return []int{1, 2, 3}, nil }
	got, err := fetchRange[int](0, 100, fetch)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestFetchRangeSplitsOnFullPage(t *testing.T) {
	calls := 0
	fetch := func(from, to uint64) ([]int, error) {
		calls++
		if from == 0 && to == 10 {
			full := make([]int, RangeSize)
			return full, nil
		}
		return []int{int(from)}, nil
	}
	got, err := fetchRange[int](0, 10, fetch)
	require.NoError(t, err)
	assert.Greater(t, calls, 1)
	assert.Len(t, got, 2)
}

func TestFetchRangeStopsAtSingleBlock(t *testing.T) {
	fetch := func(from, to uint64) ([]int, error) {
		full := make([]int, RangeSize)
		return full, nil
	}
	got, err := fetchRange[int](5, 5, fetch)
	require.NoError(t, err)
	assert.Len(t, got, RangeSize) // cannot split further: accept the partial (full) result
}

func TestEVMLoaderSyncRespectsReorgMarginAndDedups(t *testing.T) {
	wallet := &models.Wallet{
		ID: 1,
		Kind: models.WalletKindOnChain,
		OnChain: &models.OnChainWallet{Chain: "ethereum", Address: "0x1111111111111111111111111111111111111111", LastBlockLoaded: 0},
	}
	client := &stubEtherscan{
		tip: 200,
		normal: map[[2]uint64][]extract.EVMNormalTx{
			{0, 150}: {
				{Hash: "0xaaa", From: wallet.OnChain.Address, To: "0x2222222222222222222222222222222222222222", Value: big.NewInt(1e18), BlockNumber: 10, Timestamp: 100},
				{Hash: "0xbbb", From: wallet.OnChain.Address, To: "0x2222222222222222222222222222222222222222", Value: big.NewInt(2e18), BlockNumber: 20, Timestamp: 200},
			},
		},
	}
	store := &stubStore{existing: map[string]bool{"0xaaa": true}}
	l := NewEVMLoader(client, store, "ETH")

	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Stored) // 0xaaa already known, only 0xbbb stored
	require.Len(t, store.stored, 1)
	assert.Equal(t, "0xbbb", store.stored[0].TxHash)
	assert.Equal(t, uint64(150), wallet.OnChain.LastBlockLoaded) // tip - ReorgSafetyMargin
}

func TestEVMLoaderSyncNoOpWhenCaughtUp(t *testing.T) {
	wallet := &models.Wallet{
		ID:      1,
		Kind:    models.WalletKindOnChain,
		OnChain: &models.OnChainWallet{Chain: "ethereum", Address: "0xabc", LastBlockLoaded: 160},
	}
	client := &stubEtherscan{tip: 200}
	store := &stubStore{existing: map[string]bool{}}
	l := NewEVMLoader(client, store, "ETH")

	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, client.calls) // never even attempted a fetch
}

func TestEVMLoaderAttachesInternalAndTokenTransfersByHash(t *testing.T) {
	wallet := &models.Wallet{
		ID:      1,
		Kind:    models.WalletKindOnChain,
		OnChain: &models.OnChainWallet{Chain: "ethereum", Address: "0x1111111111111111111111111111111111111111"},
	}
	client := &stubEtherscan{
		tip: 100,
		normal: map[[2]uint64][]extract.EVMNormalTx{
			{0, 50}: {{Hash: "0xccc", From: wallet.OnChain.Address, To: "0x2", Value: big.NewInt(0), BlockNumber: 5}},
		},
		internal: map[[2]uint64][]InternalTransferRow{
			{0, 50}: {{Hash: "0xccc", EVMInternalTransfer: extract.EVMInternalTransfer{From: "a", To: "b", Value: big.NewInt(5)}}},
		},
		token: map[[2]uint64][]TokenTransferRow{
			{0, 50}: {{Hash: "0xccc", EVMTokenTransfer: extract.EVMTokenTransfer{ContractAddress: "0xusdc", TokenSymbol: "USDC", Value: big.NewInt(10)}}},
		},
	}
	store := &stubStore{existing: map[string]bool{}}
	l := NewEVMLoader(client, store, "ETH")

	_, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, store.stored, 1)

	var decoded extract.EVMNormalTx
	require.NoError(t, json.Unmarshal(store.stored[0].RawData, &decoded))
	require.Len(t, decoded.InternalTransfers, 1)
	require.Len(t, decoded.TokenTransfers, 1)
	assert.Equal(t, "USDC", decoded.TokenTransfers[0].TokenSymbol)
}
