package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotax/internal/extract"
	"cryptotax/internal/models"
)

type stubSolana struct {
	pages map[string][]SolanaSignature // keyed by "before" cursor, "" for the first page
	txs   map[string]*extract.SolanaTx
	slots map[string]uint64
}

func (s *stubSolana) SignaturesForAddress(ctx context.Context, address string, before string, limit int) ([]SolanaSignature, error) {
	return s.pages[before], nil
}

func (s *stubSolana) GetTransaction(ctx context.Context, signature string) (*extract.SolanaTx, uint64, error) {
	return s.txs[signature], s.slots[signature], nil
}

func TestSolanaLoaderStopsAtKnownSignature(t *testing.T) {
	client := &stubSolana{
		pages: map[string][]SolanaSignature{
			"": {
				{Signature: "sig3", Slot: 30},
				{Signature: "sig2", Slot: 20}, // already known: walk stops here
				{Signature: "sig1", Slot: 10},
			},
		},
		txs:   map[string]*extract.SolanaTx{"sig3": {AccountKeys: []string{"me", "them"}, Fee: 5000}},
		slots: map[string]uint64{"sig3": 30},
	}
	store := &stubStore{existing: map[string]bool{"sig2": true}}
	wallet := &models.Wallet{ID: 1, Kind: models.WalletKindOnChain, OnChain: &models.OnChainWallet{Chain: "solana", Address: "me"}}

	l := NewSolanaLoader(client, store)
	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Stored)
	require.Len(t, store.stored, 1)
	assert.Equal(t, "sig3", store.stored[0].TxHash)
	assert.Equal(t, uint64(30), wallet.OnChain.LastBlockLoaded)
}

func TestSolanaLoaderStopsAtPartialPage(t *testing.T) {
	sigs := make([]SolanaSignature, 3) // fewer than SolanaPageSize
	for i := range sigs {
		sigs[i] = SolanaSignature{Signature: string(rune('a' + i)), Slot: uint64(i + 1)}
	}
	client := &stubSolana{
		pages: map[string][]SolanaSignature{"": sigs},
		txs:   map[string]*extract.SolanaTx{},
		slots: map[string]uint64{},
	}
	store := &stubStore{existing: map[string]bool{}}
	wallet := &models.Wallet{ID: 1, Kind: models.WalletKindOnChain, OnChain: &models.OnChainWallet{Chain: "solana", Address: "me"}}

	l := NewSolanaLoader(client, store)
	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
}

func TestSolanaLoaderSkipsErroredSignatures(t *testing.T) {
	client := &stubSolana{
		pages: map[string][]SolanaSignature{
			"": {{Signature: "bad", Slot: 1, Err: map[string]any{"InstructionError": true}}},
		},
		txs:   map[string]*extract.SolanaTx{},
		slots: map[string]uint64{},
	}
	store := &stubStore{existing: map[string]bool{}}
	wallet := &models.Wallet{ID: 1, Kind: models.WalletKindOnChain, OnChain: &models.OnChainWallet{Chain: "solana", Address: "me"}}

	l := NewSolanaLoader(client, store)
	res, err := l.Sync(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stored)
}
