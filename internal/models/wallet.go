package models

import (
	"strconv"
	"time"
)

// WalletKind tags which concrete variant a Wallet value holds.
type WalletKind string

const (
	WalletKindOnChain WalletKind = "onchain"
	WalletKindCex     WalletKind = "cex"
)

// Wallet is a tagged sum type over OnChainWallet and CexWallet (§9: "in a
// systems language, represent Wallet and Account as tagged sum types").
// Exactly one of OnChain/Cex is non-nil, selected by Kind.
type Wallet struct {
	ID         uint64
	EntityID   uint64
	Label      string
	SyncStatus WalletSyncStatus
	Kind       WalletKind
	OnChain    *OnChainWallet
	Cex        *CexWallet
}

// OnChainWallet identifies a wallet by chain + address and tracks the
// block/slot cursor the loader has advanced to.
type OnChainWallet struct {
	Chain           string
	Address         string
	LastBlockLoaded uint64
	LastSyncedAt    *time.Time
}

// CexWallet identifies a wallet by exchange + encrypted API credentials
// and tracks the last trade id consumed by the loader.
type CexWallet struct {
	Exchange            string
	APIKeyEncrypted      string
	APISecretEncrypted   string
	LastTradeID          string
	LastSyncedAt         *time.Time
}

// Prefix returns the wallet_prefix used by the Account label-key algorithm
// (§4.2): "{chain}:{address}" for on-chain, "cex:{exchange}:{wallet_id}"
// for CEX, "wallet:{wallet_id}" as a last resort.
func (w *Wallet) Prefix() string {
	switch w.Kind {
	case WalletKindOnChain:
		if w.OnChain != nil {
			return w.OnChain.Chain + ":" + w.OnChain.Address
		}
	case WalletKindCex:
		if w.Cex != nil {
			return "cex:" + w.Cex.Exchange + ":" + strconv.FormatUint(w.ID, 10)
		}
	}
	return "wallet:" + strconv.FormatUint(w.ID, 10)
}
