package models

// Account is identified by a stable label key (§4.2) derived from
// (wallet identity, subtype, symbol, token_address?, protocol?).
// Accounts are created on first reference and never updated afterwards
// (I3).
type Account struct {
	ID            uint64
	WalletID      uint64
	Label         string
	AccountType   AccountType
	Subtype       AccountSubtype
	Symbol        string
	TokenAddress  string
	Protocol      string
	BalanceType   string
}

// IsAsset reports whether splits against this account feed FIFO lot
// matching and transfer-tax grouping (§4.6).
func (a *Account) IsAsset() bool {
	return AssetSubtypes[a.Subtype]
}
