package db

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptotax/internal/models"
)

// The row types below are the GORM-mapped mirror of internal/models'
// plain domain structs (§3 DATA MODEL). Domain code never imports gorm;
// Store is the only place that translates between the two, the same
// split the teacher draws between its db row types (market.go,
// recommendation.go) and the analysis-side structs that use them.

type EntityRow struct {
	ID           uint64 `gorm:"primaryKey"`
	Name         string `gorm:"size:255;not null"`
	BaseCurrency string `gorm:"size:16;not null;default:USD"`
	DeletedAt    *time.Time
}

func (EntityRow) TableName() string { return "entities" }

type WalletRow struct {
	ID         uint64 `gorm:"primaryKey"`
	EntityID   uint64 `gorm:"index;not null"`
	Label      string `gorm:"size:255"`
	SyncStatus string `gorm:"size:16;not null;default:IDLE"`
	Kind       string `gorm:"size:16;not null"`

	// OnChain fields, populated when Kind == "onchain".
	Chain           string `gorm:"size:32;index:idx_wallet_chain_addr"`
	Address         string `gorm:"size:128;index:idx_wallet_chain_addr"`
	LastBlockLoaded uint64

	// Cex fields, populated when Kind == "cex".
	Exchange           string `gorm:"size:32"`
	APIKeyEncrypted    string `gorm:"size:512"`
	APISecretEncrypted string `gorm:"size:512"`
	LastTradeID        string `gorm:"size:128"`

	LastSyncedAt *time.Time
}

func (WalletRow) TableName() string { return "wallets" }

func (w *WalletRow) ToModel() *models.Wallet {
	m := &models.Wallet{
		ID:         w.ID,
		EntityID:   w.EntityID,
		Label:      w.Label,
		SyncStatus: models.WalletSyncStatus(w.SyncStatus),
		Kind:       models.WalletKind(w.Kind),
	}
	switch m.Kind {
	case models.WalletKindOnChain:
		m.OnChain = &models.OnChainWallet{
			Chain:           w.Chain,
			Address:         w.Address,
			LastBlockLoaded: w.LastBlockLoaded,
			LastSyncedAt:    w.LastSyncedAt,
		}
	case models.WalletKindCex:
		m.Cex = &models.CexWallet{
			Exchange:           w.Exchange,
			APIKeyEncrypted:    w.APIKeyEncrypted,
			APISecretEncrypted: w.APISecretEncrypted,
			LastTradeID:        w.LastTradeID,
			LastSyncedAt:       w.LastSyncedAt,
		}
	}
	return m
}

func walletRowFromModel(w *models.Wallet) *WalletRow {
	row := &WalletRow{
		ID:         w.ID,
		EntityID:   w.EntityID,
		Label:      w.Label,
		SyncStatus: string(w.SyncStatus),
		Kind:       string(w.Kind),
	}
	if w.OnChain != nil {
		row.Chain = w.OnChain.Chain
		row.Address = w.OnChain.Address
		row.LastBlockLoaded = w.OnChain.LastBlockLoaded
		row.LastSyncedAt = w.OnChain.LastSyncedAt
	}
	if w.Cex != nil {
		row.Exchange = w.Cex.Exchange
		row.APIKeyEncrypted = w.Cex.APIKeyEncrypted
		row.APISecretEncrypted = w.Cex.APISecretEncrypted
		row.LastTradeID = w.Cex.LastTradeID
		row.LastSyncedAt = w.Cex.LastSyncedAt
	}
	return row
}

type AccountRow struct {
	ID           uint64 `gorm:"primaryKey"`
	WalletID     uint64 `gorm:"index"`
	Label        string `gorm:"size:512;uniqueIndex"`
	AccountType  string `gorm:"size:16;not null"`
	Subtype      string `gorm:"size:32;not null"`
	Symbol       string `gorm:"size:32"`
	TokenAddress string `gorm:"size:128"`
	Protocol     string `gorm:"size:64"`
	BalanceType  string `gorm:"size:16"`
}

func (AccountRow) TableName() string { return "accounts" }

func (a *AccountRow) ToModel() *models.Account {
	return &models.Account{
		ID:           a.ID,
		WalletID:     a.WalletID,
		Label:        a.Label,
		AccountType:  models.AccountType(a.AccountType),
		Subtype:      models.AccountSubtype(a.Subtype),
		Symbol:       a.Symbol,
		TokenAddress: a.TokenAddress,
		Protocol:     a.Protocol,
		BalanceType:  a.BalanceType,
	}
}

func accountRowFromModel(a *models.Account) *AccountRow {
	return &AccountRow{
		WalletID:     a.WalletID,
		Label:        a.Label,
		AccountType:  string(a.AccountType),
		Subtype:      string(a.Subtype),
		Symbol:       a.Symbol,
		TokenAddress: a.TokenAddress,
		Protocol:     a.Protocol,
		BalanceType:  a.BalanceType,
	}
}

// TransactionRow mirrors models.Transaction, with the nullable numeric
// fields kept as pointers so a partially-loaded tx (pending internal/token
// enrichment) round-trips without lossy zero-values.
type TransactionRow struct {
	ID          uint64 `gorm:"primaryKey"`
	WalletID    uint64 `gorm:"index:idx_tx_wallet_chain_hash,unique"`
	Chain       string `gorm:"size:32;index:idx_tx_wallet_chain_hash,unique"`
	TxHash      string `gorm:"size:128;index:idx_tx_wallet_chain_hash,unique"`
	BlockNumber *uint64
	Timestamp   *int64 `gorm:"index"`
	FromAddr    string `gorm:"size:128"`
	ToAddr      string `gorm:"size:128"`
	ValueWei    *int64
	GasUsed     *uint64
	GasPrice    *uint64
	L1Fee       *uint64
	Status      string `gorm:"size:16;index;not null;default:LOADED"`
	EntryType   string `gorm:"size:16"`
	InputData   string `gorm:"type:text"`
	RawData     []byte `gorm:"type:blob"`
}

func (TransactionRow) TableName() string { return "transactions" }

func (t *TransactionRow) ToModel() *models.Transaction {
	return &models.Transaction{
		ID:          t.ID,
		WalletID:    t.WalletID,
		Chain:       t.Chain,
		TxHash:      t.TxHash,
		BlockNumber: t.BlockNumber,
		Timestamp:   t.Timestamp,
		FromAddr:    t.FromAddr,
		ToAddr:      t.ToAddr,
		ValueWei:    t.ValueWei,
		GasUsed:     t.GasUsed,
		GasPrice:    t.GasPrice,
		L1Fee:       t.L1Fee,
		Status:      models.TxStatus(t.Status),
		EntryType:   models.EntryType(t.EntryType),
		InputData:   t.InputData,
		RawData:     t.RawData,
	}
}

func transactionRowFromModel(t *models.Transaction) *TransactionRow {
	status := t.Status
	if status == "" {
		status = models.TxLoaded
	}
	return &TransactionRow{
		WalletID:    t.WalletID,
		Chain:       t.Chain,
		TxHash:      t.TxHash,
		BlockNumber: t.BlockNumber,
		Timestamp:   t.Timestamp,
		FromAddr:    t.FromAddr,
		ToAddr:      t.ToAddr,
		ValueWei:    t.ValueWei,
		GasUsed:     t.GasUsed,
		GasPrice:    t.GasPrice,
		L1Fee:       t.L1Fee,
		Status:      string(status),
		EntryType:   string(t.EntryType),
		InputData:   t.InputData,
		RawData:     t.RawData,
	}
}

type JournalEntryRow struct {
	ID            uint64 `gorm:"primaryKey"`
	EntityID      uint64 `gorm:"index"`
	TransactionID *uint64 `gorm:"index"`
	EntryType     string  `gorm:"size:16;not null"`
	Description   string  `gorm:"size:512"`
	Timestamp     int64   `gorm:"index"`
	Splits        []JournalSplitRow `gorm:"foreignKey:JournalEntryID"`
}

func (JournalEntryRow) TableName() string { return "journal_entries" }

type JournalSplitRow struct {
	ID             uint64 `gorm:"primaryKey"`
	JournalEntryID uint64 `gorm:"index"`
	AccountID      uint64 `gorm:"index"`
	Quantity       decimal.Decimal `gorm:"type:decimal(36,18)"`
	ValueUSD       *decimal.Decimal `gorm:"type:decimal(36,18)"`
	ValueVND       *decimal.Decimal `gorm:"type:decimal(36,2)"`
}

func (JournalSplitRow) TableName() string { return "journal_splits" }

type ParseErrorRow struct {
	ID             uint64  `gorm:"primaryKey"`
	TransactionID  *uint64 `gorm:"index"`
	WalletID       *uint64 `gorm:"index"`
	ErrorKind      string  `gorm:"size:48;not null"`
	Message        string  `gorm:"type:text"`
	DiagnosticBlob []byte  `gorm:"type:blob"`
	Resolved       bool    `gorm:"index"`
}

func (ParseErrorRow) TableName() string { return "parse_errors" }

// PriceCacheRow is the L2 tier backing internal/price.Store, keyed
// uniquely on (Symbol, TimestampHour) (I4).
type PriceCacheRow struct {
	ID            uint64 `gorm:"primaryKey"`
	Symbol        string `gorm:"size:32;uniqueIndex:idx_price_symbol_hour"`
	TimestampHour int64  `gorm:"uniqueIndex:idx_price_symbol_hour"`
	PriceUSD      decimal.Decimal `gorm:"type:decimal(36,18)"`
	Source        string          `gorm:"size:32"`
}

func (PriceCacheRow) TableName() string { return "price_cache_entries" }

type OpenLotRow struct {
	ID                  uint64 `gorm:"primaryKey"`
	EntityID            uint64 `gorm:"index:idx_openlot_entity_symbol"`
	Symbol              string `gorm:"size:32;index:idx_openlot_entity_symbol"`
	RemainingQuantity   decimal.Decimal `gorm:"type:decimal(36,18)"`
	CostBasisPerUnitUSD decimal.Decimal `gorm:"type:decimal(36,18)"`
	BuyEntryID          uint64
	BuyTimestamp        int64
}

func (OpenLotRow) TableName() string { return "open_lots" }

type ClosedLotRow struct {
	ID            uint64 `gorm:"primaryKey"`
	EntityID      uint64 `gorm:"index"`
	Symbol        string `gorm:"size:32"`
	Quantity      decimal.Decimal `gorm:"type:decimal(36,18)"`
	CostBasisUSD  decimal.Decimal `gorm:"type:decimal(36,18)"`
	ProceedsUSD   decimal.Decimal `gorm:"type:decimal(36,18)"`
	GainUSD       decimal.Decimal `gorm:"type:decimal(36,18)"`
	HoldingDays   int64
	BuyEntryID    uint64
	SellEntryID   uint64
	BuyTimestamp  int64
	SellTimestamp int64
}

func (ClosedLotRow) TableName() string { return "closed_lots" }

type TaxableTransferRow struct {
	ID              uint64 `gorm:"primaryKey"`
	EntityID        uint64 `gorm:"index"`
	JournalEntryID  uint64 `gorm:"index"`
	Symbol          string `gorm:"size:32"`
	Quantity        decimal.Decimal `gorm:"type:decimal(36,18)"`
	ValueUSD        decimal.Decimal `gorm:"type:decimal(36,18)"`
	ValueVND        decimal.Decimal `gorm:"type:decimal(36,2)"`
	TaxAmountVND    decimal.Decimal `gorm:"type:decimal(36,2)"`
	ExemptionReason *string         `gorm:"size:32"`
	Timestamp       int64
}

func (TaxableTransferRow) TableName() string { return "taxable_transfers" }
