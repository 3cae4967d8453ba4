package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cryptotax/internal/bookkeeper"
	"cryptotax/internal/loader"
	"cryptotax/internal/models"
	"cryptotax/internal/price"
	"cryptotax/internal/tax"
)

// Store is the single GORM-backed implementation of every persistence
// boundary the core packages depend on as an interface:
// bookkeeper.Store (which embeds bookkeeper.AccountStore), price.Store,
// loader.Store, and tax.Store. One struct keeps the schema in one place
// while the domain packages stay free of any gorm import.
type Store struct {
	db    *gorm.DB
	cache emptyMarkerInvalidator
}

func NewStore(database Database) *Store {
	return &Store{db: database.GormDB()}
}

// emptyMarkerInvalidator is satisfied by *ProtectedCache. Narrowed to
// just the one method Store needs so it isn't coupled to the full
// CacheInterface.
type emptyMarkerInvalidator interface {
	InvalidateEmptyMarker(ctx context.Context, key string) error
}

// SetPriceCache attaches the L1 price cache Store should invalidate the
// PRICE_MISSING marker on once a real price becomes available for a
// (symbol, hour) pair. Optional: a Store with no cache attached simply
// skips invalidation, leaving the L1 empty-value TTL to expire it.
func (s *Store) SetPriceCache(cache emptyMarkerInvalidator) {
	s.cache = cache
}

var _ bookkeeper.Store = (*Store)(nil)
var _ tax.Store = (*Store)(nil)
var _ price.Store = (*Store)(nil)
var _ loader.Store = (*Store)(nil)

// --- bookkeeper.AccountStore ---

func (s *Store) FindAccountByLabel(ctx context.Context, label string) (*models.Account, error) {
	var row AccountRow
	err := s.db.WithContext(ctx).Where("label = ?", label).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.ToModel(), nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *models.Account) error {
	row := accountRowFromModel(acc)
	err := s.db.WithContext(ctx).Create(row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return bookkeeper.ErrDuplicateLabel
		}
		return err
	}
	acc.ID = row.ID
	return nil
}

// --- bookkeeper.Store ---

func (s *Store) LoadedTransactions(ctx context.Context, walletID uint64) ([]*models.Transaction, error) {
	var rows []TransactionRow
	err := s.db.WithContext(ctx).
		Where("wallet_id = ? AND status = ?", walletID, string(models.TxLoaded)).
		Order("timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Transaction, len(rows))
	for i := range rows {
		out[i] = rows[i].ToModel()
	}
	return out, nil
}

func (s *Store) SaveJournalEntry(ctx context.Context, entry *models.JournalEntry) error {
	row := &JournalEntryRow{
		EntityID:      entry.EntityID,
		TransactionID: entry.TransactionID,
		EntryType:     string(entry.EntryType),
		Description:   entry.Description,
		Timestamp:     entry.Timestamp,
	}
	for _, sp := range entry.Splits {
		row.Splits = append(row.Splits, JournalSplitRow{
			AccountID: sp.AccountID,
			Quantity:  sp.Quantity,
			ValueUSD:  sp.ValueUSD,
			ValueVND:  sp.ValueVND,
		})
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) RecordParseError(ctx context.Context, rec *models.ParseErrorRecord) error {
	row := &ParseErrorRow{
		TransactionID:  rec.TransactionID,
		WalletID:       rec.WalletID,
		ErrorKind:      string(rec.ErrorKind),
		Message:        rec.Message,
		DiagnosticBlob: rec.DiagnosticBlob,
		Resolved:       rec.Resolved,
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) MarkTxStatus(ctx context.Context, txID uint64, status models.TxStatus, entryType models.EntryType) error {
	return s.db.WithContext(ctx).Model(&TransactionRow{}).
		Where("id = ?", txID).
		Updates(map[string]any{"status": string(status), "entry_type": string(entryType)}).Error
}

// --- loader.Store ---

// ExistingTxHashes returns the set of tx_hash values already stored for
// (walletID, chain), so a loader pass can skip rows it has already
// ingested without a round trip per hash.
func (s *Store) ExistingTxHashes(ctx context.Context, walletID uint64, chain string) (map[string]bool, error) {
	var hashes []string
	err := s.db.WithContext(ctx).Model(&TransactionRow{}).
		Where("wallet_id = ? AND chain = ?", walletID, chain).
		Pluck("tx_hash", &hashes).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		out[h] = true
	}
	return out, nil
}

func (s *Store) InsertTransactions(ctx context.Context, txs []*models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]*TransactionRow, len(txs))
	for i, t := range txs {
		rows[i] = transactionRowFromModel(t)
	}
	// (wallet_id, chain, tx_hash) is unique (I1); a concurrent loader pass
	// racing on the same range is a harmless no-op, not an error.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *Store) UpdateWalletCursor(ctx context.Context, wallet *models.Wallet) error {
	row := walletRowFromModel(wallet)
	updates := map[string]any{}
	if wallet.OnChain != nil {
		updates["last_block_loaded"] = wallet.OnChain.LastBlockLoaded
		updates["last_synced_at"] = wallet.OnChain.LastSyncedAt
	}
	if wallet.Cex != nil {
		updates["last_trade_id"] = wallet.Cex.LastTradeID
		updates["last_synced_at"] = wallet.Cex.LastSyncedAt
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&WalletRow{}).Where("id = ?", row.ID).Updates(updates).Error
}

// --- price.Store ---

func (s *Store) FindPriceCacheEntry(ctx context.Context, symbol string, hour int64) (*models.PriceCacheEntry, error) {
	var row PriceCacheRow
	err := s.db.WithContext(ctx).Where("symbol = ? AND timestamp_hour = ?", symbol, hour).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.PriceCacheEntry{
		ID:            row.ID,
		Symbol:        row.Symbol,
		TimestampHour: row.TimestampHour,
		PriceUSD:      row.PriceUSD,
		Source:        row.Source,
	}, nil
}

func (s *Store) InsertPriceCacheEntry(ctx context.Context, entry *models.PriceCacheEntry) error {
	row := &PriceCacheRow{
		Symbol:        entry.Symbol,
		TimestampHour: entry.TimestampHour,
		PriceUSD:      entry.PriceUSD,
		Source:        entry.Source,
	}
	err := s.db.WithContext(ctx).Create(row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return price.ErrDuplicatePriceEntry
		}
		return err
	}
	entry.ID = row.ID

	if s.cache != nil {
		key := PriceCacheKey{Symbol: entry.Symbol, Hour: entry.TimestampHour}.String()
		_ = s.cache.InvalidateEmptyMarker(ctx, key)
	}
	return nil
}

// --- tax.Store ---

func (s *Store) LoadSplitRows(ctx context.Context, entityID uint64, start, end int64) ([]tax.SplitRow, error) {
	type joined struct {
		AccountSubtype string
		Symbol         string
		Quantity       JournalSplitRow
	}
	var splits []JournalSplitRow
	var entries []JournalEntryRow
	err := s.db.WithContext(ctx).
		Where("entity_id = ? AND timestamp >= ? AND timestamp <= ?", entityID, start, end).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	entryIDs := make([]uint64, len(entries))
	entryByID := make(map[uint64]JournalEntryRow, len(entries))
	for i, e := range entries {
		entryIDs[i] = e.ID
		entryByID[e.ID] = e
	}
	if err := s.db.WithContext(ctx).Where("journal_entry_id IN ?", entryIDs).Find(&splits).Error; err != nil {
		return nil, err
	}

	accountIDs := make([]uint64, 0, len(splits))
	seen := map[uint64]bool{}
	for _, sp := range splits {
		if !seen[sp.AccountID] {
			seen[sp.AccountID] = true
			accountIDs = append(accountIDs, sp.AccountID)
		}
	}
	var accountRows []AccountRow
	if len(accountIDs) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", accountIDs).Find(&accountRows).Error; err != nil {
			return nil, err
		}
	}
	accountByID := make(map[uint64]AccountRow, len(accountRows))
	for _, a := range accountRows {
		accountByID[a.ID] = a
	}

	out := make([]tax.SplitRow, 0, len(splits))
	for _, sp := range splits {
		entry := entryByID[sp.JournalEntryID]
		acc := accountByID[sp.AccountID]
		out = append(out, tax.SplitRow{
			AccountSubtype: models.AccountSubtype(acc.Subtype),
			Symbol:         acc.Symbol,
			Quantity:       sp.Quantity,
			ValueUSD:       sp.ValueUSD,
			ValueVND:       sp.ValueVND,
			Timestamp:      entry.Timestamp,
			JournalEntryID: entry.ID,
			EntryType:      models.EntryType(entry.EntryType),
			Description:    entry.Description,
		})
	}
	return out, nil
}

// ClearTaxResults deletes a prior run's lot/transfer output for entityID,
// implementing the clear-then-reinsert idempotency §4.6 step 4 requires.
func (s *Store) ClearTaxResults(ctx context.Context, entityID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_id = ?", entityID).Delete(&OpenLotRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_id = ?", entityID).Delete(&ClosedLotRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entity_id = ?", entityID).Delete(&TaxableTransferRow{}).Error; err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) InsertOpenLot(ctx context.Context, lot *models.OpenLot) error {
	row := &OpenLotRow{
		EntityID:            lot.EntityID,
		Symbol:              lot.Symbol,
		RemainingQuantity:   lot.RemainingQuantity,
		CostBasisPerUnitUSD: lot.CostBasisPerUnitUSD,
		BuyEntryID:          lot.BuyEntryID,
		BuyTimestamp:        lot.BuyTimestamp,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	lot.ID = row.ID
	return nil
}

func (s *Store) InsertClosedLot(ctx context.Context, lot *models.ClosedLot) error {
	row := &ClosedLotRow{
		EntityID:      lot.EntityID,
		Symbol:        lot.Symbol,
		Quantity:      lot.Quantity,
		CostBasisUSD:  lot.CostBasisUSD,
		ProceedsUSD:   lot.ProceedsUSD,
		GainUSD:       lot.GainUSD,
		HoldingDays:   lot.HoldingDays,
		BuyEntryID:    lot.BuyEntryID,
		SellEntryID:   lot.SellEntryID,
		BuyTimestamp:  lot.BuyTimestamp,
		SellTimestamp: lot.SellTimestamp,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	lot.ID = row.ID
	return nil
}

func (s *Store) InsertTaxableTransfer(ctx context.Context, t *models.TaxableTransferRecord) error {
	row := &TaxableTransferRow{
		EntityID:       t.EntityID,
		JournalEntryID: t.JournalEntryID,
		Symbol:         t.Symbol,
		Quantity:       t.Quantity,
		ValueUSD:       t.ValueUSD,
		ValueVND:       t.ValueVND,
		TaxAmountVND:   t.TaxAmountVND,
		Timestamp:      t.Timestamp,
	}
	if t.ExemptionReason != nil {
		reason := string(*t.ExemptionReason)
		row.ExemptionReason = &reason
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	t.ID = row.ID
	return nil
}

// --- entity/wallet lookups used by cmd/ingest ---

func (s *Store) ListWallets(ctx context.Context, entityID uint64) ([]*models.Wallet, error) {
	var rows []WalletRow
	if err := s.db.WithContext(ctx).Where("entity_id = ?", entityID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Wallet, len(rows))
	for i := range rows {
		out[i] = rows[i].ToModel()
	}
	return out, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]*models.Entity, error) {
	var rows []EntityRow
	if err := s.db.WithContext(ctx).Where("deleted_at IS NULL").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Entity, len(rows))
	for i, r := range rows {
		out[i] = &models.Entity{ID: r.ID, Name: r.Name, BaseCurrency: r.BaseCurrency, DeletedAt: r.DeletedAt}
	}
	return out, nil
}

// EnsureEntity and EnsureWallet upsert by natural key, matching the
// teacher's find-then-create idiom (account_mapper.go's AccountMapper)
// rather than relying on a separate seeding path.
func (s *Store) EnsureEntity(ctx context.Context, name, baseCurrency string) (*models.Entity, error) {
	var row EntityRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err == nil {
		return &models.Entity{ID: row.ID, Name: row.Name, BaseCurrency: row.BaseCurrency}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	row = EntityRow{Name: name, BaseCurrency: baseCurrency}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("creating entity %q: %w", name, err)
	}
	return &models.Entity{ID: row.ID, Name: row.Name, BaseCurrency: row.BaseCurrency}, nil
}

func (s *Store) EnsureWallet(ctx context.Context, w *models.Wallet) error {
	row := walletRowFromModel(w)
	q := s.db.WithContext(ctx)
	var existing WalletRow
	var err error
	if w.Kind == models.WalletKindOnChain {
		err = q.Where("entity_id = ? AND chain = ? AND address = ?", w.EntityID, w.OnChain.Chain, w.OnChain.Address).First(&existing).Error
	} else {
		err = q.Where("entity_id = ? AND exchange = ?", w.EntityID, w.Cex.Exchange).First(&existing).Error
	}
	if err == nil {
		w.ID = existing.ID
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err := q.Create(row).Error; err != nil {
		return fmt.Errorf("creating wallet: %w", err)
	}
	w.ID = row.ID
	return nil
}
