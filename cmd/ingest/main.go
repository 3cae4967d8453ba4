// cmd/ingest loads configured wallets, runs the loader/bookkeeper/tax
// pipeline for each entity, and writes the resulting workbook, matching
// the teacher's cmd/scanner: a flag-parsed config path, plain log.Printf
// progress lines, no framework around main.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptotax/internal/bookkeeper"
	"cryptotax/internal/config"
	"cryptotax/internal/db"
	"cryptotax/internal/export"
	"cryptotax/internal/extract"
	"cryptotax/internal/loader"
	"cryptotax/internal/models"
	"cryptotax/internal/netutil"
	"cryptotax/internal/parser"
	"cryptotax/internal/price"
	"cryptotax/internal/tax"
)

var nativeSymbolByChain = map[string]string{
	"ethereum": "ETH",
	"bsc":      "BNB",
	"polygon":  "MATIC",
	"arbitrum": "ETH",
	"optimism": "ETH",
	"base":     "ETH",
	"solana":   "SOL",
}

func nativeSymbolFor(chain string) string {
	if sym, ok := nativeSymbolByChain[chain]; ok {
		return sym
	}
	return strings.ToUpper(chain)
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file")
	entityFilter := flag.String("entity", "", "only process this entity (default: all)")
	periodDays := flag.Int("period-days", 365, "tax period length, ending now")
	outDir := flag.String("out", ".", "directory to write per-entity workbooks into")
	flag.Parse()

	var cfg config.Config
	config.MustLoad(*cfgPath, &cfg)
	config.ApplyProxy(&cfg)

	database, err := db.Open(db.Options{
		DSN:             cfg.Database.DSN,
		Driver:          cfg.Database.Driver,
		Automigrate:     cfg.Database.Automigrate,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifeMins) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleMins) * time.Minute,
	})
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()
	store := db.NewStore(database)

	var priceCache db.CacheInterface
	if cfg.Redis.Enable {
		rc, err := db.NewRedisCacheFromOptions(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("connecting to redis: %v", err)
		}
		priceCache = rc
	} else {
		priceCache = db.NewMemoryCache()
	}
	protectedCache := db.NewProtectedCache(priceCache, db.DefaultCacheProtection)
	store.SetPriceCache(protectedCache)

	var providers []price.Provider
	if cfg.Pricing.Enable {
		rateLimiter := netutil.NewTokenBucket(2, 500*time.Millisecond)
		cg := price.NewCoinGecko(cfg.Pricing.CoinGeckoEndpoint, cfg.Pricing.CoinGeckoAPIKey)
		cg.Limiter = rateLimiter
		cc := price.NewCryptoCompare(cfg.Pricing.CryptoCompareEndpoint, cfg.Pricing.CryptoCompareAPIKey)
		cc.Limiter = netutil.NewTokenBucket(4, 1*time.Second)
		providers = []price.Provider{cg, cc}
	}
	priceService := price.New(store, protectedCache, providers...)

	chainTypes := map[string]models.ChainType{}
	nativeSymbols := map[string]string{}
	for _, c := range cfg.Chains {
		if c.Type == "solana" {
			chainTypes[c.Name] = models.ChainTypeSolana
		} else {
			chainTypes[c.Name] = models.ChainTypeEVM
		}
		nativeSymbols[c.Name] = nativeSymbolFor(c.Name)
	}
	extractor := extract.NewDefaultExtractor(chainTypes, nativeSymbols)

	registry := parser.NewRegistry()
	for _, p := range cfg.Protocols {
		pp, ok := parser.ByName(p.Parser)
		if !ok {
			log.Printf("ingest: unknown protocol parser %q, skipping", p.Parser)
			continue
		}
		registry.RegisterProtocol(p.Chain, p.Address, pp)
	}
	registry.SetFallback(parser.GenericSwap{}, parser.GenericEVM{})
	if cfg.Exchanges.Binance.Enabled {
		registry.RegisterChainParsers("binance",
			parser.BinanceTradeParser{}, parser.BinanceDepositParser{}, parser.BinanceWithdrawalParser{})
	}

	vndRate := decimal.NewFromFloat(cfg.Tax.UsdVndRate)
	bk := bookkeeper.New(store, extractor, registry, priceService, func() decimal.Decimal { return vndRate })

	taxCfg := tax.Config{
		UsdVndRate:            vndRate,
		ExemptionThresholdVND: decimal.NewFromFloat(cfg.Tax.ExemptionThresholdVnd),
		TaxRate:               decimal.NewFromFloat(float64(cfg.Tax.TaxRateBps) / 10000),
	}
	taxEngine := tax.NewEngine(store, taxCfg)

	ctx := context.Background()
	periodEnd := time.Now().UTC().Unix()
	periodStart := periodEnd - int64(*periodDays)*86400

	runID := uuid.NewString()
	log.Printf("ingest: run_id=%s period=[%d,%d]", runID, periodStart, periodEnd)

	for _, entCfg := range cfg.Entities {
		if *entityFilter != "" && entCfg.Name != *entityFilter {
			continue
		}
		if err := processEntity(ctx, runID, entCfg, cfg, store, bk, taxEngine, *outDir, periodStart, periodEnd); err != nil {
			log.Printf("ingest: run_id=%s entity %s failed: %v", runID, entCfg.Name, err)
		}
	}
}

func processEntity(
	ctx context.Context,
	runID string,
	entCfg config.EntityCfg,
	cfg config.Config,
	store *db.Store,
	bk *bookkeeper.Bookkeeper,
	taxEngine *tax.Engine,
	outDir string,
	periodStart, periodEnd int64,
) error {
	entity, err := store.EnsureEntity(ctx, entCfg.Name, "USD")
	if err != nil {
		return fmt.Errorf("ensuring entity: %w", err)
	}
	log.Printf("ingest: run_id=%s entity %s (id=%d)", runID, entity.Name, entity.ID)

	var wallets []*models.Wallet
	for _, wCfg := range entCfg.Wallets {
		w := walletFromConfig(entity.ID, wCfg)
		if err := store.EnsureWallet(ctx, w); err != nil {
			return fmt.Errorf("ensuring wallet %s: %w", wCfg.Label, err)
		}
		wallets = append(wallets, w)
	}

	for _, w := range wallets {
		if err := syncWallet(ctx, w, cfg, store); err != nil {
			log.Printf("ingest: wallet %s sync failed: %v", w.Label, err)
			continue
		}
		res, err := bk.ProcessWallet(ctx, w)
		if err != nil {
			log.Printf("ingest: wallet %s bookkeeping failed: %v", w.Label, err)
			continue
		}
		log.Printf("ingest: wallet %s: %d processed, %d errors", w.Label, res.Processed, res.Errors)
	}

	summary, err := taxEngine.Calculate(ctx, entity.ID, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("tax calculation: %w", err)
	}
	log.Printf("ingest: entity %s realized gain (USD) %s, transfer tax (VND) %s",
		entity.Name, summary.TotalRealizedGainUSD.String(), summary.TotalTransferTaxVND.String())

	filename := fmt.Sprintf("%s/%s_report.xlsx", outDir, sanitizeFilename(entity.Name))
	if err := export.WriteWorkbook(filename, export.Report{
		Entity:     *entity,
		Wallets:    wallets,
		TaxSummary: summary,
		Settings: map[string]string{
			"usd_vnd_rate": fmt.Sprintf("%.2f", cfg.Tax.UsdVndRate),
			"period_start": fmt.Sprintf("%d", periodStart),
			"period_end":   fmt.Sprintf("%d", periodEnd),
		},
	}); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	log.Printf("ingest: wrote %s", filename)
	return nil
}

func walletFromConfig(entityID uint64, w config.WalletCfg) *models.Wallet {
	if w.Exchange != "" {
		return &models.Wallet{
			EntityID: entityID,
			Label:    w.Label,
			Kind:     models.WalletKindCex,
			Cex:      &models.CexWallet{Exchange: w.Exchange},
		}
	}
	return &models.Wallet{
		EntityID: entityID,
		Label:    w.Label,
		Kind:     models.WalletKindOnChain,
		OnChain:  &models.OnChainWallet{Chain: w.Chain, Address: w.Address},
	}
}

func syncWallet(ctx context.Context, w *models.Wallet, cfg config.Config, store *db.Store) error {
	if w.Kind == models.WalletKindCex {
		apiKey := cfg.Exchanges.Binance.APIKey
		secret := cfg.Exchanges.Binance.SecretKey
		client := loader.NewBinanceClient(apiKey, secret)
		client.Limiter = netutil.NewTokenBucket(10, 1*time.Second)
		bl := loader.NewBinanceLoader(client, store, cfg.Exchanges.Binance.Symbols)
		_, err := bl.Sync(ctx, w)
		return err
	}

	chainCfg, ok := config.ChainByName(&cfg, w.OnChain.Chain)
	if !ok {
		return fmt.Errorf("no chain config for %q", w.OnChain.Chain)
	}
	switch chainCfg.Type {
	case "solana":
		client := loader.NewHTTPSolanaClient(chainCfg.RPC)
		client.Limiter = netutil.NewTokenBucket(2, 500*time.Millisecond)
		sl := loader.NewSolanaLoader(client, store)
		_, err := sl.Sync(ctx, w)
		return err
	default:
		client := loader.NewHTTPEtherscanClient(chainCfg.EtherscanAPI, chainCfg.EtherscanAPIKey, chainCfg.RPC)
		client.Limiter = netutil.NewTokenBucket(5, 200*time.Millisecond)
		el := loader.NewEVMLoader(client, store, nativeSymbolFor(w.OnChain.Chain))
		el.Margin = chainCfg.ReorgBlockMargin
		_, err := el.Sync(ctx, w)
		return err
	}
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, s)
}
