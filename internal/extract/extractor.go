package extract

import (
	"encoding/json"
	"fmt"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// Extractor is the interface the bookkeeper depends on: a Transaction in,
// a flat transfer/event list out. DefaultExtractor is the production
// implementation; the Bookkeeper's own tests can substitute a stub.
type Extractor interface {
	Extract(tx *models.Transaction) ([]rawtx.RawTransfer, []rawtx.EventData, error)
}

// DefaultExtractor dispatches on the chain's ChainType (evm/solana) and
// unmarshals tx.RawData into the loader's canonical per-chain shape
// before running the §4.1 extraction rules. CEX transactions (RawData
// already shaped for the Binance parsers) have no transfers to extract;
// DefaultExtractor returns an empty list rather than erroring so the
// Bookkeeper can still build a TransactionContext around them.
type DefaultExtractor struct {
	ChainTypes    map[string]models.ChainType // chain name -> evm/solana
	NativeSymbols map[string]string           // chain name -> native gas symbol
}

func NewDefaultExtractor(chainTypes map[string]models.ChainType, nativeSymbols map[string]string) *DefaultExtractor {
	return &DefaultExtractor{ChainTypes: chainTypes, NativeSymbols: nativeSymbols}
}

func (e *DefaultExtractor) Extract(tx *models.Transaction) ([]rawtx.RawTransfer, []rawtx.EventData, error) {
	chainType, ok := e.ChainTypes[tx.Chain]
	if !ok {
		// Unrecognized chain type: treat as CEX-shaped (no transfers).
		return nil, nil, nil
	}

	switch chainType {
	case models.ChainTypeEVM:
		var raw EVMNormalTx
		if err := json.Unmarshal(tx.RawData, &raw); err != nil {
			return nil, nil, fmt.Errorf("unmarshal evm tx %s: %w", tx.TxHash, err)
		}
		return EVMTransfers(raw, e.NativeSymbols[tx.Chain]), nil, nil

	case models.ChainTypeSolana:
		var raw SolanaTx
		if err := json.Unmarshal(tx.RawData, &raw); err != nil {
			return nil, nil, fmt.Errorf("unmarshal solana tx %s: %w", tx.TxHash, err)
		}
		return SolanaTransfers(raw), nil, nil

	default:
		return nil, nil, nil
	}
}
