// Package extract implements the TransferExtractor (§4.1): turning a
// chain-specific raw transaction blob into a flat list of RawTransfer and
// EventData the parser pipeline consumes.
package extract

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"cryptotax/internal/models"
	"cryptotax/internal/rawtx"
)

// EVMNormalTx mirrors the Etherscan-shaped "normal transaction" record
// (§6.1), enriched by the loader with the attached token-transfer and
// internal-transfer lists.
type EVMNormalTx struct {
	Hash              string               `json:"hash"`
	From              string               `json:"from"`
	To                string               `json:"to"`
	Value             *big.Int             `json:"value"`
	GasUsed           uint64               `json:"gasUsed"`
	GasPrice          uint64               `json:"gasPrice"`
	BlockNumber       uint64               `json:"blockNumber"`
	Timestamp         int64                `json:"timeStamp"`
	Input             string               `json:"input"`
	TokenTransfers    []EVMTokenTransfer   `json:"token_transfers"`
	InternalTransfers []EVMInternalTransfer `json:"internal_transfers"`
}

// EVMTokenTransfer is one ERC-20 Transfer item attached to a normal tx.
type EVMTokenTransfer struct {
	ContractAddress string   `json:"contractAddress"`
	TokenSymbol     string   `json:"tokenSymbol"`
	TokenDecimal    int      `json:"tokenDecimal"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Value           *big.Int `json:"value"`
}

// EVMInternalTransfer is one internal-call value transfer attached to a
// normal tx.
type EVMInternalTransfer struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Value   *big.Int `json:"value"`
	IsError bool     `json:"isError"`
}

// NormalizeEVMAddress lowercases an EVM address after passing it through
// go-ethereum's common.HexToAddress, which does no validation: input of
// the wrong length is padded or truncated to 20 bytes (§4.1: "Addresses
// are normalized case (lowercase for EVM...)").
func NormalizeEVMAddress(addr string) string {
	if addr == "" {
		return ""
	}
	return strings.ToLower(common.HexToAddress(addr).Hex())
}

// EVMTransfers implements the EVM path of §4.1: one native transfer if
// value > 0, one erc20 transfer per attached token-transfer item with a
// nonzero value, one internal transfer per non-errored internal-tx item
// with a nonzero value.
func EVMTransfers(tx EVMNormalTx, nativeSymbol string) []rawtx.RawTransfer {
	var out []rawtx.RawTransfer

	if tx.Value != nil && tx.Value.Sign() > 0 {
		out = append(out, rawtx.RawTransfer{
			From:       NormalizeEVMAddress(tx.From),
			To:         NormalizeEVMAddress(tx.To),
			ValueUnits: new(big.Int).Set(tx.Value),
			Decimals:   18,
			Symbol:     nativeSymbol,
			Kind:       models.TransferNative,
		})
	}

	for _, tt := range tx.TokenTransfers {
		if tt.Value == nil || tt.Value.Sign() == 0 {
			continue
		}
		addr := NormalizeEVMAddress(tt.ContractAddress)
		out = append(out, rawtx.RawTransfer{
			TokenAddress: &addr,
			From:         NormalizeEVMAddress(tt.From),
			To:           NormalizeEVMAddress(tt.To),
			ValueUnits:   new(big.Int).Set(tt.Value),
			Decimals:     tt.TokenDecimal,
			Symbol:       tt.TokenSymbol,
			Kind:         models.TransferERC20,
		})
	}

	for _, it := range tx.InternalTransfers {
		if it.IsError || it.Value == nil || it.Value.Sign() == 0 {
			continue
		}
		out = append(out, rawtx.RawTransfer{
			From:       NormalizeEVMAddress(it.From),
			To:         NormalizeEVMAddress(it.To),
			ValueUnits: new(big.Int).Set(it.Value),
			Decimals:   18,
			Symbol:     nativeSymbol,
			Kind:       models.TransferInternal,
		})
	}

	return out
}
