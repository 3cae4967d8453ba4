package loader

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"cryptotax/internal/extract"
	"cryptotax/internal/netutil"
)

// HTTPEtherscanClient talks to an Etherscan-v2-compatible "txlist" REST
// API for normal/internal/token transfers, and a plain JSON-RPC endpoint
// for eth_blockNumber, matching the teacher's split between
// netutil.GetJSON (Etherscan) and gethrpc.DialContext (node RPC) in
// internal/chains/evm.go.
type HTTPEtherscanClient struct {
	APIBaseURL string
	APIKey     string
	RPCURL     string
	Limiter    *netutil.TokenBucket
}

func NewHTTPEtherscanClient(apiBaseURL, apiKey, rpcURL string) *HTTPEtherscanClient {
	return &HTTPEtherscanClient{APIBaseURL: apiBaseURL, APIKey: apiKey, RPCURL: rpcURL}
}

func (c *HTTPEtherscanClient) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

func (c *HTTPEtherscanClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	rpc, err := gethrpc.DialContext(ctx, c.RPCURL)
	if err != nil {
		return 0, err
	}
	defer rpc.Close()
	var hexNum string
	if err := rpc.CallContext(ctx, &hexNum, "eth_blockNumber"); err != nil {
		return 0, err
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(hexNum, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("etherscan: malformed block number %q", hexNum)
	}
	return n.Uint64(), nil
}

type etherscanTxlistResult struct {
	Result []struct {
		Hash        string `json:"hash"`
		From        string `json:"from"`
		To          string `json:"to"`
		Value       string `json:"value"`
		BlockNumber string `json:"blockNumber"`
		TimeStamp   string `json:"timeStamp"`
		GasUsed     string `json:"gasUsed"`
		GasPrice    string `json:"gasPrice"`
		Input       string `json:"input"`
		IsError     string `json:"isError"`
	} `json:"result"`
}

func (c *HTTPEtherscanClient) query(ctx context.Context, action, address string, fromBlock, toBlock uint64) (etherscanTxlistResult, error) {
	var out etherscanTxlistResult
	if err := c.wait(ctx); err != nil {
		return out, err
	}
	url := fmt.Sprintf("%s?module=account&action=%s&address=%s&startblock=%d&endblock=%d&sort=asc&apikey=%s",
		c.APIBaseURL, action, address, fromBlock, toBlock, c.APIKey)
	err := netutil.GetJSON(ctx, url, &out)
	return out, err
}

func parseUintDefault(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

func (c *HTTPEtherscanClient) NormalTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]extract.EVMNormalTx, error) {
	res, err := c.query(ctx, "txlist", address, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	out := make([]extract.EVMNormalTx, 0, len(res.Result))
	for _, r := range res.Result {
		value, _ := new(big.Int).SetString(r.Value, 10)
		if value == nil {
			value = big.NewInt(0)
		}
		out = append(out, extract.EVMNormalTx{
			Hash:        r.Hash,
			From:        r.From,
			To:          r.To,
			Value:       value,
			BlockNumber: parseUintDefault(r.BlockNumber),
			Timestamp:   int64(parseUintDefault(r.TimeStamp)),
			GasUsed:     parseUintDefault(r.GasUsed),
			GasPrice:    parseUintDefault(r.GasPrice),
			Input:       r.Input,
		})
	}
	return out, nil
}

func (c *HTTPEtherscanClient) InternalTransactions(ctx context.Context, address string, fromBlock, toBlock uint64) ([]InternalTransferRow, error) {
	res, err := c.query(ctx, "txlistinternal", address, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	out := make([]InternalTransferRow, 0, len(res.Result))
	for _, r := range res.Result {
		value, _ := new(big.Int).SetString(r.Value, 10)
		if value == nil {
			value = big.NewInt(0)
		}
		out = append(out, InternalTransferRow{
			Hash: r.Hash,
			EVMInternalTransfer: extract.EVMInternalTransfer{
				From:    r.From,
				To:      r.To,
				Value:   value,
				IsError: r.IsError == "1",
			},
		})
	}
	return out, nil
}

type etherscanTokentxResult struct {
	Result []struct {
		Hash            string `json:"hash"`
		From            string `json:"from"`
		To              string `json:"to"`
		Value           string `json:"value"`
		ContractAddress string `json:"contractAddress"`
		TokenSymbol     string `json:"tokenSymbol"`
		TokenDecimal    string `json:"tokenDecimal"`
	} `json:"result"`
}

func (c *HTTPEtherscanClient) TokenTransfers(ctx context.Context, address string, fromBlock, toBlock uint64) ([]TokenTransferRow, error) {
	var res etherscanTokentxResult
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s?module=account&action=tokentx&address=%s&startblock=%d&endblock=%d&sort=asc&apikey=%s",
		c.APIBaseURL, address, fromBlock, toBlock, c.APIKey)
	if err := netutil.GetJSON(ctx, url, &res); err != nil {
		return nil, err
	}
	out := make([]TokenTransferRow, 0, len(res.Result))
	for _, r := range res.Result {
		value, _ := new(big.Int).SetString(r.Value, 10)
		if value == nil {
			value = big.NewInt(0)
		}
		out = append(out, TokenTransferRow{
			Hash: r.Hash,
			EVMTokenTransfer: extract.EVMTokenTransfer{
				From:            r.From,
				To:              r.To,
				Value:           value,
				ContractAddress: r.ContractAddress,
				TokenSymbol:     r.TokenSymbol,
				TokenDecimal:    int(parseUintDefault(r.TokenDecimal)),
			},
		})
	}
	return out, nil
}
