package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"cryptotax/internal/extract"
	"cryptotax/internal/netutil"
)

// rpcRequest/rpcResponse mirror the JSON-RPC 2.0 envelope the teacher's
// cmd/scanner uses for raw node calls (rpcReq/rpcResp), since Solana's
// getSignaturesForAddress/getTransaction have no Etherscan-style REST
// mirror and must go straight to the node's JSON-RPC endpoint.
type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPSolanaClient implements SolanaClient against a Solana JSON-RPC
// endpoint.
type HTTPSolanaClient struct {
	RPCURL  string
	Limiter *netutil.TokenBucket
}

func NewHTTPSolanaClient(rpcURL string) *HTTPSolanaClient {
	return &HTTPSolanaClient{RPCURL: rpcURL}
}

func (c *HTTPSolanaClient) call(ctx context.Context, method string, params []interface{}, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req := rpcRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: params}
	var resp rpcResponse
	if err := netutil.PostJSON(ctx, c.RPCURL, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("solana rpc %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}

func (c *HTTPSolanaClient) SignaturesForAddress(ctx context.Context, address string, before string, limit int) ([]SolanaSignature, error) {
	opts := map[string]any{"limit": limit}
	if before != "" {
		opts["before"] = before
	}
	var out []SolanaSignature
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{address, opts}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type solanaTxEnvelope struct {
	Slot        uint64 `json:"slot"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta struct {
		Fee               uint64                      `json:"fee"`
		PreBalances       []int64                     `json:"preBalances"`
		PostBalances      []int64                     `json:"postBalances"`
		PreTokenBalances  []solanaTokenBalanceWire     `json:"preTokenBalances"`
		PostTokenBalances []solanaTokenBalanceWire     `json:"postTokenBalances"`
	} `json:"meta"`
}

type solanaTokenBalanceWire struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UiTokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"uiTokenAmount"`
	TokenInfo struct {
		Symbol string `json:"symbol"`
	} `json:"tokenInfo"`
}

func (c *HTTPSolanaClient) GetTransaction(ctx context.Context, signature string) (*extract.SolanaTx, uint64, error) {
	opts := map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0}
	var env solanaTxEnvelope
	if err := c.call(ctx, "getTransaction", []interface{}{signature, opts}, &env); err != nil {
		return nil, 0, err
	}

	toBig := func(v int64) *big.Int { return big.NewInt(v) }
	pre := make([]*big.Int, len(env.Meta.PreBalances))
	for i, v := range env.Meta.PreBalances {
		pre[i] = toBig(v)
	}
	post := make([]*big.Int, len(env.Meta.PostBalances))
	for i, v := range env.Meta.PostBalances {
		post[i] = toBig(v)
	}

	convertTokenBalances := func(wire []solanaTokenBalanceWire) []extract.SolanaTokenBalance {
		out := make([]extract.SolanaTokenBalance, len(wire))
		for i, w := range wire {
			amt := new(big.Int)
			amt.SetString(w.UiTokenAmount.Amount, 10)
			out[i] = extract.SolanaTokenBalance{
				AccountIndex: w.AccountIndex,
				Mint:         w.Mint,
				Owner:        w.Owner,
				Amount:       amt,
				Decimals:     w.UiTokenAmount.Decimals,
				Symbol:       w.TokenInfo.Symbol,
			}
		}
		return out
	}

	tx := &extract.SolanaTx{
		AccountKeys:       env.Transaction.Message.AccountKeys,
		Fee:               env.Meta.Fee,
		PreBalances:       pre,
		PostBalances:      post,
		PreTokenBalances:  convertTokenBalances(env.Meta.PreTokenBalances),
		PostTokenBalances: convertTokenBalances(env.Meta.PostTokenBalances),
	}
	return tx, env.Slot, nil
}
