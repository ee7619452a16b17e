package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

const rpcTimeout = 10 * time.Second

// ErrUnavailable wraps transport/RPC failures so callers can distinguish
// "the chain says no" from "we could not ask the chain".
var ErrUnavailable = errors.New("solana rpc unavailable")

// Client is a read-only JSON-RPC client for the public Solana endpoint.
// It never holds keys and never writes to the chain.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: rpcTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, method, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: invalid response: %v", ErrUnavailable, method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%w: %s: rpc error %d: %s", ErrUnavailable, method, envelope.Error.Code, envelope.Error.Message)
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%w: %s: invalid result: %v", ErrUnavailable, method, err)
		}
	}
	return nil
}

// tokenAmount is the parsed SPL token amount shape shared by account
// balances and transfer instructions.
type tokenAmount struct {
	Amount   string  `json:"amount"`
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

func (a tokenAmount) value() float64 {
	raw, err := strconv.ParseFloat(a.Amount, 64)
	if err != nil {
		return a.UIAmount
	}
	return raw / math.Pow10(a.Decimals)
}

// TokenBalance returns how many units of mint the wallet holds, reading
// the first token account for that mint. A wallet with no token account
// holds zero.
func (c *Client) TokenBalance(ctx context.Context, wallet, mint string) (float64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount tokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		wallet,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}
	if len(result.Value) == 0 {
		return 0, nil
	}
	return result.Value[0].Account.Data.Parsed.Info.TokenAmount.value(), nil
}

// Burn is a verified token transfer to the burn wallet.
type Burn struct {
	Signature string
	Amount    float64
	BlockTime time.Time
}

// signatureInfo is one entry of getSignaturesForAddress.
type signatureInfo struct {
	Signature string `json:"signature"`
	BlockTime int64  `json:"blockTime"`
}

// burnScanLimit bounds how far back in the wallet's history we look.
const burnScanLimit = 20

// FindBurn scans the wallet's recent transaction history for the claimed
// signature and verifies it is an SPL token transfer of at least
// minAmount to burnWallet within the trailing window. Returns nil if no
// qualifying transfer is found.
func (c *Client) FindBurn(ctx context.Context, wallet, burnWallet, claimedSignature string, minAmount float64, window time.Duration) (*Burn, error) {
	var sigs []signatureInfo
	params := []any{wallet, map[string]int{"limit": burnScanLimit}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &sigs); err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-window)
	for _, sig := range sigs {
		if sig.Signature != claimedSignature {
			continue
		}
		blockTime := time.Unix(sig.BlockTime, 0)
		if blockTime.Before(cutoff) {
			return nil, nil
		}
		amount, err := c.transferredToBurn(ctx, sig.Signature, burnWallet)
		if err != nil {
			return nil, err
		}
		if amount >= minAmount {
			return &Burn{Signature: sig.Signature, Amount: amount, BlockTime: blockTime}, nil
		}
		return nil, nil
	}
	return nil, nil
}

// transferredToBurn returns the largest spl-token amount the transaction
// moved to the burn wallet, or 0 if it contains no such transfer.
func (c *Client) transferredToBurn(ctx context.Context, signature, burnWallet string) (float64, error) {
	var tx struct {
		Transaction struct {
			Message struct {
				Instructions []struct {
					Program string `json:"program"`
					Parsed  struct {
						Info struct {
							Destination string      `json:"destination"`
							TokenAmount tokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	}
	params := []any{
		signature,
		map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
	}
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return 0, err
	}

	var best float64
	for _, inst := range tx.Transaction.Message.Instructions {
		if inst.Program != "spl-token" || inst.Parsed.Info.Destination != burnWallet {
			continue
		}
		if amt := inst.Parsed.Info.TokenAmount.value(); amt > best {
			best = amt
		}
	}
	return best, nil
}
