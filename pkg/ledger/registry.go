package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RegistryLedger talks to a compressed-token registry over JSON-RPC: asset
// point lookups, mint submission with confirmation, and the tree counter
// backing identifier prediction.
type RegistryLedger struct {
	endpoint       string
	treeAddress    string
	confirmTimeout time.Duration
	client         *http.Client
}

func NewRegistryLedger(endpoint, treeAddress string, confirmTimeout time.Duration) *RegistryLedger {
	if confirmTimeout <= 0 {
		confirmTimeout = 60 * time.Second
	}

	return &RegistryLedger{
		endpoint:       endpoint,
		treeAddress:    treeAddress,
		confirmTimeout: confirmTimeout,
		client: &http.Client{
			Timeout: confirmTimeout + 10*time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type assetResult struct {
	ID        string `json:"id"`
	Burnt     bool   `json:"burnt"`
	Ownership struct {
		Owner string `json:"owner"`
	} `json:"ownership"`
	Content struct {
		JSONURI string `json:"json_uri"`
	} `json:"content"`
}

func (r *RegistryLedger) GetToken(ctx context.Context, tokenID string) (*OwnershipToken, error) {
	var result *assetResult
	err := r.call(ctx, "getAsset", map[string]interface{}{"id": tokenID}, &result)
	if err != nil {
		return nil, err
	}
	if result == nil || result.ID == "" {
		return nil, fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}

	return &OwnershipToken{
		TokenID:     result.ID,
		Holder:      result.Ownership.Owner,
		MetadataURI: result.Content.JSONURI,
		Burned:      result.Burnt,
	}, nil
}

type mintResult struct {
	Signature string `json:"signature"`
	Confirmed bool   `json:"confirmed"`
}

// Mint submits the transaction and polls until the ledger reports it
// confirmed. A submission that never confirms within the timeout is a
// failure, not an assumed success.
func (r *RegistryLedger) Mint(ctx context.Context, req MintRequest) (string, error) {
	var result mintResult
	err := r.call(ctx, "mintCompressed", map[string]interface{}{
		"tree":        r.treeAddress,
		"recipient":   req.Recipient,
		"metadataUri": req.MetadataURI,
		"name":        req.Name,
		"symbol":      req.Symbol,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.Signature == "" {
		return "", fmt.Errorf("mint: empty signature in response")
	}
	if result.Confirmed {
		return result.Signature, nil
	}

	deadline := time.Now().Add(r.confirmTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}

		var status struct {
			Confirmed bool `json:"confirmed"`
		}
		if err := r.call(ctx, "getSignatureStatus", map[string]interface{}{"signature": result.Signature}, &status); err != nil {
			continue
		}
		if status.Confirmed {
			return result.Signature, nil
		}
	}

	return "", fmt.Errorf("mint %s: confirmation timed out after %s", result.Signature, r.confirmTimeout)
}

func (r *RegistryLedger) MintedCount(ctx context.Context) (uint64, error) {
	var result struct {
		NumMinted uint64 `json:"num_minted"`
	}
	err := r.call(ctx, "getTreeConfig", map[string]interface{}{"tree": r.treeAddress}, &result)
	if err != nil {
		return 0, err
	}

	return result.NumMinted, nil
}

// DeriveTokenID maps a leaf index to its asset identifier within the tree.
func (r *RegistryLedger) DeriveTokenID(leafIndex uint64) string {
	return fmt.Sprintf("%s/%d", r.treeAddress, leafIndex)
}

func (r *RegistryLedger) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: status %d", method, ErrUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		// Point lookups use a null result for absent assets.
		return nil
	}

	return json.Unmarshal(rpcResp.Result, out)
}
