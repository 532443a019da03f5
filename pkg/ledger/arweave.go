package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ArweaveLedger talks to an Arweave-style gateway: GraphQL for tag-indexed
// search, direct HTTP fetch for record bodies, and a bundler upload endpoint
// for publishing.
type ArweaveLedger struct {
	graphqlURL string
	gatewayURL string
	client     *http.Client
}

func NewArweaveLedger(graphqlURL, gatewayURL string) *ArweaveLedger {
	return &ArweaveLedger{
		graphqlURL: graphqlURL,
		gatewayURL: gatewayURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

const searchQuery = `query($fingerprint: String!, $first: Int!) {
  transactions(tags: [{name: "fingerprint", values: [$fingerprint]}], first: $first, sort: HEIGHT_ASC) {
    edges {
      node {
        id
        owner { address }
        block { timestamp }
      }
    }
  }
}`

const lookupQuery = `query($id: ID!) {
  transaction(id: $id) {
    id
    owner { address }
    block { timestamp }
  }
}`

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type transactionNode struct {
	ID    string `json:"id"`
	Owner struct {
		Address string `json:"address"`
	} `json:"owner"`
	Block struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"block"`
}

type searchResponse struct {
	Data struct {
		Transactions struct {
			Edges []struct {
				Node transactionNode `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	} `json:"data"`
}

type lookupResponse struct {
	Data struct {
		Transaction *transactionNode `json:"transaction"`
	} `json:"data"`
}

func (a *ArweaveLedger) SearchByFingerprint(ctx context.Context, fp Fingerprint, limit int) ([]Candidate, error) {
	if limit <= 0 || limit > SearchPageSize {
		limit = SearchPageSize
	}

	var resp searchResponse
	err := a.graphql(ctx, searchQuery, map[string]interface{}{
		"fingerprint": string(fp),
		"first":       limit,
	}, &resp)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(resp.Data.Transactions.Edges))
	for _, edge := range resp.Data.Transactions.Edges {
		candidates = append(candidates, Candidate{
			Address:   edge.Node.ID,
			Timestamp: time.Unix(edge.Node.Block.Timestamp, 0).UTC(),
		})
	}

	return candidates, nil
}

func (a *ArweaveLedger) FetchRecord(ctx context.Context, address string) (*RecordEnvelope, error) {
	// Owner attribution comes from the index, the body from the gateway.
	var lookup lookupResponse
	err := a.graphql(ctx, lookupQuery, map[string]interface{}{"id": address}, &lookup)
	if err != nil {
		return nil, err
	}
	if lookup.Data.Transaction == nil {
		return nil, fmt.Errorf("record %s: %w", address, ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.gatewayURL+"/"+address, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %v", address, ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("record %s: %w", address, ErrNotFound)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %w: status %d", address, ErrUnavailable, httpResp.StatusCode)
	}

	var rec ProofRecord
	if err := json.NewDecoder(httpResp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", address, err)
	}

	return &RecordEnvelope{
		Address: address,
		Owner:   lookup.Data.Transaction.Owner.Address,
		Record:  rec,
	}, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

func (a *ArweaveLedger) PublishRecord(ctx context.Context, rec *ProofRecord) (string, error) {
	payload := struct {
		Data interface{} `json:"data"`
		Tags []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"tags"`
	}{Data: rec}

	payload.Tags = append(payload.Tags,
		struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}{"fingerprint", string(rec.Fingerprint)},
		struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}{"createdAt", rec.CreatedAt.UTC().Format(time.RFC3339)},
	)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gatewayURL+"/records", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish: %w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("publish: %w: status %d", ErrUnavailable, httpResp.StatusCode)
	}

	var upload uploadResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&upload); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if upload.ID == "" {
		return "", fmt.Errorf("publish: empty record id in response")
	}

	return upload.ID, nil
}

func (a *ArweaveLedger) graphql(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("query: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query: %w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode query response: %w", err)
	}

	return nil
}
