package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDataLedger is an in-process ImmutableLedger used by tests and dev
// mode. Appends are write-once; nothing is ever updated or removed.
type MemoryDataLedger struct {
	mu      sync.RWMutex
	records map[string]*RecordEnvelope
	order   []string

	searchErr error
	fetchErr  map[string]error
}

func NewMemoryDataLedger() *MemoryDataLedger {
	return &MemoryDataLedger{
		records:  make(map[string]*RecordEnvelope),
		fetchErr: make(map[string]error),
	}
}

func (m *MemoryDataLedger) SearchByFingerprint(ctx context.Context, fp Fingerprint, limit int) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit <= 0 || limit > SearchPageSize {
		limit = SearchPageSize
	}

	var candidates []Candidate
	for _, addr := range m.order {
		env := m.records[addr]
		if env.Record.Fingerprint != fp {
			continue
		}
		candidates = append(candidates, Candidate{
			Address:   addr,
			Timestamp: env.Record.CreatedAt,
		})
		if len(candidates) >= limit {
			break
		}
	}

	return candidates, nil
}

func (m *MemoryDataLedger) FetchRecord(ctx context.Context, address string) (*RecordEnvelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fetchErr[address]; err != nil {
		return nil, err
	}

	env, ok := m.records[address]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", address, ErrNotFound)
	}

	copied := *env
	return &copied, nil
}

func (m *MemoryDataLedger) PublishRecord(ctx context.Context, rec *ProofRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	address := uuid.New().String()
	m.records[address] = &RecordEnvelope{
		Address: address,
		Owner:   rec.Issuer,
		Record:  *rec,
	}
	m.order = append(m.order, address)

	return address, nil
}

// SetSearchError makes subsequent searches fail, simulating an unreachable
// index.
func (m *MemoryDataLedger) SetSearchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
}

// SetFetchError makes lookups of one address fail.
func (m *MemoryDataLedger) SetFetchError(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fetchErr, address)
		return
	}
	m.fetchErr[address] = err
}

// MemoryOwnershipLedger is an in-process OwnershipLedger for tests and dev
// mode.
type MemoryOwnershipLedger struct {
	mu     sync.RWMutex
	tree   string
	tokens map[string]*OwnershipToken
	minted uint64

	mintErr error
	hidden  map[string]bool

	lastRequest *MintRequest
}

func NewMemoryOwnershipLedger(tree string) *MemoryOwnershipLedger {
	return &MemoryOwnershipLedger{
		tree:   tree,
		tokens: make(map[string]*OwnershipToken),
		hidden: make(map[string]bool),
	}
}

func (m *MemoryOwnershipLedger) GetToken(ctx context.Context, tokenID string) (*OwnershipToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[tokenID]
	if !ok || m.hidden[tokenID] {
		return nil, fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}

	copied := *token
	return &copied, nil
}

func (m *MemoryOwnershipLedger) Mint(ctx context.Context, req MintRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mintErr != nil {
		return "", m.mintErr
	}

	tokenID := m.DeriveTokenID(m.minted)
	m.tokens[tokenID] = &OwnershipToken{
		TokenID:     tokenID,
		Holder:      req.Recipient,
		MetadataURI: req.MetadataURI,
	}
	m.minted++
	m.lastRequest = &req

	return uuid.New().String(), nil
}

func (m *MemoryOwnershipLedger) MintedCount(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minted, nil
}

func (m *MemoryOwnershipLedger) DeriveTokenID(leafIndex uint64) string {
	return fmt.Sprintf("%s/%d", m.tree, leafIndex)
}

// Burn voids a token. The ledger keeps the entry so lookups report burnt
// rather than absent.
func (m *MemoryOwnershipLedger) Burn(tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if !ok {
		return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	token.Burned = true

	return nil
}

// Transfer reassigns the holder of a token.
func (m *MemoryOwnershipLedger) Transfer(tokenID, newHolder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if !ok {
		return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	token.Holder = newHolder

	return nil
}

// SetMintError makes subsequent mints fail.
func (m *MemoryOwnershipLedger) SetMintError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mintErr = err
}

// SetHidden simulates eventual consistency: the token exists but the asset
// index does not surface it yet.
func (m *MemoryOwnershipLedger) SetHidden(tokenID string, hidden bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden[tokenID] = hidden
}

// SetTokenURI rewrites a token's metadata reference. Only tests use this, to
// construct hijacked cross-links.
func (m *MemoryOwnershipLedger) SetTokenURI(tokenID, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if !ok {
		return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	}
	token.MetadataURI = uri

	return nil
}

// LastMintRequest returns the most recent mint request, or nil.
func (m *MemoryOwnershipLedger) LastMintRequest() *MintRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRequest == nil {
		return nil
	}
	copied := *m.lastRequest
	return &copied
}

// Backdate rewrites a record timestamp; only the memory ledger can do this
// and only tests need it.
func (m *MemoryDataLedger) Backdate(address string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	env, ok := m.records[address]
	if !ok {
		return fmt.Errorf("record %s: %w", address, ErrNotFound)
	}
	env.Record.CreatedAt = ts

	return nil
}

var _ ImmutableLedger = (*MemoryDataLedger)(nil)
var _ OwnershipLedger = (*MemoryOwnershipLedger)(nil)
