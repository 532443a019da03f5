package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// SearchPageSize bounds a single tag-indexed query against the data ledger.
const SearchPageSize = 100

// Fingerprint is the hex-encoded SHA-256 digest binding a proof to specific
// content bytes. It is the sole join key between records on both ledgers.
type Fingerprint string

// ComputeFingerprint hashes the binding-relevant bytes of a piece of content.
func ComputeFingerprint(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Valid reports whether f looks like a SHA-256 hex digest.
func (f Fingerprint) Valid() bool {
	if len(f) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(f))
	return err == nil
}

// ProofRecord is an immutable entry on the append-only data ledger. Once
// published it is never altered or deleted; duplicate detection relies on that.
type ProofRecord struct {
	Fingerprint      Fingerprint `json:"fingerprint"`
	RootSigner       string      `json:"root_signer"`
	Issuer           string      `json:"issuer"`
	PredictedTokenID string      `json:"predicted_token_id"`
	CreatedAt        time.Time   `json:"created_at"`
	ImageRef         string      `json:"image_ref,omitempty"`
}

// RecordEnvelope is a proof record as fetched from the ledger, together with
// its ledger address and the owner identity the ledger attributes the write to.
type RecordEnvelope struct {
	Address string
	Owner   string
	Record  ProofRecord
}

// OwnershipToken is the current state of a token on the ownership ledger.
type OwnershipToken struct {
	TokenID     string `json:"token_id"`
	Holder      string `json:"holder"`
	MetadataURI string `json:"metadata_uri"`
	Burned      bool   `json:"burned"`
}

// Candidate pairs a data-ledger address with its indexed timestamp.
type Candidate struct {
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

// MintRequest describes a token to mint on the ownership ledger.
type MintRequest struct {
	Recipient   string
	MetadataURI string
	Name        string
	Symbol      string
}

var (
	// ErrNotFound is returned by point lookups for absent records or tokens.
	ErrNotFound = errors.New("ledger: not found")

	// ErrUnavailable wraps transport-level failures. Callers may retry.
	ErrUnavailable = errors.New("ledger: unavailable")
)

// ImmutableLedger is the append-only data ledger holding proof records.
type ImmutableLedger interface {
	// SearchByFingerprint returns candidates whose fingerprint tag matches
	// exactly, up to limit, in the order the ledger index yields them.
	SearchByFingerprint(ctx context.Context, fp Fingerprint, limit int) ([]Candidate, error)

	// FetchRecord retrieves a record body by ledger address.
	FetchRecord(ctx context.Context, address string) (*RecordEnvelope, error)

	// PublishRecord writes an immutable record and returns its ledger address.
	PublishRecord(ctx context.Context, rec *ProofRecord) (string, error)
}

// OwnershipLedger is the mutable-state ledger recording token ownership.
type OwnershipLedger interface {
	// GetToken is a point lookup by token id. Returns ErrNotFound when the
	// ledger has no such asset; a just-minted token may legitimately be
	// invisible for a while.
	GetToken(ctx context.Context, tokenID string) (*OwnershipToken, error)

	// Mint submits a mint transaction and waits for ledger confirmation.
	Mint(ctx context.Context, req MintRequest) (string, error)

	// MintedCount reads the tree/collection counter backing identifier
	// prediction.
	MintedCount(ctx context.Context) (uint64, error)

	// DeriveTokenID maps a leaf index to the token identifier the ledger
	// will assign to it.
	DeriveTokenID(leafIndex uint64) string
}
