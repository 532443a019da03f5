// Package store holds the mutable marketplace metadata rows the verification
// core needs to consult: one row per stamped artifact, keyed by content
// fingerprint. Titles, prices and visibility are owned by the marketplace
// layer; the core only ever reads fingerprint groupings for the singularity
// check and appends a row after a successful mint.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/provn-io/provn/pkg/ledger"
)

// ArtifactMeta is one stamped artifact as the marketplace sees it.
type ArtifactMeta struct {
	ID          string             `json:"id"`
	Fingerprint ledger.Fingerprint `json:"fingerprint"`
	LedgerRef   string             `json:"ledger_ref"`
	TokenID     string             `json:"token_id"`
	Title       string             `json:"title"`
	Price       int64              `json:"price"`
	Hidden      bool               `json:"hidden"`
	CreatedAt   time.Time          `json:"created_at"`
}

var ErrArtifactNotFound = errors.New("store: artifact not found")

// MetadataStore is the mutable store interface the core depends on.
type MetadataStore interface {
	// SaveArtifact inserts a row. The caller assigns no ID; the store does.
	SaveArtifact(ctx context.Context, meta *ArtifactMeta) error

	// ListByFingerprint returns every row sharing a fingerprint, oldest
	// first.
	ListByFingerprint(ctx context.Context, fp ledger.Fingerprint) ([]ArtifactMeta, error)

	// GetArtifact fetches a single row by id.
	GetArtifact(ctx context.Context, id string) (*ArtifactMeta, error)
}
