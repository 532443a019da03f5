// Package mint implements the predict-then-mint write path: predict the next
// token identifier from ledger state, publish an immutable proof record that
// references it, mint the token, then reconcile predicted against actual.
package mint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
)

var (
	// ErrDuplicateProof is a deliberate business rejection, not an
	// operational failure: a live proof already exists for this
	// (fingerprint, issuer).
	ErrDuplicateProof = errors.New("mint: live duplicate proof exists")

	// ErrMintFailure marks a failed token mint. The proof record published
	// before it stays on the ledger as a recoverable orphan.
	ErrMintFailure = errors.New("mint: token mint failed")

	// ErrInvalidVerdict rejects mint attempts for manifests that did not
	// pass verification.
	ErrInvalidVerdict = errors.New("mint: manifest verdict is not valid")
)

// MintLock serializes mint attempts per issuing identity. Two interleaved
// mints against the same counter would predict the same identifier, so the
// caller must provide this capability; the orchestrator holds no persistent
// lock state of its own.
type MintLock interface {
	WithLock(issuerID string, fn func() error) error
}

// Request describes one mint attempt.
type Request struct {
	Verdict   manifest.TrustVerdict
	Recipient string
	ImageRef  string
	Title     string
}

// Result is a completed mint: the immutable record's address and the token
// that now backs it.
type Result struct {
	LedgerRef   string `json:"ledger_ref"`
	TokenID     string `json:"token_id"`
	TxSignature string `json:"tx_signature"`
}

// Orchestrator runs the strictly sequential four-step mint protocol.
type Orchestrator struct {
	data      ledger.ImmutableLedger
	ownership ledger.OwnershipLedger
	lock      MintLock
	issuer    string
	gateway   string
	symbol    string
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator minting as the given issuer
// identity. gateway is the public base URL records resolve under; token
// metadata URIs point there.
func NewOrchestrator(data ledger.ImmutableLedger, ownership ledger.OwnershipLedger, lock MintLock, issuer, gateway string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lock == nil {
		lock = NewKeyedMutex()
	}
	return &Orchestrator{
		data:      data,
		ownership: ownership,
		lock:      lock,
		issuer:    issuer,
		gateway:   gateway,
		symbol:    "PRVN",
		logger:    logger,
	}
}

// Issuer returns the ledger identity this orchestrator mints as.
func (o *Orchestrator) Issuer() string {
	return o.issuer
}

// RecordURI returns the public URI of a published record. The cross-link
// invariant keys off this value.
func (o *Orchestrator) RecordURI(address string) string {
	return o.gateway + "/" + address
}

// Mint executes predict, publish, mint, reconcile as one logical unit under
// the issuer lock. Any step failure aborts the whole operation; nothing is
// cleaned up, since a published-but-unminted record resolves naturally to
// "not a duplicate" and a retry re-predicts a fresh identifier.
func (o *Orchestrator) Mint(ctx context.Context, req Request) (*Result, error) {
	if !req.Verdict.IsValid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerdict, req.Verdict.Reasons)
	}
	if !req.Verdict.BindingHash.Valid() {
		return nil, fmt.Errorf("%w: missing binding hash", ErrInvalidVerdict)
	}

	var result *Result
	err := o.lock.WithLock(o.issuer, func() error {
		var err error
		result, err = o.mintLocked(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (o *Orchestrator) mintLocked(ctx context.Context, req Request) (*Result, error) {
	// Step 1: predict the next identifier from the current counter.
	count, err := o.ownership.MintedCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("predict: counter read failed: %w", err)
	}
	predicted := o.ownership.DeriveTokenID(count)

	// Step 2: publish the immutable record before minting, so the resolver
	// can find a candidate even if the mint later fails or races.
	record := &ledger.ProofRecord{
		Fingerprint:      req.Verdict.BindingHash,
		RootSigner:       req.Verdict.RootSigner,
		Issuer:           o.issuer,
		PredictedTokenID: predicted,
		CreatedAt:        time.Now().UTC(),
		ImageRef:         req.ImageRef,
	}
	address, err := o.data.PublishRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	o.logger.Info("proof record published",
		zap.String("ledger_ref", address),
		zap.String("fingerprint", string(record.Fingerprint)),
		zap.String("predicted_token_id", predicted))

	// Step 3: mint with the metadata URI pointing back at the record, and
	// wait for confirmation.
	name := req.Title
	if name == "" {
		name = "Provenance Proof"
	}
	signature, err := o.ownership.Mint(ctx, ledger.MintRequest{
		Recipient:   req.Recipient,
		MetadataURI: o.RecordURI(address),
		Name:        name,
		Symbol:      o.symbol,
	})
	if err != nil {
		o.logger.Error("mint failed, record orphaned",
			zap.String("ledger_ref", address),
			zap.String("predicted_token_id", predicted),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrMintFailure, err)
	}

	// Step 4: reconcile the predicted identifier against what was actually
	// minted. A mismatch is logged, never fatal: the cross-link invariant
	// keys off the actual token.
	actual := predicted
	after, err := o.ownership.MintedCount(ctx)
	if err != nil {
		o.logger.Warn("reconcile: counter read failed, keeping prediction",
			zap.String("predicted_token_id", predicted),
			zap.Error(err))
	} else if after > 0 {
		actual = o.ownership.DeriveTokenID(after - 1)
		if actual != predicted {
			o.logger.Warn("reconcile: predicted identifier mismatch",
				zap.String("predicted_token_id", predicted),
				zap.String("actual_token_id", actual))
		}
	}

	o.logger.Info("mint complete",
		zap.String("ledger_ref", address),
		zap.String("token_id", actual),
		zap.String("tx_signature", signature))

	return &Result{
		LedgerRef:   address,
		TokenID:     actual,
		TxSignature: signature,
	}, nil
}
