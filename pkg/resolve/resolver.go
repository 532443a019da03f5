// Package resolve walks the two ledgers to answer one question from both the
// write and the read path: is there a live, cross-referenced proof for this
// fingerprint, and if so which one.
package resolve

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/ledger"
)

// Resolver combines the append-only data ledger and the ownership ledger.
type Resolver struct {
	data      ledger.ImmutableLedger
	ownership ledger.OwnershipLedger
	global    bool
	logger    *zap.Logger
}

// NewResolver creates a resolver. When globalUniqueness is set, proofs from
// any issuer block a mint; otherwise uniqueness is scoped to (fingerprint,
// issuer).
func NewResolver(data ledger.ImmutableLedger, ownership ledger.OwnershipLedger, globalUniqueness bool, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		data:      data,
		ownership: ownership,
		global:    globalUniqueness,
		logger:    logger,
	}
}

// LiveProof is a located proof record whose referenced token exists and is
// not burned.
type LiveProof struct {
	Envelope ledger.RecordEnvelope
	Token    ledger.OwnershipToken
}

// DuplicateCheck is the resolver's answer for a prospective mint.
type DuplicateCheck struct {
	IsDuplicate     bool   `json:"is_duplicate"`
	BlockingTokenID string `json:"blocking_token_id,omitempty"`
	LedgerRef       string `json:"ledger_ref,omitempty"`
}

// SearchProofs queries the data ledger's fingerprint index. Query-layer
// failures degrade to an empty result: an unreachable index must not block
// new mint attempts, so strict callers treat this as best-effort.
func (r *Resolver) SearchProofs(ctx context.Context, fp ledger.Fingerprint) []ledger.Candidate {
	candidates, err := r.data.SearchByFingerprint(ctx, fp, ledger.SearchPageSize)
	if err != nil {
		r.logger.Warn("proof search degraded to empty result",
			zap.String("fingerprint", string(fp)),
			zap.Error(err))
		return nil
	}
	return candidates
}

// TokenState is the cross-ledger existence check for a single token id. A
// "not found" answer means "not a live duplicate", never "definitely absent":
// a just-minted token can lag the asset index.
func (r *Resolver) TokenState(ctx context.Context, tokenID string) (*ledger.OwnershipToken, error) {
	return r.ownership.GetToken(ctx, tokenID)
}

// LocateLiveProof finds the first candidate, in ledger-list order, whose
// record matches the fingerprint, passes the issuer filter, and references a
// token that exists and is not burned. An empty issuerFilter matches any
// issuer (the read path, where the viewer does not know the issuer).
//
// Record bodies are fetched concurrently for latency, but reduction is strict
// list order so "first live match" stays reproducible. Every per-candidate
// failure makes that candidate a non-blocker rather than aborting the walk.
func (r *Resolver) LocateLiveProof(ctx context.Context, fp ledger.Fingerprint, issuerFilter string) *LiveProof {
	candidates := r.SearchProofs(ctx, fp)
	if len(candidates) == 0 {
		return nil
	}

	envelopes := r.fetchAll(ctx, candidates)

	for i, candidate := range candidates {
		env := envelopes[i]
		if env == nil {
			continue
		}

		// Defense against index false positives.
		if env.Record.Fingerprint != fp {
			r.logger.Warn("candidate fingerprint mismatch, skipping",
				zap.String("address", candidate.Address),
				zap.String("indexed", string(fp)),
				zap.String("embedded", string(env.Record.Fingerprint)))
			continue
		}

		if issuerFilter != "" && !r.global && recordIssuer(env) != issuerFilter {
			r.logger.Debug("candidate from different issuer, not blocking",
				zap.String("address", candidate.Address),
				zap.String("issuer", recordIssuer(env)))
			continue
		}

		token, err := r.ownership.GetToken(ctx, env.Record.PredictedTokenID)
		if err != nil {
			r.logger.Debug("candidate token lookup failed, not blocking",
				zap.String("address", candidate.Address),
				zap.String("token_id", env.Record.PredictedTokenID),
				zap.Error(err))
			continue
		}
		if token.Burned {
			continue
		}

		return &LiveProof{Envelope: *env, Token: *token}
	}

	return nil
}

// CheckDuplicate decides whether a live proof already blocks a mint by the
// given issuer.
func (r *Resolver) CheckDuplicate(ctx context.Context, fp ledger.Fingerprint, issuer string) DuplicateCheck {
	proof := r.LocateLiveProof(ctx, fp, issuer)
	if proof == nil {
		return DuplicateCheck{}
	}

	r.logger.Info("live duplicate proof found",
		zap.String("fingerprint", string(fp)),
		zap.String("issuer", issuer),
		zap.String("token_id", proof.Token.TokenID),
		zap.String("ledger_ref", proof.Envelope.Address))

	return DuplicateCheck{
		IsDuplicate:     true,
		BlockingTokenID: proof.Token.TokenID,
		LedgerRef:       proof.Envelope.Address,
	}
}

// fetchAll retrieves record bodies for every candidate concurrently and
// returns them indexed by candidate position. A failed fetch leaves a nil
// slot.
func (r *Resolver) fetchAll(ctx context.Context, candidates []ledger.Candidate) []*ledger.RecordEnvelope {
	envelopes := make([]*ledger.RecordEnvelope, len(candidates))

	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, address string) {
			defer wg.Done()

			env, err := r.data.FetchRecord(ctx, address)
			if err != nil {
				r.logger.Debug("candidate record fetch failed, not blocking",
					zap.String("address", address),
					zap.Error(err))
				return
			}
			envelopes[i] = env
		}(i, candidate.Address)
	}
	wg.Wait()

	return envelopes
}

// recordIssuer prefers the ledger's own owner attribution over the embedded
// issuer field, which a hostile writer could fabricate.
func recordIssuer(env *ledger.RecordEnvelope) string {
	if env.Owner != "" {
		return env.Owner
	}
	return env.Record.Issuer
}
