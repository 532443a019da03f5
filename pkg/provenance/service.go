// Package provenance is the consumer-facing surface of the core: manifest
// verification, duplicate detection, proof minting, and the read-path
// verification pipeline.
package provenance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/announce"
	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
	"github.com/provn-io/provn/pkg/mint"
	"github.com/provn-io/provn/pkg/pipeline"
	"github.com/provn-io/provn/pkg/resolve"
	"github.com/provn-io/provn/pkg/store"
)

// Announcer publishes freshly minted proofs to peer deployments. Advisory
// only: failures never affect the mint outcome.
type Announcer interface {
	AnnounceMint(ctx context.Context, a announce.MintAnnouncement) error
}

// Service wires the verification and minting primitives together.
type Service struct {
	verifier     *manifest.Verifier
	resolver     *resolve.Resolver
	orchestrator *mint.Orchestrator
	pipeline     *pipeline.Pipeline
	meta         store.MetadataStore
	announcer    Announcer
	logger       *zap.Logger
}

func NewService(verifier *manifest.Verifier, resolver *resolve.Resolver, orchestrator *mint.Orchestrator, pipe *pipeline.Pipeline, meta store.MetadataStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		verifier:     verifier,
		resolver:     resolver,
		orchestrator: orchestrator,
		pipeline:     pipe,
		meta:         meta,
		logger:       logger,
	}
}

// SetAnnouncer attaches an optional announce network.
func (s *Service) SetAnnouncer(a Announcer) {
	s.announcer = a
}

// VerifyManifest produces the trust verdict for a decoded manifest.
func (s *Service) VerifyManifest(store *manifest.Store) manifest.TrustVerdict {
	verdict := s.verifier.Verify(store)
	if !verdict.IsValid {
		s.logger.Info("manifest rejected",
			zap.String("root_signer", verdict.RootSigner),
			zap.String("source", string(verdict.Source)),
			zap.Strings("reasons", verdict.Reasons))
	}
	return verdict
}

// CheckDuplicate reports whether a live proof already exists for this
// fingerprint as minted by the given issuer.
func (s *Service) CheckDuplicate(ctx context.Context, fp ledger.Fingerprint, issuer string) resolve.DuplicateCheck {
	return s.resolver.CheckDuplicate(ctx, fp, issuer)
}

// MintProof runs the full write path: duplicate gate, predict-then-mint, and
// metadata persistence for the marketplace layer.
func (s *Service) MintProof(ctx context.Context, req mint.Request) (*mint.Result, error) {
	if !req.Verdict.IsValid {
		return nil, fmt.Errorf("%w: %v", mint.ErrInvalidVerdict, req.Verdict.Reasons)
	}

	dup := s.resolver.CheckDuplicate(ctx, req.Verdict.BindingHash, s.orchestrator.Issuer())
	if dup.IsDuplicate {
		return nil, fmt.Errorf("%w: blocking token %s", mint.ErrDuplicateProof, dup.BlockingTokenID)
	}

	result, err := s.orchestrator.Mint(ctx, req)
	if err != nil {
		return nil, err
	}

	meta := &store.ArtifactMeta{
		Fingerprint: req.Verdict.BindingHash,
		LedgerRef:   result.LedgerRef,
		TokenID:     result.TokenID,
		Title:       req.Title,
	}
	if err := s.meta.SaveArtifact(ctx, meta); err != nil {
		// The proof is already on both ledgers; metadata is repairable.
		s.logger.Error("metadata persistence failed after mint",
			zap.String("ledger_ref", result.LedgerRef),
			zap.Error(err))
	}

	if s.announcer != nil {
		a := announce.MintAnnouncement{
			Fingerprint: string(req.Verdict.BindingHash),
			TokenID:     result.TokenID,
			LedgerRef:   result.LedgerRef,
			Issuer:      s.orchestrator.Issuer(),
		}
		if err := s.announcer.AnnounceMint(ctx, a); err != nil {
			s.logger.Warn("mint announcement failed", zap.Error(err))
		}
	}

	return result, nil
}

// RunVerificationPipeline executes the five-stage read path for a viewer.
func (s *Service) RunVerificationPipeline(ctx context.Context, fp ledger.Fingerprint) *pipeline.Report {
	return s.pipeline.Run(ctx, fp)
}
