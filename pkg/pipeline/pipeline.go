// Package pipeline re-derives trust for a fingerprint on the read path: the
// same ledger walk the write path uses, broken into five viewer-visible
// stages. It never throws; every failure is captured as a stage error and the
// run always completes with a best-effort verdict.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/resolve"
	"github.com/provn-io/provn/pkg/store"
)

// Status is the lifecycle of one stage. Stages never transition backwards
// once a later stage has started.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Stage names, in execution order.
const (
	StageLocate      = "locate"
	StageOwnership   = "ownership"
	StageData        = "data"
	StageCrossLink   = "crosslink"
	StageSingularity = "singularity"
)

// Stage is one checkpoint of the verification run.
type Stage struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report is the outcome of a full pipeline run. Valid requires both the
// cross-link and the singularity stage to succeed.
type Report struct {
	Stages    []Stage `json:"stages"`
	Valid     bool    `json:"valid"`
	TokenID   string  `json:"token_id,omitempty"`
	Holder    string  `json:"holder,omitempty"`
	Burned    bool    `json:"burned,omitempty"`
	LedgerRef string  `json:"ledger_ref,omitempty"`
}

// Pipeline runs the read-path verification. It is pure read/compute plus
// network calls, safe to re-run on every page view.
type Pipeline struct {
	resolver *resolve.Resolver
	meta     store.MetadataStore
	logger   *zap.Logger
}

func NewPipeline(resolver *resolve.Resolver, meta store.MetadataStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		resolver: resolver,
		meta:     meta,
		logger:   logger,
	}
}

// Run executes the five stages for a fingerprint. Stage 1 failing is
// terminal; a cross-link or singularity failure still lets the run complete
// with an invalid verdict.
func (p *Pipeline) Run(ctx context.Context, fp ledger.Fingerprint) *Report {
	report := &Report{
		Stages: []Stage{
			{Name: StageLocate, Status: StatusPending},
			{Name: StageOwnership, Status: StatusPending},
			{Name: StageData, Status: StatusPending},
			{Name: StageCrossLink, Status: StatusPending},
			{Name: StageSingularity, Status: StatusPending},
		},
	}

	// Stage 1: locate a live proof. The viewer does not know the issuer,
	// so no issuer filter applies.
	report.Stages[0].Status = StatusRunning
	proof := p.resolver.LocateLiveProof(ctx, fp, "")
	if proof == nil {
		report.Stages[0].Status = StatusError
		report.Stages[0].Message = "no live proof found for this fingerprint"
		return report
	}
	report.Stages[0].Status = StatusSuccess
	report.Stages[0].Message = fmt.Sprintf("proof located at %s", proof.Envelope.Address)
	report.TokenID = proof.Token.TokenID
	report.LedgerRef = proof.Envelope.Address

	// Stage 2: ownership state comes from the token already fetched.
	report.Stages[1].Status = StatusRunning
	report.Holder = proof.Token.Holder
	report.Burned = proof.Token.Burned
	report.Stages[1].Status = StatusSuccess
	report.Stages[1].Message = fmt.Sprintf("held by %s", proof.Token.Holder)

	// Stage 3: the record body was retrievable by construction of stage 1;
	// surfaced as its own checkpoint so the viewer gets a discrete answer.
	report.Stages[2].Status = StatusRunning
	report.Stages[2].Status = StatusSuccess
	report.Stages[2].Message = "immutable record retrieved"

	crossLinkOK := p.runCrossLink(&report.Stages[3], proof)
	singularityOK := p.runSingularity(ctx, &report.Stages[4], fp, proof)

	report.Valid = crossLinkOK && singularityOK
	return report
}

// runCrossLink verifies both directions of the cross-link invariant: the
// token's metadata reference must resolve back to the located record, and the
// record's token id must match the token examined. One-directional linkage is
// the hijack attack this defends against.
func (p *Pipeline) runCrossLink(stage *Stage, proof *resolve.LiveProof) bool {
	stage.Status = StatusRunning

	if !metadataPointsAt(proof.Token.MetadataURI, proof.Envelope.Address) {
		stage.Status = StatusError
		stage.Message = fmt.Sprintf("token metadata points at %s, not this record", proof.Token.MetadataURI)
		return false
	}
	if proof.Envelope.Record.PredictedTokenID != proof.Token.TokenID {
		stage.Status = StatusError
		stage.Message = fmt.Sprintf("record references token %s, examined token is %s",
			proof.Envelope.Record.PredictedTokenID, proof.Token.TokenID)
		return false
	}

	stage.Status = StatusSuccess
	stage.Message = "record and token reference each other"
	return true
}

// runSingularity checks the mutable store: the located proof must be the only
// record for this fingerprint, or the chronologically earliest of several.
func (p *Pipeline) runSingularity(ctx context.Context, stage *Stage, fp ledger.Fingerprint, proof *resolve.LiveProof) bool {
	stage.Status = StatusRunning

	rows, err := p.meta.ListByFingerprint(ctx, fp)
	if err != nil {
		stage.Status = StatusError
		stage.Message = fmt.Sprintf("metadata store unavailable: %v", err)
		return false
	}

	switch {
	case len(rows) == 0:
		stage.Status = StatusError
		stage.Message = "no metadata record for this fingerprint"
		return false
	case len(rows) == 1:
		stage.Status = StatusSuccess
		stage.Message = "single record for this fingerprint"
		return true
	}

	// Rows come back oldest first; the located proof must be that one.
	if rows[0].LedgerRef == proof.Envelope.Address {
		stage.Status = StatusSuccess
		stage.Message = fmt.Sprintf("earliest of %d records for this fingerprint", len(rows))
		return true
	}

	stage.Status = StatusError
	stage.Message = fmt.Sprintf("%d records share this fingerprint and the located proof is not the earliest", len(rows))
	return false
}

// metadataPointsAt tolerates gateway prefix differences: the URI counts as a
// back-reference if its final path element is the record address.
func metadataPointsAt(uri, address string) bool {
	if uri == "" || address == "" {
		return false
	}
	return uri == address || strings.HasSuffix(uri, "/"+address)
}
