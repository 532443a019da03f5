package mint_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
	"github.com/provn-io/provn/pkg/mint"
	"github.com/provn-io/provn/pkg/resolve"
	"github.com/provn-io/provn/pkg/testutil"
)

const testGateway = "https://arweave.net"

func setupOrchestrator(t *testing.T) (*mint.Orchestrator, *ledger.MemoryDataLedger, *ledger.MemoryOwnershipLedger) {
	data := ledger.NewMemoryDataLedger()
	ownership := ledger.NewMemoryOwnershipLedger("tree")
	orchestrator := mint.NewOrchestrator(data, ownership, mint.NewKeyedMutex(), "provn-dev", testGateway, zap.NewNop())
	return orchestrator, data, ownership
}

func validVerdict(content string) manifest.TrustVerdict {
	return manifest.TrustVerdict{
		IsValid:     true,
		RootSigner:  "Leica Camera AG",
		Source:      manifest.SourceCameraHardware,
		BindingHash: testutil.Fingerprint(content),
	}
}

func TestMintHappyPath(t *testing.T) {
	orchestrator, data, ownership := setupOrchestrator(t)
	ctx := context.Background()

	result, err := orchestrator.Mint(ctx, mint.Request{
		Verdict:   validVerdict("a photograph"),
		Recipient: "holder-wallet",
		Title:     "Dawn over the harbor",
	})
	require.NoError(t, err)
	assert.Equal(t, "tree/0", result.TokenID)
	assert.NotEmpty(t, result.LedgerRef)
	assert.NotEmpty(t, result.TxSignature)

	// The published record must reference the minted token.
	env, err := data.FetchRecord(ctx, result.LedgerRef)
	require.NoError(t, err)
	assert.Equal(t, result.TokenID, env.Record.PredictedTokenID)
	assert.Equal(t, "provn-dev", env.Record.Issuer)
	assert.Equal(t, testutil.Fingerprint("a photograph"), env.Record.Fingerprint)

	// And the token must reference the record back.
	token, err := ownership.GetToken(ctx, result.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "holder-wallet", token.Holder)
	assert.Equal(t, testGateway+"/"+result.LedgerRef, token.MetadataURI)

	mintReq := ownership.LastMintRequest()
	require.NotNil(t, mintReq)
	assert.Equal(t, "Dawn over the harbor", mintReq.Name)
	assert.Equal(t, "PRVN", mintReq.Symbol)
}

func TestMintRejectsInvalidVerdict(t *testing.T) {
	orchestrator, data, _ := setupOrchestrator(t)
	ctx := context.Background()

	rejected := validVerdict("rejected content")
	rejected.IsValid = false

	_, err := orchestrator.Mint(ctx, mint.Request{Verdict: rejected, Recipient: "holder"})
	require.ErrorIs(t, err, mint.ErrInvalidVerdict)

	noBinding := validVerdict("no binding")
	noBinding.BindingHash = ""

	_, err = orchestrator.Mint(ctx, mint.Request{Verdict: noBinding, Recipient: "holder"})
	require.ErrorIs(t, err, mint.ErrInvalidVerdict)

	// Nothing was published.
	candidates, err := data.SearchByFingerprint(ctx, testutil.Fingerprint("rejected content"), 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMintFailureOrphansRecordAndRetrySucceeds(t *testing.T) {
	orchestrator, data, ownership := setupOrchestrator(t)
	resolver := resolve.NewResolver(data, ownership, false, zap.NewNop())
	ctx := context.Background()

	fp := testutil.Fingerprint("eventually minted")
	ownership.SetMintError(errors.New("rpc node down"))

	_, err := orchestrator.Mint(ctx, mint.Request{Verdict: validVerdict("eventually minted"), Recipient: "holder"})
	require.ErrorIs(t, err, mint.ErrMintFailure)

	// The record stayed on the append-only ledger as an orphan but does not
	// count as a live duplicate, so a retry is not blocked.
	candidates, err := data.SearchByFingerprint(ctx, fp, 0)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.False(t, resolver.CheckDuplicate(ctx, fp, "provn-dev").IsDuplicate)

	ownership.SetMintError(nil)

	result, err := orchestrator.Mint(ctx, mint.Request{Verdict: validVerdict("eventually minted"), Recipient: "holder"})
	require.NoError(t, err)
	assert.Equal(t, "tree/0", result.TokenID)

	check := resolver.CheckDuplicate(ctx, fp, "provn-dev")
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, result.TokenID, check.BlockingTokenID)
}

// racingLedger lets an interloper take the predicted leaf just before our own
// mint lands, forcing a predicted/actual identifier mismatch.
type racingLedger struct {
	*ledger.MemoryOwnershipLedger
	raced bool
}

func (r *racingLedger) Mint(ctx context.Context, req ledger.MintRequest) (string, error) {
	if !r.raced {
		r.raced = true
		if _, err := r.MemoryOwnershipLedger.Mint(ctx, ledger.MintRequest{Recipient: "interloper"}); err != nil {
			return "", err
		}
	}
	return r.MemoryOwnershipLedger.Mint(ctx, req)
}

func TestMintReconcilesActualTokenID(t *testing.T) {
	data := ledger.NewMemoryDataLedger()
	ownership := &racingLedger{MemoryOwnershipLedger: ledger.NewMemoryOwnershipLedger("tree")}
	orchestrator := mint.NewOrchestrator(data, ownership, mint.NewKeyedMutex(), "provn-dev", testGateway, zap.NewNop())
	ctx := context.Background()

	result, err := orchestrator.Mint(ctx, mint.Request{Verdict: validVerdict("raced content"), Recipient: "holder"})
	require.NoError(t, err)

	// The interloper took tree/0; reconciliation must surface the token we
	// actually received.
	assert.Equal(t, "tree/1", result.TokenID)

	env, err := data.FetchRecord(ctx, result.LedgerRef)
	require.NoError(t, err)
	assert.Equal(t, "tree/0", env.Record.PredictedTokenID)
}

func TestMintSerializedPerIssuer(t *testing.T) {
	orchestrator, data, _ := setupOrchestrator(t)
	ctx := context.Background()

	const workers = 8
	results := make([]*mint.Result, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = orchestrator.Mint(ctx, mint.Request{
				Verdict:   validVerdict(fmt.Sprintf("content %d", i)),
				Recipient: "holder",
			})
		}(i)
	}
	wg.Wait()

	// Serialized predictions never collide: every mint got a distinct token
	// and every record references the token its mint produced.
	seen := make(map[string]bool, workers)
	for i, result := range results {
		require.NoError(t, errs[i])
		require.NotNil(t, result)
		assert.False(t, seen[result.TokenID], "token %s assigned twice", result.TokenID)
		seen[result.TokenID] = true

		env, err := data.FetchRecord(ctx, result.LedgerRef)
		require.NoError(t, err)
		assert.Equal(t, result.TokenID, env.Record.PredictedTokenID)
	}
}
