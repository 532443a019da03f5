package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provn-io/provn/pkg/ledger"
)

func TestFingerprintValid(t *testing.T) {
	fp := ledger.ComputeFingerprint([]byte("some content"))
	assert.Len(t, string(fp), 64)
	assert.True(t, fp.Valid())

	assert.False(t, ledger.Fingerprint("").Valid())
	assert.False(t, ledger.Fingerprint("abc123").Valid())
	assert.False(t, ledger.Fingerprint("zz00000000000000000000000000000000000000000000000000000000000000").Valid())
}

func TestFingerprintDeterministic(t *testing.T) {
	assert.Equal(t,
		ledger.ComputeFingerprint([]byte("same bytes")),
		ledger.ComputeFingerprint([]byte("same bytes")))
	assert.NotEqual(t,
		ledger.ComputeFingerprint([]byte("some bytes")),
		ledger.ComputeFingerprint([]byte("other bytes")))
}

func publishTestRecord(t *testing.T, data *ledger.MemoryDataLedger, fp ledger.Fingerprint, issuer string) string {
	address, err := data.PublishRecord(context.Background(), &ledger.ProofRecord{
		Fingerprint:      fp,
		Issuer:           issuer,
		PredictedTokenID: "tree/0",
		CreatedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	return address
}

func TestDataLedgerPublishAndFetch(t *testing.T) {
	data := ledger.NewMemoryDataLedger()
	fp := ledger.ComputeFingerprint([]byte("recorded content"))

	address := publishTestRecord(t, data, fp, "alice")

	env, err := data.FetchRecord(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, address, env.Address)
	assert.Equal(t, fp, env.Record.Fingerprint)
	// The ledger attributes the write to the publishing identity.
	assert.Equal(t, "alice", env.Owner)

	_, err = data.FetchRecord(context.Background(), "no-such-address")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDataLedgerSearchOrderAndLimit(t *testing.T) {
	data := ledger.NewMemoryDataLedger()
	fp := ledger.ComputeFingerprint([]byte("popular content"))
	other := ledger.ComputeFingerprint([]byte("unrelated"))

	first := publishTestRecord(t, data, fp, "alice")
	publishTestRecord(t, data, other, "alice")
	second := publishTestRecord(t, data, fp, "bob")
	third := publishTestRecord(t, data, fp, "carol")

	candidates, err := data.SearchByFingerprint(context.Background(), fp, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, first, candidates[0].Address)
	assert.Equal(t, second, candidates[1].Address)
	assert.Equal(t, third, candidates[2].Address)

	limited, err := data.SearchByFingerprint(context.Background(), fp, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, first, limited[0].Address)
}

func TestOwnershipLedgerMintSequence(t *testing.T) {
	ownership := ledger.NewMemoryOwnershipLedger("tree")
	ctx := context.Background()

	count, err := ownership.MintedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, "tree/0", ownership.DeriveTokenID(count))

	for i := 0; i < 3; i++ {
		_, err := ownership.Mint(ctx, ledger.MintRequest{Recipient: "holder"})
		require.NoError(t, err)
	}

	count, err = ownership.MintedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	token, err := ownership.GetToken(ctx, "tree/2")
	require.NoError(t, err)
	assert.Equal(t, "holder", token.Holder)
	assert.False(t, token.Burned)
}

func TestOwnershipLedgerBurnAndTransfer(t *testing.T) {
	ownership := ledger.NewMemoryOwnershipLedger("tree")
	ctx := context.Background()

	_, err := ownership.Mint(ctx, ledger.MintRequest{Recipient: "alice"})
	require.NoError(t, err)

	require.NoError(t, ownership.Transfer("tree/0", "bob"))
	token, err := ownership.GetToken(ctx, "tree/0")
	require.NoError(t, err)
	assert.Equal(t, "bob", token.Holder)

	// Burn keeps the entry so lookups report burnt, not absent.
	require.NoError(t, ownership.Burn("tree/0"))
	token, err = ownership.GetToken(ctx, "tree/0")
	require.NoError(t, err)
	assert.True(t, token.Burned)

	_, err = ownership.GetToken(ctx, "tree/99")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
