package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/api"
	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
	"github.com/provn-io/provn/pkg/mint"
	"github.com/provn-io/provn/pkg/pipeline"
	"github.com/provn-io/provn/pkg/provenance"
	"github.com/provn-io/provn/pkg/resolve"
	"github.com/provn-io/provn/pkg/store"
	"github.com/provn-io/provn/pkg/testutil"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func setupTestAPI(t *testing.T) (*api.API, *store.MemoryStore) {
	data := ledger.NewMemoryDataLedger()
	ownership := ledger.NewMemoryOwnershipLedger("tree")
	meta := store.NewMemoryStore()
	logger := zap.NewNop()

	verifier := manifest.NewVerifier([]string{"Leica Camera AG"})
	resolver := resolve.NewResolver(data, ownership, false, logger)
	orchestrator := mint.NewOrchestrator(data, ownership, mint.NewKeyedMutex(), "provn-dev", "https://arweave.net", logger)
	pipe := pipeline.NewPipeline(resolver, meta, logger)
	service := provenance.NewService(verifier, resolver, orchestrator, pipe, meta, logger)

	apiInstance, err := api.NewAPI(service, meta, nil, 0, logger)
	require.NoError(t, err)

	return apiInstance, meta
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, out interface{}) apiResponse {
	var envelope apiResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return envelope
}

func postMint(t *testing.T, apiInstance *api.API, manifestStore *manifest.Store, recipient string) *httptest.ResponseRecorder {
	payload, err := json.Marshal(map[string]interface{}{
		"manifest":  manifestStore,
		"recipient": recipient,
		"title":     "Test artifact",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/mint", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	apiInstance.MintProof(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	apiInstance.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeResponse(t, w, nil)
	assert.True(t, envelope.Success)
}

func TestVerifyManifestEndpoint(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)
	fp := testutil.Fingerprint("verified content")

	payload, err := json.Marshal(testutil.CapturedManifest("Leica Camera AG", fp))
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/verify", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	apiInstance.VerifyManifest(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var verdict manifest.TrustVerdict
	envelope := decodeResponse(t, w, &verdict)
	assert.True(t, envelope.Success)
	assert.True(t, verdict.IsValid)
	assert.Equal(t, fp, verdict.BindingHash)
}

func TestVerifyManifestMalformedPayload(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)

	req := httptest.NewRequest("POST", "/verify", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	apiInstance.VerifyManifest(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMintEndpoint(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)
	fp := testutil.Fingerprint("mintable content")

	w := postMint(t, apiInstance, testutil.CapturedManifest("Leica Camera AG", fp), "holder-wallet")

	assert.Equal(t, http.StatusOK, w.Code)
	var result mint.Result
	envelope := decodeResponse(t, w, &result)
	assert.True(t, envelope.Success)
	assert.Equal(t, "tree/0", result.TokenID)
	assert.NotEmpty(t, result.LedgerRef)
}

func TestMintEndpointDuplicate(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)
	manifestStore := testutil.CapturedManifest("Leica Camera AG", testutil.Fingerprint("minted twice"))

	first := postMint(t, apiInstance, manifestStore, "holder-wallet")
	require.Equal(t, http.StatusOK, first.Code)

	second := postMint(t, apiInstance, manifestStore, "holder-wallet")
	assert.Equal(t, http.StatusConflict, second.Code)
	envelope := decodeResponse(t, second, nil)
	assert.False(t, envelope.Success)
}

func TestMintEndpointRejectedManifest(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)

	// Untrusted signer: the verdict comes back with the rejection reasons
	// instead of a mint result.
	w := postMint(t, apiInstance, testutil.CapturedManifest("Acme Imaging LLC", testutil.Fingerprint("x")), "holder-wallet")

	assert.Equal(t, http.StatusOK, w.Code)
	var verdict manifest.TrustVerdict
	envelope := decodeResponse(t, w, &verdict)
	assert.False(t, envelope.Success)
	assert.False(t, verdict.IsValid)
	assert.NotEmpty(t, verdict.Reasons)
}

func TestMintEndpointRequiresRecipient(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)

	w := postMint(t, apiInstance, testutil.CapturedManifest("Leica Camera AG", testutil.Fingerprint("x")), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckDuplicateEndpoint(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)
	fp := testutil.Fingerprint("checked content")

	require.Equal(t, http.StatusOK,
		postMint(t, apiInstance, testutil.CapturedManifest("Leica Camera AG", fp), "holder-wallet").Code)

	req := httptest.NewRequest("GET", "/proofs/"+string(fp)+"/duplicate?issuer=provn-dev", nil)
	req = mux.SetURLVars(req, map[string]string{"fingerprint": string(fp)})
	w := httptest.NewRecorder()
	apiInstance.CheckDuplicate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var check resolve.DuplicateCheck
	decodeResponse(t, w, &check)
	assert.True(t, check.IsDuplicate)
	assert.Equal(t, "tree/0", check.BlockingTokenID)
}

func TestCheckDuplicateInvalidFingerprint(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/proofs/xyz/duplicate", nil)
	req = mux.SetURLVars(req, map[string]string{"fingerprint": "xyz"})
	w := httptest.NewRecorder()
	apiInstance.CheckDuplicate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunPipelineEndpoint(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)
	fp := testutil.Fingerprint("pipeline content")

	require.Equal(t, http.StatusOK,
		postMint(t, apiInstance, testutil.CapturedManifest("Leica Camera AG", fp), "holder-wallet").Code)

	req := httptest.NewRequest("GET", "/proofs/"+string(fp)+"/verification", nil)
	req = mux.SetURLVars(req, map[string]string{"fingerprint": string(fp)})
	w := httptest.NewRecorder()
	apiInstance.RunPipeline(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var report pipeline.Report
	decodeResponse(t, w, &report)
	assert.True(t, report.Valid)
	assert.Len(t, report.Stages, 5)
	assert.Equal(t, "tree/0", report.TokenID)
}

func TestGetArtifactEndpoint(t *testing.T) {
	apiInstance, meta := setupTestAPI(t)

	artifact := &store.ArtifactMeta{
		Fingerprint: testutil.Fingerprint("listed artifact"),
		TokenID:     "tree/0",
		Title:       "Listed artifact",
	}
	require.NoError(t, meta.SaveArtifact(context.Background(), artifact))

	req := httptest.NewRequest("GET", "/artifacts/"+artifact.ID, nil)
	req = mux.SetURLVars(req, map[string]string{"id": artifact.ID})
	w := httptest.NewRecorder()
	apiInstance.GetArtifact(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var fetched store.ArtifactMeta
	decodeResponse(t, w, &fetched)
	assert.Equal(t, artifact.Title, fetched.Title)

	missing := httptest.NewRequest("GET", "/artifacts/missing", nil)
	missing = mux.SetURLVars(missing, map[string]string{"id": "missing"})
	w = httptest.NewRecorder()
	apiInstance.GetArtifact(w, missing)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPeersWithoutNetwork(t *testing.T) {
	apiInstance, _ := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/network/peers", nil)
	w := httptest.NewRecorder()
	apiInstance.GetPeers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeResponse(t, w, nil)
	assert.True(t, envelope.Success)
}
