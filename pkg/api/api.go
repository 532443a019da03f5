package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/announce"
	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
	"github.com/provn-io/provn/pkg/mint"
	"github.com/provn-io/provn/pkg/provenance"
	"github.com/provn-io/provn/pkg/store"
)

// API exposes the consumer calls over HTTP for the UI layer.
type API struct {
	service *provenance.Service
	meta    store.MetadataStore
	network *announce.Network
	logger  *zap.Logger
	server  *http.Server
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewAPI(service *provenance.Service, meta store.MetadataStore, network *announce.Network, port int, logger *zap.Logger) (*API, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	api := &API{
		service: service,
		meta:    meta,
		network: network,
		logger:  logger,
	}

	router := mux.NewRouter()
	api.setupRoutes(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	api.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return api, nil
}

func (api *API) setupRoutes(router *mux.Router) {
	// Health check
	router.HandleFunc("/health", api.HealthCheck).Methods("GET")

	// Verification and minting
	router.HandleFunc("/verify", api.VerifyManifest).Methods("POST")
	router.HandleFunc("/mint", api.MintProof).Methods("POST")

	// Proof lookups
	router.HandleFunc("/proofs/{fingerprint}/duplicate", api.CheckDuplicate).Methods("GET")
	router.HandleFunc("/proofs/{fingerprint}/verification", api.RunPipeline).Methods("GET")

	// Marketplace metadata
	router.HandleFunc("/artifacts/{id}", api.GetArtifact).Methods("GET")

	// Announce network status
	router.HandleFunc("/network/peers", api.GetPeers).Methods("GET")
}

func (api *API) Start() error {
	api.logger.Info("Starting API server", zap.String("addr", api.server.Addr))
	return api.server.ListenAndServe()
}

func (api *API) Stop(ctx context.Context) error {
	return api.server.Shutdown(ctx)
}

// Health check handler
func (api *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	api.sendResponse(w, APIResponse{
		Success: true,
		Data: map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Manifest verification handler
func (api *API) VerifyManifest(w http.ResponseWriter, r *http.Request) {
	var manifestStore manifest.Store
	if err := json.NewDecoder(r.Body).Decode(&manifestStore); err != nil {
		api.sendError(w, "Malformed manifest payload", http.StatusBadRequest)
		return
	}

	verdict := api.service.VerifyManifest(&manifestStore)

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    verdict,
	})
}

type mintRequest struct {
	Manifest  manifest.Store `json:"manifest"`
	Recipient string         `json:"recipient"`
	Title     string         `json:"title"`
	ImageRef  string         `json:"image_ref"`
}

// Mint handler: verifies the manifest and runs the full write path.
func (api *API) MintProof(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.sendError(w, "Malformed mint payload", http.StatusBadRequest)
		return
	}
	if req.Recipient == "" {
		api.sendError(w, "Recipient is required", http.StatusBadRequest)
		return
	}

	verdict := api.service.VerifyManifest(&req.Manifest)
	if !verdict.IsValid {
		api.sendResponse(w, APIResponse{
			Success: false,
			Error:   "manifest rejected",
			Data:    verdict,
		})
		return
	}

	result, err := api.service.MintProof(r.Context(), mint.Request{
		Verdict:   verdict,
		Recipient: req.Recipient,
		Title:     req.Title,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		switch {
		case errors.Is(err, mint.ErrDuplicateProof):
			api.sendError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, mint.ErrInvalidVerdict):
			api.sendError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			api.logger.Error("mint failed", zap.Error(err))
			api.sendError(w, "Mint failed", http.StatusBadGateway)
		}
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    result,
	})
}

// Duplicate check handler
func (api *API) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fp := ledger.Fingerprint(vars["fingerprint"])
	if !fp.Valid() {
		api.sendError(w, "Invalid fingerprint", http.StatusBadRequest)
		return
	}

	issuer := r.URL.Query().Get("issuer")
	check := api.service.CheckDuplicate(r.Context(), fp, issuer)

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    check,
	})
}

// Verification pipeline handler
func (api *API) RunPipeline(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	fp := ledger.Fingerprint(vars["fingerprint"])
	if !fp.Valid() {
		api.sendError(w, "Invalid fingerprint", http.StatusBadRequest)
		return
	}

	report := api.service.RunVerificationPipeline(r.Context(), fp)

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    report,
	})
}

// Artifact metadata handler
func (api *API) GetArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	meta, err := api.meta.GetArtifact(r.Context(), vars["id"])
	if err != nil {
		api.sendError(w, "Artifact not found", http.StatusNotFound)
		return
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    meta,
	})
}

// Announce network peers handler
func (api *API) GetPeers(w http.ResponseWriter, r *http.Request) {
	if api.network == nil {
		api.sendResponse(w, APIResponse{
			Success: true,
			Data:    []interface{}{},
		})
		return
	}

	peers := api.network.GetPeers()
	peerInfo := make([]string, 0, len(peers))
	for _, peer := range peers {
		peerInfo = append(peerInfo, peer.String())
	}

	api.sendResponse(w, APIResponse{
		Success: true,
		Data:    peerInfo,
	})
}

// Helper functions
func (api *API) sendResponse(w http.ResponseWriter, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (api *API) sendError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
