package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/announce"
	"github.com/provn-io/provn/pkg/api"
	"github.com/provn-io/provn/pkg/config"
	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
	"github.com/provn-io/provn/pkg/mint"
	"github.com/provn-io/provn/pkg/pipeline"
	"github.com/provn-io/provn/pkg/provenance"
	"github.com/provn-io/provn/pkg/resolve"
	"github.com/provn-io/provn/pkg/store"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	dev := flag.Bool("dev", false, "use in-memory ledgers and metadata store")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		data      ledger.ImmutableLedger
		ownership ledger.OwnershipLedger
		meta      store.MetadataStore
	)
	if *dev {
		data = ledger.NewMemoryDataLedger()
		ownership = ledger.NewMemoryOwnershipLedger("devtree")
		meta = store.NewMemoryStore()
	} else {
		data = ledger.NewArweaveLedger(cfg.DataLedgerURL, cfg.DataLedgerGateway)
		ownership = ledger.NewRegistryLedger(cfg.OwnershipLedgerURL, cfg.TreeAddress, cfg.ConfirmTimeout)

		if cfg.PostgresDSN != "" {
			pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
			if err != nil {
				log.Fatal(err)
			}
			defer pg.Close()
			meta = pg
		} else {
			meta = store.NewMemoryStore()
		}
	}

	verifier := manifest.NewVerifier(cfg.TrustedSigners)
	resolver := resolve.NewResolver(data, ownership, cfg.GlobalUniqueness, logger)
	orchestrator := mint.NewOrchestrator(data, ownership, mint.NewKeyedMutex(), cfg.Issuer, cfg.DataLedgerGateway, logger)
	pipe := pipeline.NewPipeline(resolver, meta, logger)
	service := provenance.NewService(verifier, resolver, orchestrator, pipe, meta, logger)

	network, err := announce.NewNetwork(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := network.Start(ctx); err != nil {
		log.Fatal(err)
	}
	service.SetAnnouncer(network)

	apiServer, err := api.NewAPI(service, meta, network, cfg.APIPort, logger)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Graceful shutdown
	if err := network.Stop(); err != nil {
		logger.Error("Error stopping announce network", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}
}
