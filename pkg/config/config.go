package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Issuer is the ledger identity this deployment mints proofs as.
	Issuer string `yaml:"issuer"`

	// Trust policy
	TrustedSigners   []string `yaml:"trusted_signers"`
	GlobalUniqueness bool     `yaml:"global_uniqueness"`

	// Ledger endpoints
	DataLedgerURL      string        `yaml:"data_ledger_url"`
	DataLedgerGateway  string        `yaml:"data_ledger_gateway"`
	OwnershipLedgerURL string        `yaml:"ownership_ledger_url"`
	TreeAddress        string        `yaml:"tree_address"`
	ConfirmTimeout     time.Duration `yaml:"confirm_timeout"`

	// Metadata store (empty DSN selects the in-memory store)
	PostgresDSN string `yaml:"postgres_dsn"`

	// Announce network configuration
	ListenAddress  string   `yaml:"listen_address"`
	Port           int      `yaml:"port"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`

	// API configuration
	APIPort int `yaml:"api_port"`
}

func DefaultConfig() *Config {
	return &Config{
		Issuer: "provn-dev",
		TrustedSigners: []string{
			"Leica Camera AG",
			"Nikon Corporation",
			"Sony Corporation",
			"Canon Inc.",
			"Truepic",
		},
		GlobalUniqueness:   false,
		DataLedgerURL:      "https://arweave.net/graphql",
		DataLedgerGateway:  "https://arweave.net",
		OwnershipLedgerURL: "https://api.mainnet-beta.solana.com",
		ConfirmTimeout:     60 * time.Second,
		ListenAddress:      "0.0.0.0",
		Port:               4001,
		APIPort:            8080,
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
