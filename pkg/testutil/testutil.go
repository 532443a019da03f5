package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/provn-io/provn/pkg/ledger"
	"github.com/provn-io/provn/pkg/manifest"
)

// CreateTempDir creates a temporary directory and returns its path along with a cleanup function
func CreateTempDir(t *testing.T, prefix string) (string, func()) {
	tmpDir, err := os.MkdirTemp("", prefix)
	require.NoError(t, err)

	cleanup := func() {
		os.RemoveAll(tmpDir)
	}

	return tmpDir, cleanup
}

// CreateTestFile creates a temporary file with the given content and returns its path
func CreateTestFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

// Fingerprint computes a fingerprint over arbitrary test content.
func Fingerprint(content string) ledger.Fingerprint {
	return ledger.ComputeFingerprint([]byte(content))
}

// CapturedManifest builds a validated single-node manifest signed by issuer
// with a hard-binding hash assertion for fp.
func CapturedManifest(issuer string, fp ledger.Fingerprint) *manifest.Store {
	return &manifest.Store{
		Validated: true,
		Active: &manifest.Node{
			Label:          "urn:provn:capture",
			ClaimGenerator: issuer,
			SignatureInfo:  manifest.SignatureInfo{Issuer: issuer},
			Assertions: []manifest.Assertion{
				{
					Label: manifest.AssertionContentHash,
					Data:  map[string]interface{}{"hash": string(fp)},
				},
			},
		},
	}
}

// GeneratedManifest builds a manifest whose actions assertion marks the
// content as algorithmically generated.
func GeneratedManifest(issuer string, fp ledger.Fingerprint) *manifest.Store {
	store := CapturedManifest(issuer, fp)
	store.Active.Assertions = append(store.Active.Assertions, manifest.Assertion{
		Label: manifest.AssertionActions,
		Data: map[string]interface{}{
			"actions": []interface{}{
				map[string]interface{}{
					"action":            "c2pa.created",
					"digitalSourceType": "http://cv.iptc.org/newscodes/digitalsourcetype/trainedAlgorithmicMedia",
				},
			},
		},
	})
	return store
}
