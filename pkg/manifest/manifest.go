package manifest

import (
	"strings"
	"time"
)

// Assertion labels recognized by the verifier. The container format is
// decoded by an external library; these are the labels it surfaces.
const (
	AssertionContentHash = "c2pa.hash.data"
	AssertionActions     = "c2pa.actions"

	// generatedSourceType marks algorithmic authorship in an actions
	// assertion.
	generatedSourceType = "trainedAlgorithmicMedia"
)

// Store is an authenticity manifest as handed over by the parsing layer: the
// active (leaf) node plus the parser's own validation outcome. It is
// constructed once and read-only thereafter.
type Store struct {
	Active    *Node `json:"active_manifest"`
	Validated bool  `json:"validated"`
}

// Node is one manifest in the ingredient chain. Ingredients point at parent
// manifests; a well-formed chain terminates at the original capture.
type Node struct {
	Label          string        `json:"label"`
	ClaimGenerator string        `json:"claim_generator"`
	SignatureInfo  SignatureInfo `json:"signature_info"`
	Ingredients    []*Node       `json:"ingredients,omitempty"`
	Assertions     []Assertion   `json:"assertions,omitempty"`
}

// SignatureInfo identifies the signer of a manifest node.
type SignatureInfo struct {
	Issuer string    `json:"issuer"`
	Time   time.Time `json:"time"`
}

// Assertion is a single claim carried by a manifest node.
type Assertion struct {
	Label string                 `json:"label"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// contentHash returns the hard-binding hash assertion value, if present.
func (n *Node) contentHash() (string, bool) {
	for _, a := range n.Assertions {
		if a.Label != AssertionContentHash {
			continue
		}
		if hash, ok := a.Data["hash"].(string); ok && hash != "" {
			return hash, true
		}
	}
	return "", false
}

// generative reports whether any assertion on the node marks the content as
// algorithmically generated.
func (n *Node) generative() bool {
	for _, a := range n.Assertions {
		if sourceType, ok := a.Data["digitalSourceType"].(string); ok {
			if strings.Contains(sourceType, generatedSourceType) {
				return true
			}
		}
		if a.Label != AssertionActions {
			continue
		}
		actions, ok := a.Data["actions"].([]interface{})
		if !ok {
			continue
		}
		for _, raw := range actions {
			action, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if sourceType, ok := action["digitalSourceType"].(string); ok {
				if strings.Contains(sourceType, generatedSourceType) {
					return true
				}
			}
		}
	}
	return false
}
