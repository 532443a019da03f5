package manifest

import (
	"errors"

	"github.com/provn-io/provn/pkg/ledger"
)

// MaxChainDepth bounds the ingredient walk. Chains deeper than this are
// treated as malformed rather than trusted to terminate.
const MaxChainDepth = 32

// SourceClass classifies how the content was produced.
type SourceClass string

const (
	SourceCameraHardware SourceClass = "camera-hardware"
	SourceSoftwareTool   SourceClass = "software-tool"
	SourceAIGenerated    SourceClass = "ai-generated"
	SourceUnknown        SourceClass = "unknown"
)

// Policy rejection reasons, preserved verbatim for callers to display.
var (
	ErrParseFailure     = errors.New("parse/validation failure")
	ErrGeneratedContent = errors.New("generated content is not a provenance subject")
	ErrUntrustedSigner  = errors.New("untrusted signer")
	ErrMissingBinding   = errors.New("no verifiable binding")
)

// TrustVerdict is the single pass/fail outcome of manifest verification.
// Produced exactly once per manifest and never mutated.
type TrustVerdict struct {
	IsValid        bool               `json:"is_valid"`
	RootSigner     string             `json:"root_signer"`
	ClaimGenerator string             `json:"claim_generator"`
	Source         SourceClass        `json:"source"`
	BindingHash    ledger.Fingerprint `json:"binding_hash,omitempty"`
	Reasons        []string           `json:"reasons,omitempty"`
}

// Verifier decides whether to trust an authenticity manifest. Verification is
// pure: no I/O, no retained state beyond the configured trust list.
type Verifier struct {
	trusted map[string]bool
}

func NewVerifier(trustedSigners []string) *Verifier {
	trusted := make(map[string]bool, len(trustedSigners))
	for _, s := range trustedSigners {
		trusted[s] = true
	}
	return &Verifier{trusted: trusted}
}

// Trusted reports whether a signer identity is on the allow-list.
func (v *Verifier) Trusted(signer string) bool {
	return v.trusted[signer]
}

// Verify walks the manifest to its root and assembles a TrustVerdict.
//
// Order of checks: parse/validation gate, chain well-formedness, generative
// rejection, signer trust, hard-binding hash. The binding hash must come from
// a content-hash assertion; falling back to a whole-file digest would break
// tamper evidence across container re-encoding, so its absence is a hard
// failure.
func (v *Verifier) Verify(store *Store) TrustVerdict {
	if store == nil || store.Active == nil || !store.Validated {
		return invalid(TrustVerdict{Source: SourceUnknown}, ErrParseFailure)
	}

	active := store.Active
	verdict := TrustVerdict{
		RootSigner:     active.SignatureInfo.Issuer,
		ClaimGenerator: active.ClaimGenerator,
	}

	root, chain, err := walkToRoot(active)
	if err != nil {
		verdict.Source = SourceUnknown
		return invalid(verdict, ErrParseFailure)
	}

	for _, node := range chain {
		if node.generative() {
			verdict.Source = SourceAIGenerated
			return invalid(verdict, ErrGeneratedContent)
		}
	}
	verdict.Source = classify(root, active, v.trusted)

	if !v.trusted[verdict.RootSigner] {
		return invalid(verdict, ErrUntrustedSigner)
	}

	hash, ok := active.contentHash()
	if !ok || !ledger.Fingerprint(hash).Valid() {
		return invalid(verdict, ErrMissingBinding)
	}
	verdict.BindingHash = ledger.Fingerprint(hash)

	verdict.IsValid = true
	return verdict
}

// walkToRoot follows the ingredient chain from the active node to the root,
// guarding against cycles and unbounded depth. It returns the root node and
// every node visited.
func walkToRoot(active *Node) (*Node, []*Node, error) {
	visited := make(map[*Node]bool)
	chain := make([]*Node, 0, 4)

	node := active
	for depth := 0; ; depth++ {
		if depth > MaxChainDepth {
			return nil, nil, errors.New("ingredient chain exceeds maximum depth")
		}
		if visited[node] {
			return nil, nil, errors.New("ingredient chain contains a cycle")
		}
		visited[node] = true
		chain = append(chain, node)

		if len(node.Ingredients) == 0 {
			return node, chain, nil
		}
		parent := node.Ingredients[0]
		if parent == nil {
			return nil, nil, errors.New("ingredient chain contains a nil parent")
		}
		node = parent
	}
}

func classify(root, active *Node, trusted map[string]bool) SourceClass {
	if root.ClaimGenerator == "" {
		return SourceUnknown
	}
	// A single-node chain signed by a trusted identity is an original
	// capture; anything layered on top is tool output.
	if root == active && trusted[root.SignatureInfo.Issuer] {
		return SourceCameraHardware
	}
	return SourceSoftwareTool
}

func invalid(verdict TrustVerdict, reason error) TrustVerdict {
	verdict.IsValid = false
	verdict.Reasons = append(verdict.Reasons, reason.Error())
	return verdict
}
