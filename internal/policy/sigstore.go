package policy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SigstoreOptions parameterizes a keyless sign/verify call (§9 "No hidden
// globals": this is injected, never read from the environment inside the
// adapter itself).
type SigstoreOptions struct {
	FulcioURL      string
	RekorURL       string
	TSAServerURL   string
	TlogUpload     bool
	IdentityToken  string

	// CertificateIssuer/CertificateIdentityURI are supplied on verify to
	// bind the check to one trust-store signer (§4.2).
	CertificateIssuer      string
	CertificateIdentityURI string
}

// SigstoreAdapter is the injectable Sigstore keyless signing boundary.
// Production wiring would call out to Fulcio/Rekor; this repository ships
// two in-tree test adapters (NoOpSigstoreAdapter, FileSigstoreAdapter)
// used by the test suite and by local/offline development.
type SigstoreAdapter interface {
	Sign(payload []byte, opts SigstoreOptions) (map[string]any, error)
	Verify(bundle map[string]any, payload []byte, opts SigstoreOptions) (bool, error)
}

// NoOpSigstoreAdapter always signs successfully with a deterministic,
// obviously-fake bundle, and verifies any bundle produced by Sign for the
// same payload and the same certificate issuer/identity. It exists so tests can exercise the keyless code paths
// without a network dependency, mirroring the teacher's own NoOpSigner.
type NoOpSigstoreAdapter struct{}

func (NoOpSigstoreAdapter) Sign(payload []byte, opts SigstoreOptions) (map[string]any, error) {
	return map[string]any{
		"mediaType": "application/vnd.dev.sigstore.bundle+json;version=0.1-noop",
		"issuer":    opts.CertificateIssuer,
		"identity":  opts.CertificateIdentityURI,
		"payloadSha256": hashHex(payload),
	}, nil
}

func (NoOpSigstoreAdapter) Verify(bundle map[string]any, payload []byte, opts SigstoreOptions) (bool, error) {
	if bundle == nil {
		return false, fmt.Errorf("sigstore: empty bundle")
	}
	issuer, _ := bundle["issuer"].(string)
	identity, _ := bundle["identity"].(string)
	sum, _ := bundle["payloadSha256"].(string)
	if issuer != opts.CertificateIssuer || identity != opts.CertificateIdentityURI {
		return false, nil
	}
	return sum == hashHex(payload), nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}

// FileSigstoreAdapter persists each signed bundle under a UUID-keyed file
// in Dir, standing in for the Fulcio/Rekor round trip during local and
// offline development. Verify re-reads the file named by the bundle's
// "bundleId" entry rather than trusting the payload it was handed.
type FileSigstoreAdapter struct {
	Dir string
}

func (a FileSigstoreAdapter) Sign(payload []byte, opts SigstoreOptions) (map[string]any, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sigstore: create bundle dir: %w", err)
	}
	id := uuid.NewString()
	bundle := map[string]any{
		"mediaType":     "application/vnd.dev.sigstore.bundle+json;version=0.1-file",
		"bundleId":      id,
		"issuer":        opts.CertificateIssuer,
		"identity":      opts.CertificateIdentityURI,
		"payloadSha256": hashHex(payload),
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("sigstore: marshal bundle: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.Dir, id+".json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("sigstore: write bundle: %w", err)
	}
	return bundle, nil
}

func (a FileSigstoreAdapter) Verify(bundle map[string]any, payload []byte, opts SigstoreOptions) (bool, error) {
	id, _ := bundle["bundleId"].(string)
	if id == "" {
		return false, fmt.Errorf("sigstore: bundle missing bundleId")
	}
	data, err := os.ReadFile(filepath.Join(a.Dir, id+".json"))
	if err != nil {
		return false, fmt.Errorf("sigstore: read bundle: %w", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		return false, fmt.Errorf("sigstore: parse stored bundle: %w", err)
	}
	issuer, _ := stored["issuer"].(string)
	identity, _ := stored["identity"].(string)
	sum, _ := stored["payloadSha256"].(string)
	if issuer != opts.CertificateIssuer || identity != opts.CertificateIdentityURI {
		return false, nil
	}
	return sum == hashHex(payload), nil
}
