package policy

import (
	"crypto/rsa"
	"time"

	"reach/gate/internal/codec"
	gateerrors "reach/gate/internal/errors"
)

// TrustedKeys maps an RSA keyId to its public key, used by direct
// verification (verify against a flat key set rather than a trust store).
type TrustedKeys map[string]*rsa.PublicKey

// VerifyResult reports the outcome of a bundle verification.
type VerifyResult struct {
	Valid          bool
	ValidSignatures []string // distinct keyIds that verified (Verify), or "rsa:<keyId>"/"keyless:<signerId>" (VerifyWithTrustStore)
}

// Verify implements direct verification (§4.2): recompute the policy
// digest, check the schema digest, and require at least RequiredSignatures
// distinct valid RSA signatures from trustedKeys.
func Verify(bundle PolicyBundle, trustedKeys TrustedKeys, expectedSchemaSha string) (VerifyResult, error) {
	if got := codec.HashJSON(bundle.Policy); got != bundle.PolicySha256 {
		return VerifyResult{}, gateerrors.New(gateerrors.CodeBundlePolicyHashMismatch, "policy digest does not match policySha256").
			WithContext("expected", bundle.PolicySha256).WithContext("actual", got)
	}
	if bundle.PolicySchemaSha256 != expectedSchemaSha {
		return VerifyResult{}, gateerrors.New(gateerrors.CodeBundleSchemaHashMismatch, "policy schema digest mismatch").
			WithContext("expected", expectedSchemaSha).WithContext("actual", bundle.PolicySchemaSha256)
	}

	payload := bundle.SigningPayloadBytes()
	seen := make(map[string]bool)
	var valid []string
	for _, sig := range bundle.Signatures {
		if sig.IsKeyless() {
			continue // direct verification only understands RSA trusted keys
		}
		pub, ok := trustedKeys[sig.KeyID]
		if !ok || seen[sig.KeyID] {
			continue
		}
		if VerifyRSA(payload, sig.SignatureB64, pub) {
			seen[sig.KeyID] = true
			valid = append(valid, sig.KeyID)
		}
	}

	if len(valid) < bundle.RequiredSignatures {
		return VerifyResult{ValidSignatures: valid}, gateerrors.Newf(gateerrors.CodeBundleSignaturesInvalid,
			"only %d of %d required signatures verified", len(valid), bundle.RequiredSignatures)
	}
	return VerifyResult{Valid: true, ValidSignatures: valid}, nil
}

// VerifyWithTrustStore implements trust-store-backed verification (§4.2),
// resolving each signature to a signer by natural key, honoring lifecycle
// state and validity windows, and dispatching keyless signatures to adapter.
func VerifyWithTrustStore(bundle PolicyBundle, store TrustStore, expectedSchemaSha string, adapter SigstoreAdapter) (VerifyResult, error) {
	if got := codec.HashJSON(bundle.Policy); got != bundle.PolicySha256 {
		return VerifyResult{}, gateerrors.New(gateerrors.CodeBundlePolicyHashMismatch, "policy digest does not match policySha256").
			WithContext("expected", bundle.PolicySha256).WithContext("actual", got)
	}
	if bundle.PolicySchemaSha256 != expectedSchemaSha {
		return VerifyResult{}, gateerrors.New(gateerrors.CodeBundleSchemaHashMismatch, "policy schema digest mismatch").
			WithContext("expected", expectedSchemaSha).WithContext("actual", bundle.PolicySchemaSha256)
	}
	if err := store.Validate(); err != nil {
		return VerifyResult{}, err
	}

	createdAt, err := time.Parse(time.RFC3339, bundle.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	payload := bundle.SigningPayloadBytes()
	seen := make(map[string]bool)
	var valid []string

	for _, sig := range bundle.Signatures {
		var signer Signer
		var resolved bool
		if sig.IsKeyless() {
			// Keyless signatures in our bundle shape do not carry the
			// issuer/identity directly; they are looked up by SignerID
			// against the store's keyless entries.
			for _, s := range store.Signers {
				if s.Type == SignerTypeKeyless && s.ID == sig.SignerID {
					signer, resolved = s, true
					break
				}
			}
		} else {
			signer, resolved = store.findByRSAKeyID(sig.KeyID)
		}
		if !resolved {
			// Unmatched signatures are ignored, not rejected (§4.2), and
			// per §9's open question they silently fail the quorum check
			// rather than surfacing a distinct warning.
			continue
		}

		if store.SchemaVersion >= 2 {
			if signer.EffectiveState() == SignerRevoked {
				return VerifyResult{}, gateerrors.Newf(gateerrors.CodeTrustSignerRevoked,
					"signer %q is revoked", signer.ID).WithContext("signerId", signer.ID)
			}
			if !signer.withinValidityWindow(createdAt) {
				return VerifyResult{}, gateerrors.Newf(gateerrors.CodeTrustSignerOutsideWindow,
					"signer %q validity window does not cover bundle createdAt", signer.ID).WithContext("signerId", signer.ID)
			}
		}

		var ok bool
		var key string
		if sig.IsKeyless() {
			key = "keyless:" + signer.ID
			if adapter == nil {
				continue
			}
			ok, _ = adapter.Verify(sig.Bundle, payload, SigstoreOptions{
				CertificateIssuer:      signer.CertificateIssuer,
				CertificateIdentityURI: signer.CertificateIdentityURI,
			})
		} else {
			key = "rsa:" + signer.KeyID
			pub, parseErr := ParseRSAPublicKeyPEM(signer.PublicKeyPEM)
			if parseErr == nil {
				ok = VerifyRSA(payload, sig.SignatureB64, pub)
			}
		}
		if ok && !seen[key] {
			seen[key] = true
			valid = append(valid, key)
		}
	}

	if len(valid) < bundle.RequiredSignatures {
		return VerifyResult{ValidSignatures: valid}, gateerrors.Newf(gateerrors.CodeBundleSignaturesInvalid,
			"only %d of %d required signatures verified", len(valid), bundle.RequiredSignatures)
	}
	return VerifyResult{Valid: true, ValidSignatures: valid}, nil
}
