package policy

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	gateerrors "reach/gate/internal/errors"
)

func mustKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pemBlock := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return priv, string(pemBlock)
}

func basicPolicy() Policy {
	return Policy{
		Version:     1,
		Enforcement: EnforcementBlock,
		Rules: []Rule{
			{Name: "no-secrets", Pattern: "secret", Action: RuleActionBlock},
		},
	}
}

func TestBuildTemplateHashMatchesPolicy(t *testing.T) {
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 1, nil)
	if b.PolicySha256 == "" {
		t.Fatalf("expected non-empty policySha256")
	}
	if len(b.Signatures) != 0 {
		t.Fatalf("expected unsigned bundle")
	}
}

func TestSignAndVerifyRSA(t *testing.T) {
	priv, pubPEM := mustKeyPair(t)
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 1, nil)

	signed, err := Sign(b, "key-1", priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(signed.Signatures) != 1 {
		t.Fatalf("expected one signature, got %d", len(signed.Signatures))
	}

	pub, err := ParseRSAPublicKeyPEM(pubPEM)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	result, err := Verify(signed, TrustedKeys{"key-1": pub}, "deadbeef")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid || len(result.ValidSignatures) != 1 || result.ValidSignatures[0] != "key-1" {
		t.Fatalf("unexpected verify result: %+v", result)
	}
}

func TestSignReplacesExistingSlot(t *testing.T) {
	priv, _ := mustKeyPair(t)
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 1, nil)
	once, _ := Sign(b, "key-1", priv)
	twice, _ := Sign(once, "key-1", priv)
	if len(twice.Signatures) != 1 {
		t.Fatalf("expected signer to occupy a single slot, got %d signatures", len(twice.Signatures))
	}
}

func TestVerifyPolicyHashMismatch(t *testing.T) {
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 1, nil)
	b.Policy.MaxAiScore = 0.9 // mutate after hashing
	_, err := Verify(b, TrustedKeys{}, "deadbeef")
	if gateerrors.GetCode(err) != gateerrors.CodeBundlePolicyHashMismatch {
		t.Fatalf("expected hash mismatch error, got %v", err)
	}
}

func TestVerifyRequiresQuorum(t *testing.T) {
	priv, pubPEM := mustKeyPair(t)
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 2, nil)
	signed, _ := Sign(b, "key-1", priv)
	pub, _ := ParseRSAPublicKeyPEM(pubPEM)
	_, err := Verify(signed, TrustedKeys{"key-1": pub}, "deadbeef")
	if gateerrors.GetCode(err) != gateerrors.CodeBundleSignaturesInvalid {
		t.Fatalf("expected signatures-invalid error, got %v", err)
	}
}

func TestVerifyWithTrustStoreRevokedSignerFatal(t *testing.T) {
	priv, pubPEM := mustKeyPair(t)
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 1, nil)
	signed, _ := Sign(b, "key-1", priv)

	store := TrustStore{
		SchemaVersion: 2,
		Signers: []Signer{
			{ID: "s1", Type: SignerTypeRSAKey, KeyID: "key-1", PublicKeyPEM: pubPEM, State: SignerRevoked},
		},
	}
	_, err := VerifyWithTrustStore(signed, store, "deadbeef", NoOpSigstoreAdapter{})
	if gateerrors.GetCode(err) != gateerrors.CodeTrustSignerRevoked {
		t.Fatalf("expected revoked-signer error, got %v", err)
	}
}

func TestVerifyWithTrustStoreKeylessIdentityMismatch(t *testing.T) {
	adapter := NoOpSigstoreAdapter{}
	b := BuildTemplate(basicPolicy(), "schema.json", "deadbeef", 1, nil)
	signed, err := SignKeyless(b, "release-keyless", adapter, SigstoreOptions{
		CertificateIssuer:      "https://issuer.example",
		CertificateIdentityURI: "https://identity.example/X",
	})
	if err != nil {
		t.Fatalf("sign keyless: %v", err)
	}

	store := TrustStore{
		SchemaVersion: 2,
		Signers: []Signer{
			{
				ID: "release-keyless", Type: SignerTypeKeyless,
				CertificateIssuer: "https://issuer.example", CertificateIdentityURI: "https://identity.example/Y",
			},
		},
	}
	result, err := VerifyWithTrustStore(signed, store, "deadbeef", adapter)
	if gateerrors.GetCode(err) != gateerrors.CodeBundleSignaturesInvalid {
		t.Fatalf("expected signatures-invalid error for identity mismatch, got result=%+v err=%v", result, err)
	}
}

func TestTrustStoreValidateDuplicateID(t *testing.T) {
	store := TrustStore{Signers: []Signer{
		{ID: "dup", Type: SignerTypeRSAKey, KeyID: "a"},
		{ID: "dup", Type: SignerTypeRSAKey, KeyID: "b"},
	}}
	if err := store.Validate(); gateerrors.GetCode(err) != gateerrors.CodeTrustStoreInvalid {
		t.Fatalf("expected trust store invalid, got %v", err)
	}
}
