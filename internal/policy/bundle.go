package policy

import (
	"time"

	"reach/gate/internal/codec"
)

// SignatureType discriminates the two signature shapes a bundle can carry.
// Kept as a tagged union (type string + optional fields) rather than an
// interface, matching how the rest of the corpus models signer variants.
type SignatureType string

const (
	SignatureTypeRSA     SignatureType = "rsa-sha256"
	SignatureTypeKeyless SignatureType = "sigstore-keyless"
)

// Signature is one entry in PolicyBundle.Signatures. For an RSA signature,
// KeyID/Algorithm/SignatureB64 are populated and SignatureType is implied
// empty or "rsa-sha256"; for a keyless signature, SignatureType,
// SignerID, and Bundle are populated instead.
type Signature struct {
	// RSA variant (v1)
	KeyID         string `json:"keyId,omitempty"`
	Algorithm     string `json:"algorithm,omitempty"`
	SignatureB64  string `json:"signature,omitempty"`

	// Keyless variant (v2)
	SignatureType SignatureType  `json:"signatureType,omitempty"`
	SignerID      string         `json:"signerId,omitempty"`
	Bundle        map[string]any `json:"bundle,omitempty"`
}

// IsKeyless reports whether this entry uses the Sigstore keyless shape.
func (s Signature) IsKeyless() bool { return s.SignatureType == SignatureTypeKeyless }

// slotKey is the identity a new signature replaces an existing one by:
// KeyID for RSA, SignerID for keyless. A signer occupies exactly one slot.
func (s Signature) slotKey() string {
	if s.IsKeyless() {
		return "keyless:" + s.SignerID
	}
	return "rsa:" + s.KeyID
}

// PolicyBundle is the signed envelope around a Policy document (§3).
type PolicyBundle struct {
	SchemaVersion      int         `json:"schemaVersion"`
	CreatedAt          string      `json:"createdAt"`
	PolicySchemaPath   string      `json:"policySchemaPath"`
	PolicySchemaSha256 string      `json:"policySchemaSha256"`
	PolicySha256       string      `json:"policySha256"`
	RequiredSignatures int         `json:"requiredSignatures"`
	Policy             Policy      `json:"policy"`
	Signatures         []Signature `json:"signatures"`
}

// BuildTemplate computes policySha256 and returns an unsigned bundle ready
// for signing (§4.2).
func BuildTemplate(p Policy, schemaPath, schemaSha string, requiredSigs int, createdAt *time.Time) PolicyBundle {
	created := time.Now().UTC()
	if createdAt != nil {
		created = *createdAt
	}
	return PolicyBundle{
		SchemaVersion:      schemaVersionFor(p),
		CreatedAt:          created.Format(time.RFC3339),
		PolicySchemaPath:   schemaPath,
		PolicySchemaSha256: schemaSha,
		PolicySha256:       codec.HashJSON(p),
		RequiredSignatures: requiredSigs,
		Policy:             p,
		Signatures:         []Signature{},
	}
}

func schemaVersionFor(p Policy) int {
	if p.Version >= 3 {
		return 2
	}
	return 1
}

// SigningPayload is the exact object covered by every signature: the
// bundle's envelope metadata, not the policy body itself (the policy is
// covered only through its digest, policySha256). §4.2.
type SigningPayload struct {
	SchemaVersion      int    `json:"schemaVersion"`
	CreatedAt          string `json:"createdAt"`
	PolicySchemaPath   string `json:"policySchemaPath"`
	PolicySchemaSha256 string `json:"policySchemaSha256"`
	PolicySha256       string `json:"policySha256"`
	RequiredSignatures int    `json:"requiredSignatures"`
}

func (b PolicyBundle) signingPayload() SigningPayload {
	return SigningPayload{
		SchemaVersion:      b.SchemaVersion,
		CreatedAt:          b.CreatedAt,
		PolicySchemaPath:   b.PolicySchemaPath,
		PolicySchemaSha256: b.PolicySchemaSha256,
		PolicySha256:       b.PolicySha256,
		RequiredSignatures: b.RequiredSignatures,
	}
}

// SigningPayloadBytes is the canonical byte string actually hashed/signed.
func (b PolicyBundle) SigningPayloadBytes() []byte {
	return []byte(codec.StableStringify(b.signingPayload()))
}

// withSignature returns a copy of the bundle with sig inserted, replacing
// any existing entry that occupies the same slot (same KeyID/SignerID).
func (b PolicyBundle) withSignature(sig Signature) PolicyBundle {
	out := b
	out.Signatures = make([]Signature, 0, len(b.Signatures)+1)
	key := sig.slotKey()
	for _, existing := range b.Signatures {
		if existing.slotKey() == key {
			continue
		}
		out.Signatures = append(out.Signatures, existing)
	}
	out.Signatures = append(out.Signatures, sig)
	return out
}
