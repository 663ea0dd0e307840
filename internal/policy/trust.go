package policy

import (
	"fmt"
	"time"

	gateerrors "reach/gate/internal/errors"
)

// SignerType discriminates the two trust-store signer shapes (§3).
type SignerType string

const (
	SignerTypeRSAKey   SignerType = "rsa-key"
	SignerTypeKeyless  SignerType = "sigstore-keyless"
)

// SignerState (v2) is a signer's lifecycle position.
type SignerState string

const (
	SignerActive  SignerState = "active"
	SignerRetired SignerState = "retired"
	SignerRevoked SignerState = "revoked"
)

// Signer is one entry in a TrustStore. Natural key is KeyID for RSA
// signers, or (CertificateIssuer, CertificateIdentityURI) for keyless
// signers; IDs are free-form and only need to be unique within the store.
type Signer struct {
	ID   string     `json:"id"`
	Type SignerType `json:"type"`

	// RSA variant
	KeyID         string `json:"keyId,omitempty"`
	PublicKeyPEM  string `json:"publicKeyPem,omitempty"`

	// Keyless variant
	CertificateIssuer      string `json:"certificateIssuer,omitempty"`
	CertificateIdentityURI string `json:"certificateIdentityUri,omitempty"`

	// v2 lifecycle
	State      SignerState `json:"state,omitempty"`
	ValidFrom  string      `json:"validFrom,omitempty"`
	ValidUntil string      `json:"validUntil,omitempty"`
	Replaces   string      `json:"replaces,omitempty"`
	ReplacedBy string      `json:"replacedBy,omitempty"`
}

// EffectiveState defaults an empty State to active (v1 stores carry no
// lifecycle fields at all, which is equivalent to every signer being
// active with no validity window).
func (s Signer) EffectiveState() SignerState {
	if s.State == "" {
		return SignerActive
	}
	return s.State
}

func (s Signer) naturalKey() string {
	if s.Type == SignerTypeKeyless {
		return fmt.Sprintf("keyless:%s:%s", s.CertificateIssuer, s.CertificateIdentityURI)
	}
	return fmt.Sprintf("rsa:%s", s.KeyID)
}

// TrustStore is a versioned collection of signer descriptors (§3).
type TrustStore struct {
	SchemaVersion int      `json:"schemaVersion"`
	Signers       []Signer `json:"signers"`
}

// Validate checks the four trust-store invariants from §3. v1 stores
// (SchemaVersion < 2) ignore lifecycle fields per §6, so validity-window
// ordering is still checked (it is a structural invariant, not a lifecycle
// behavior), but State/Replaces links are only meaningful at v2.
func (t TrustStore) Validate() error {
	ids := make(map[string]bool, len(t.Signers))
	types := make(map[string]SignerType, len(t.Signers))
	naturalKeys := make(map[string]bool, len(t.Signers))
	for _, s := range t.Signers {
		if ids[s.ID] {
			return gateerrors.Newf(gateerrors.CodeTrustStoreInvalid, "duplicate signer id %q", s.ID).
				WithContext("id", s.ID)
		}
		ids[s.ID] = true
		types[s.ID] = s.Type

		nk := s.naturalKey()
		if naturalKeys[nk] {
			return gateerrors.Newf(gateerrors.CodeTrustStoreInvalid, "duplicate natural key for signer %q", s.ID).
				WithContext("naturalKey", nk)
		}
		naturalKeys[nk] = true

		if s.ValidFrom != "" && s.ValidUntil != "" {
			from, err1 := time.Parse(time.RFC3339, s.ValidFrom)
			until, err2 := time.Parse(time.RFC3339, s.ValidUntil)
			if err1 == nil && err2 == nil && until.Before(from) {
				return gateerrors.Newf(gateerrors.CodeTrustStoreInvalid, "validUntil before validFrom for signer %q", s.ID).
					WithContext("id", s.ID)
			}
		}
	}
	for _, s := range t.Signers {
		if s.Replaces != "" && !ids[s.Replaces] {
			return gateerrors.Newf(gateerrors.CodeTrustStoreInvalid, "signer %q replaces unknown id %q", s.ID, s.Replaces)
		}
		if s.ReplacedBy != "" && !ids[s.ReplacedBy] {
			return gateerrors.Newf(gateerrors.CodeTrustStoreInvalid, "signer %q replacedBy unknown id %q", s.ID, s.ReplacedBy)
		}
		if (s.Replaces != "" && types[s.Replaces] != s.Type) || (s.ReplacedBy != "" && types[s.ReplacedBy] != s.Type) {
			return gateerrors.Newf(gateerrors.CodeTrustStoreInvalid, "signer %q is linked to a signer of another type", s.ID)
		}
	}
	return nil
}

// findByRSAKeyID resolves a signer by its RSA natural key.
func (t TrustStore) findByRSAKeyID(keyID string) (Signer, bool) {
	for _, s := range t.Signers {
		if s.Type == SignerTypeRSAKey && s.KeyID == keyID {
			return s, true
		}
	}
	return Signer{}, false
}

// findByKeylessIdentity resolves a signer by its keyless natural key.
func (t TrustStore) findByKeylessIdentity(issuer, identityURI string) (Signer, bool) {
	for _, s := range t.Signers {
		if s.Type == SignerTypeKeyless && s.CertificateIssuer == issuer && s.CertificateIdentityURI == identityURI {
			return s, true
		}
	}
	return Signer{}, false
}

// withinValidityWindow reports whether createdAt (bundle timestamp) falls
// within the signer's [ValidFrom, ValidUntil] window, treating an unset
// bound as open-ended.
func (s Signer) withinValidityWindow(createdAt time.Time) bool {
	if s.ValidFrom != "" {
		from, err := time.Parse(time.RFC3339, s.ValidFrom)
		if err == nil && createdAt.Before(from) {
			return false
		}
	}
	if s.ValidUntil != "" {
		until, err := time.Parse(time.RFC3339, s.ValidUntil)
		if err == nil && createdAt.After(until) {
			return false
		}
	}
	return true
}
