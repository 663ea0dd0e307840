package policy

import (
	"encoding/json"
	"os"
	"path/filepath"

	gateerrors "reach/gate/internal/errors"
)

// LoadPolicy reads a bare policy document (the `--policy <path>` source).
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Policy{}, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "read policy file").WithContext("path", path)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "parse policy file").WithContext("path", path)
	}
	return p, nil
}

// LoadBundle reads a policy bundle file (§6 bundle file layout).
func LoadBundle(path string) (PolicyBundle, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return PolicyBundle{}, gateerrors.Wrap(err, gateerrors.CodeBundleInvalid, "read bundle file").WithContext("path", path)
	}
	var b PolicyBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return PolicyBundle{}, gateerrors.Wrap(err, gateerrors.CodeBundleInvalid, "parse bundle file").WithContext("path", path)
	}
	return b, nil
}

// LoadTrustStore reads a trust-store file (§6).
func LoadTrustStore(path string) (TrustStore, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return TrustStore{}, gateerrors.Wrap(err, gateerrors.CodeTrustStoreInvalid, "read trust store file").WithContext("path", path)
	}
	var t TrustStore
	if err := json.Unmarshal(data, &t); err != nil {
		return TrustStore{}, gateerrors.Wrap(err, gateerrors.CodeTrustStoreInvalid, "parse trust store file").WithContext("path", path)
	}
	if err := t.Validate(); err != nil {
		return TrustStore{}, err
	}
	return t, nil
}

// SaveBundle writes a bundle with 2-space indent and a trailing newline
// (§6: "round-trip is byte-stable only after re-canonicalization").
func SaveBundle(path string, b PolicyBundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Clean(path), append(data, '\n'), 0o644)
}
