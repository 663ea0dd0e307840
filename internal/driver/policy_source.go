package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strconv"

	gateerrors "reach/gate/internal/errors"
	"reach/gate/internal/policy"
	"reach/gate/internal/policy/merge"
)

// resolvedPolicy carries the policy document plus the evidence a report
// needs about where it came from.
type resolvedPolicy struct {
	Policy     policy.Policy
	PolicyPath string            // the single path to surface as Report.PolicyPath
	Evidence   map[string]string // digests to fold into Report.EvidenceHashes
}

// resolvePolicySource implements §4.9 step 1: exactly one of the three
// policy-source groups must be populated, and incompatible flags within the
// bundle group conflict.
func resolvePolicySource(o Options) (resolvedPolicy, error) {
	bundleGroup := o.BundlePath != "" || o.SchemaPath != "" || o.TrustStorePath != "" || len(o.PublicKeys) > 0
	orgGroup := o.OrgPolicyPath != "" || o.LocalPolicyPath != ""
	groups := 0
	if o.PolicyPath != "" {
		groups++
	}
	if bundleGroup {
		groups++
	}
	if orgGroup {
		groups++
	}
	if groups == 0 {
		return resolvedPolicy{}, gateerrors.New(gateerrors.CodeArgRequired, "a policy source is required")
	}
	if groups > 1 {
		return resolvedPolicy{}, gateerrors.New(gateerrors.CodeArgConflict, "conflicting policy sources were supplied")
	}

	switch {
	case o.PolicyPath != "":
		return resolveBarePolicy(o)
	case bundleGroup:
		return resolveBundle(o)
	default:
		return resolveOverride(o)
	}
}

func resolveBarePolicy(o Options) (resolvedPolicy, error) {
	p, err := policy.LoadPolicy(o.PolicyPath)
	if err != nil {
		return resolvedPolicy{}, err
	}
	return resolvedPolicy{
		Policy:     p,
		PolicyPath: o.PolicyPath,
		Evidence:   map[string]string{"policy": hashFileOrValue(o.PolicyPath, p)},
	}, nil
}

func resolveBundle(o Options) (resolvedPolicy, error) {
	if o.SchemaPath == "" {
		return resolvedPolicy{}, gateerrors.New(gateerrors.CodeArgRequired, "--policy-schema is required with --policy-bundle")
	}
	if o.TrustStorePath != "" && len(o.PublicKeys) > 0 {
		return resolvedPolicy{}, gateerrors.New(gateerrors.CodeArgConflict, "--policy-trust-store conflicts with --policy-public-key")
	}

	bundle, err := policy.LoadBundle(o.BundlePath)
	if err != nil {
		return resolvedPolicy{}, err
	}
	schemaSha, err := hashFile(o.SchemaPath)
	if err != nil {
		return resolvedPolicy{}, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "read policy schema file").WithContext("path", o.SchemaPath)
	}

	var result policy.VerifyResult
	if o.TrustStorePath != "" {
		store, loadErr := policy.LoadTrustStore(o.TrustStorePath)
		if loadErr != nil {
			return resolvedPolicy{}, loadErr
		}
		result, err = policy.VerifyWithTrustStore(bundle, store, schemaSha, policy.NoOpSigstoreAdapter{})
	} else {
		trustedKeys, keyErr := loadTrustedKeys(o.PublicKeys)
		if keyErr != nil {
			return resolvedPolicy{}, keyErr
		}
		result, err = policy.Verify(bundle, trustedKeys, schemaSha)
	}
	if err != nil {
		return resolvedPolicy{}, err
	}

	return resolvedPolicy{
		Policy:     bundle.Policy,
		PolicyPath: o.BundlePath,
		Evidence: map[string]string{
			"bundle":        bundle.PolicySha256,
			"schema":        schemaSha,
			"validSigCount": strconv.Itoa(len(result.ValidSignatures)),
		},
	}, nil
}

func resolveOverride(o Options) (resolvedPolicy, error) {
	if o.OrgPolicyPath == "" || o.LocalPolicyPath == "" {
		return resolvedPolicy{}, gateerrors.New(gateerrors.CodeArgRequired, "--org-policy and --local-policy are both required")
	}
	org, err := policy.LoadPolicy(o.OrgPolicyPath)
	if err != nil {
		return resolvedPolicy{}, err
	}
	local, err := policy.LoadPolicy(o.LocalPolicyPath)
	if err != nil {
		return resolvedPolicy{}, err
	}

	var constraints *merge.Constraints
	if o.OverrideConstraintsPath != "" {
		data, readErr := os.ReadFile(o.OverrideConstraintsPath)
		if readErr != nil {
			return resolvedPolicy{}, gateerrors.Wrap(readErr, gateerrors.CodeArgInvalid, "read override constraints file").WithContext("path", o.OverrideConstraintsPath)
		}
		var c merge.Constraints
		if jsonErr := json.Unmarshal(data, &c); jsonErr != nil {
			return resolvedPolicy{}, gateerrors.Wrap(jsonErr, gateerrors.CodeOverrideConstraintsInvalid, "parse override constraints file").WithContext("path", o.OverrideConstraintsPath)
		}
		constraints = &c
	}

	merged, err := merge.MergeWithConstraints(org, local, constraints)
	if err != nil {
		return resolvedPolicy{}, err
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return resolvedPolicy{}, err
	}
	var p policy.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return resolvedPolicy{}, gateerrors.Wrap(err, gateerrors.CodeOverrideConstraintsInvalid, "decode merged policy")
	}

	return resolvedPolicy{
		Policy:     p,
		PolicyPath: o.LocalPolicyPath,
		Evidence:   map[string]string{"org": hashFileOrValue(o.OrgPolicyPath, org), "local": hashFileOrValue(o.LocalPolicyPath, local)},
	}, nil
}

func loadTrustedKeys(entries map[string]string) (policy.TrustedKeys, error) {
	keys := make(policy.TrustedKeys, len(entries))
	for keyID, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "read public key file").WithContext("path", path)
		}
		pub, err := policy.ParseRSAPublicKeyPEM(string(data))
		if err != nil {
			return nil, gateerrors.Wrap(err, gateerrors.CodeArgInvalid, "parse public key file").WithContext("path", path)
		}
		keys[keyID] = pub
	}
	return keys, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func hashFileOrValue(path string, v any) string {
	if sum, err := hashFile(path); err == nil {
		return sum
	}
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
