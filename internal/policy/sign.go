package policy

import (
	"crypto/rsa"

	gateerrors "reach/gate/internal/errors"
)

func errBundleMalformed(msg string) error {
	return gateerrors.New(gateerrors.CodeBundleInvalid, msg)
}

// Sign appends (or replaces, by keyId) an RSA signature over the bundle's
// signing payload.
func Sign(bundle PolicyBundle, keyID string, priv *rsa.PrivateKey) (PolicyBundle, error) {
	sigB64, err := SignRSA(bundle.SigningPayloadBytes(), priv)
	if err != nil {
		return bundle, err
	}
	return bundle.withSignature(Signature{
		KeyID:        keyID,
		Algorithm:    string(SignatureTypeRSA),
		SignatureB64: sigB64,
	}), nil
}

// SignKeyless appends (or replaces, by signerId) a Sigstore keyless
// signature, delegating to the injected adapter (§4.2, §9).
func SignKeyless(bundle PolicyBundle, signerID string, adapter SigstoreAdapter, opts SigstoreOptions) (PolicyBundle, error) {
	result, err := adapter.Sign(bundle.SigningPayloadBytes(), opts)
	if err != nil {
		return bundle, err
	}
	if result == nil {
		return bundle, errBundleMalformed("sigstore adapter returned a nil bundle")
	}
	return bundle.withSignature(Signature{
		SignatureType: SignatureTypeKeyless,
		SignerID:      signerID,
		Bundle:        result,
	}), nil
}
