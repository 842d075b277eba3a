package validation

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ParseVerificationKeyPEM parses a PEM-encoded ECDSA public key as served
// by the auction daemon alongside the signed receipt.
func ParseVerificationKeyPEM(pemKey string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in verification key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecdsaKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("verification key is not an ECDSA key")
	}
	return ecdsaKey, nil
}

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 structure
// without verifying the signature.
// COSE_Sign1 structure: [protected, unprotected, payload, signature]
// Returns the payload bytes (element 2)
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		// Signed receipts carry CBOR tag 18 around the array.
		var tagged cbor.Tag
		if tagErr := cbor.Unmarshal(coseBytes, &tagged); tagErr != nil {
			return nil, fmt.Errorf("parse COSE array: %w", err)
		}
		arr, ok := tagged.Content.([]any)
		if !ok {
			return nil, fmt.Errorf("invalid COSE_Sign1 structure")
		}
		coseArray = arr
	}
	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	return payload, nil
}

// DecodeCOSEBase64 decodes the base64 COSE envelope from a receipt document.
func DecodeCOSEBase64(coseB64 string) ([]byte, error) {
	coseBytes, err := base64.StdEncoding.DecodeString(coseB64)
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}
	return coseBytes, nil
}
