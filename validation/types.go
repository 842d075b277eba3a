package validation

import "github.com/cloudx-io/bundleauction/auction"

// ReceiptDocument is the JSON document served by the auction daemon's
// receipt endpoint: a plaintext copy of the settlement receipt, the
// COSE_Sign1 envelope, and the verification key.
type ReceiptDocument struct {
	Receipt      *auction.SettlementReceipt `json:"receipt"`
	COSEBase64   string                     `json:"cose_base64"`
	PublicKeyPEM string                     `json:"public_key_pem"`
}

// ReceiptValidationInput contains all inputs needed for settlement receipt
// validation.
type ReceiptValidationInput struct {
	COSEBase64   string                     // COSE_Sign1 envelope, base64-encoded
	PublicKeyPEM string                     // PEM-encoded ECDSA verification key
	Plaintext    *auction.SettlementReceipt // Unsigned copy to cross-check, if available
	Bidder       string                     // Bidder identity to check the outcome for (empty = skip)
	ExpectWinner bool                       // Expected outcome for Bidder (true = expect to win)
}

// ReceiptValidationResult contains the per-check results of receipt
// validation.
type ReceiptValidationResult struct {
	SignatureValid    bool
	AllocationValid   bool
	PlaintextMatch    bool
	OutcomeValid      bool
	Receipt           *auction.SettlementReceipt // Verified payload; nil if the signature fails
	ValidationDetails []string
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.SignatureValid && r.AllocationValid && r.PlaintextMatch && r.OutcomeValid
}
