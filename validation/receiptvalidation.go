// Package validation verifies signed settlement receipts offline: a
// bidder (or any third party) can check a receipt served by the auction
// daemon without trusting the daemon's read endpoints.
package validation

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/bundleauction/auction"
)

// ParseReceiptDocument parses the JSON document served by the receipt
// endpoint.
func ParseReceiptDocument(data []byte) (*ReceiptDocument, error) {
	var doc ReceiptDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse receipt document: %w", err)
	}
	if doc.COSEBase64 == "" {
		return nil, fmt.Errorf("receipt document has no cose_base64 field")
	}
	if doc.PublicKeyPEM == "" {
		return nil, fmt.Errorf("receipt document has no public_key_pem field")
	}
	return &doc, nil
}

// ValidateSettlementReceipt validates a signed settlement receipt and
// verifies:
// - COSE_Sign1 signature against the verification key
// - Allocation consistency (every allocated item is held by a listed
//   winner, every winner holds at least one item, revenue is a valid
//   non-negative amount)
// - The plaintext receipt copy matches the signed payload, if provided
// - Winner/loser outcome for a given bidder, if requested
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid()
//     to check overall status)
//   - error if validation cannot be performed (e.g., malformed input)
func ValidateSettlementReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	key, err := ParseVerificationKeyPEM(input.PublicKeyPEM)
	if err != nil {
		return nil, err
	}
	coseBytes, err := DecodeCOSEBase64(input.COSEBase64)
	if err != nil {
		return nil, err
	}

	result := &ReceiptValidationResult{
		PlaintextMatch: true,
		OutcomeValid:   true,
	}

	receipt, err := auction.VerifyReceipt(coseBytes, key)
	if err != nil {
		result.addDetail("Signature verification failed: %v", err)
		// Surface what the unverified payload claims so the caller can see
		// what was being passed off under the bad signature.
		if payload, payloadErr := ExtractCOSEPayload(coseBytes); payloadErr == nil {
			var claimed auction.SettlementReceipt
			if json.Unmarshal(payload, &claimed) == nil {
				result.addDetail("Unverified payload claims auction %s, winners %v, revenue %s",
					claimed.Auction, claimed.Winners, claimed.TotalRevenue)
			}
		}
		result.AllocationValid = false
		result.PlaintextMatch = false
		result.OutcomeValid = false
		return result, nil
	}
	result.SignatureValid = true
	result.Receipt = receipt
	result.addDetail("Signature verified for auction %s", receipt.Auction)

	result.AllocationValid = validateAllocation(receipt, result)

	if input.Plaintext != nil {
		result.PlaintextMatch = validatePlaintext(receipt, input.Plaintext, result)
	}

	if input.Bidder != "" {
		won := slices.Contains(receipt.Winners, input.Bidder)
		result.OutcomeValid = won == input.ExpectWinner
		if result.OutcomeValid {
			result.addDetail("Outcome for %s matches expectation (winner=%t)", input.Bidder, won)
		} else {
			result.addDetail("Outcome mismatch for %s: receipt says winner=%t, expected winner=%t",
				input.Bidder, won, input.ExpectWinner)
		}
	}

	return result, nil
}

func validateAllocation(receipt *auction.SettlementReceipt, result *ReceiptValidationResult) bool {
	ok := true

	seen := make(map[string]bool, len(receipt.Winners))
	for _, winner := range receipt.Winners {
		if seen[winner] {
			result.addDetail("Winner %s is listed more than once", winner)
			ok = false
		}
		seen[winner] = true
	}

	held := make(map[string]int, len(receipt.Winners))
	for id, holder := range receipt.ItemHolders {
		if !seen[holder] {
			result.addDetail("Item %d is held by %s, who is not a listed winner", id, holder)
			ok = false
		}
		held[holder]++
	}
	for _, winner := range receipt.Winners {
		if held[winner] == 0 {
			result.addDetail("Winner %s holds no items", winner)
			ok = false
		}
	}

	revenue, err := decimal.NewFromString(receipt.TotalRevenue)
	if err != nil {
		result.addDetail("Total revenue %q is not a valid amount", receipt.TotalRevenue)
		ok = false
	} else if revenue.IsNegative() {
		result.addDetail("Total revenue %s is negative", receipt.TotalRevenue)
		ok = false
	}

	if ok {
		result.addDetail("Allocation is consistent: %d winners, %d items", len(receipt.Winners), len(receipt.ItemHolders))
	}
	return ok
}

func validatePlaintext(signed, plaintext *auction.SettlementReceipt, result *ReceiptValidationResult) bool {
	ok := true
	if plaintext.Auction != signed.Auction {
		result.addDetail("Plaintext auction %q differs from signed %q", plaintext.Auction, signed.Auction)
		ok = false
	}
	if !slices.Equal(plaintext.Winners, signed.Winners) {
		result.addDetail("Plaintext winners %v differ from signed %v", plaintext.Winners, signed.Winners)
		ok = false
	}
	if plaintext.TotalRevenue != signed.TotalRevenue {
		result.addDetail("Plaintext revenue %s differs from signed %s", plaintext.TotalRevenue, signed.TotalRevenue)
		ok = false
	}
	if len(plaintext.ItemHolders) != len(signed.ItemHolders) {
		result.addDetail("Plaintext holder count differs from signed")
		ok = false
	} else {
		for id, holder := range signed.ItemHolders {
			if plaintext.ItemHolders[id] != holder {
				result.addDetail("Plaintext holder of item %d differs from signed", id)
				ok = false
			}
		}
	}
	if ok {
		result.addDetail("Plaintext receipt matches signed payload")
	}
	return ok
}

func (r *ReceiptValidationResult) addDetail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}
