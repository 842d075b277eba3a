package auction

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/bundleauction/core"
)

// SettlementReceipt is the signed public record of a settled auction:
// who won, what the auction took in, and where every allocated item ended
// up. Anyone holding the signing public key can verify it offline.
type SettlementReceipt struct {
	Auction      string                 `json:"auction"`
	Winners      []string               `json:"winners"`
	TotalRevenue string                 `json:"total_revenue"`
	ItemHolders  map[core.ItemID]string `json:"item_holders"`
	IssuedAt     time.Time              `json:"issued_at"`
}

// BuildReceipt assembles the settlement receipt. It fails until winner
// determination has run.
func (a *Auction) BuildReceipt() (*SettlementReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.solved {
		return nil, fmt.Errorf("receipt: %w", core.ErrNotSolved)
	}

	holders := make(map[core.ItemID]string)
	for _, id := range a.itemOrder {
		if item := a.items[id]; item.Holder != a.owner {
			holders[id] = item.Holder
		}
	}
	return &SettlementReceipt{
		Auction:      a.owner,
		Winners:      append([]string(nil), a.result.Winners...),
		TotalRevenue: a.result.TotalRevenue.String(),
		ItemHolders:  holders,
		IssuedAt:     a.clock(),
	}, nil
}

// SignReceipt wraps the receipt in a COSE_Sign1 envelope signed with
// ES256. The payload is the receipt's JSON encoding.
func SignReceipt(receipt *SettlementReceipt, key *ecdsa.PrivateKey) ([]byte, error) {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}

	data, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("encode COSE envelope: %w", err)
	}
	return data, nil
}

// VerifyReceipt checks the COSE_Sign1 signature against the public key and
// returns the embedded receipt.
func VerifyReceipt(coseBytes []byte, pub *ecdsa.PublicKey) (*SettlementReceipt, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(coseBytes); err != nil {
		return nil, fmt.Errorf("decode COSE envelope: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("receipt signature verification failed: %w", err)
	}

	var receipt SettlementReceipt
	if err := json.Unmarshal(msg.Payload, &receipt); err != nil {
		return nil, fmt.Errorf("parse receipt payload: %w", err)
	}
	return &receipt, nil
}
