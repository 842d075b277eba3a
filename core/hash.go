package core

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// amountPrecision fixes the decimal places used when an amount enters a
// commitment preimage, so the digest is independent of how the amount was
// written (e.g. "100" vs "100.0").
const amountPrecision int32 = 6

// ComputeBidCommitment computes the sealed-bid commitment digest. Bidders
// run this off-chain before committing; the auction reruns it at reveal
// time and compares against the stored digest.
//
// Formula: SHA256(bidder + "|" + itemIDs joined with "," + "|" +
// amount formatted to 6 decimal places + "|" + nonce)
//
// The item ids enter the preimage in the given order; a reveal must present
// the identical sequence that was committed to.
func ComputeBidCommitment(bidder string, itemIDs []ItemID, amount decimal.Decimal, nonce string) string {
	ids := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		ids[i] = strconv.FormatInt(int64(id), 10)
	}
	data := fmt.Sprintf("%s|%s|%s|%s", bidder, strings.Join(ids, ","), amount.StringFixed(amountPrecision), nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// NewBidNonce returns a fresh random nonce suitable for a bid commitment.
func NewBidNonce() string {
	return uuid.NewString()
}
