package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/bundleauction/auction"
	"github.com/cloudx-io/bundleauction/auctionapi"
	"github.com/cloudx-io/bundleauction/core"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := auctionapi.NewErrorResponse(err)
	s.writeJSON(w, statusForKind(resp.Kind), resp)
}

// statusForKind maps boundary error kinds to HTTP statuses: missing
// entities are 404, lifecycle/state conflicts are 409, a failed commitment
// check is 422, and everything else is a plain bad request.
func statusForKind(kind string) int {
	switch kind {
	case auctionapi.KindBidNotFound, auctionapi.KindItemNotFound:
		return http.StatusNotFound
	case auctionapi.KindWrongPhase,
		auctionapi.KindNotInitialized,
		auctionapi.KindAlreadyInitialized,
		auctionapi.KindDuplicateBid,
		auctionapi.KindAlreadyWithdrawn,
		auctionapi.KindAlreadyRevealed,
		auctionapi.KindAlreadySolved,
		auctionapi.KindNotSolved,
		auctionapi.KindAlreadyRefunded,
		auctionapi.KindNotEligibleForRefund:
		return http.StatusConflict
	case auctionapi.KindCommitmentMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.InitializeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	specs, err := req.ItemSpecs()
	if err != nil {
		s.writeError(w, err)
		return
	}

	commitDur := time.Duration(req.CommitDurationSeconds) * time.Second
	revealDur := time.Duration(req.RevealDurationSeconds) * time.Second
	if err := s.auction.Initialize(specs, commitDur, revealDur); err != nil {
		s.writeError(w, err)
		return
	}
	s.persist()

	info, err := s.auction.Info()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"items":      info.ItemCount,
		"commit_end": info.CommitEnd,
		"reveal_end": info.RevealEnd,
	}).Info("auction initialized")
	s.writeJSON(w, http.StatusOK, auctionapi.NewAuctionView(info, s.auction.Phase()))
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.CommitBidRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	deposit, err := decimal.NewFromString(req.Deposit)
	if err != nil {
		s.writeError(w, fmt.Errorf("invalid deposit %q: %w", req.Deposit, err))
		return
	}

	if err := s.auction.CommitBid(req.Bidder, req.Digest, deposit); err != nil {
		s.writeError(w, err)
		return
	}
	s.persist()

	bid, err := s.auction.Bid(req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewBidView(bid))
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.RevealBidRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		s.writeError(w, fmt.Errorf("invalid amount %q: %w", req.Amount, err))
		return
	}

	if err := s.auction.RevealBid(req.Bidder, req.Bundle(), amount, req.Nonce); err != nil {
		s.writeError(w, err)
		return
	}
	s.persist()

	bid, err := s.auction.Bid(req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewBidView(bid))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req auctionapi.WithdrawBidRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.auction.WithdrawBid(req.Bidder); err != nil {
		s.writeError(w, err)
		return
	}
	s.persist()

	bid, err := s.auction.Bid(req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewBidView(bid))
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	result, err := s.auction.SolveWinnerDetermination()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.persist()

	s.log.WithFields(logrus.Fields{
		"winners": result.Winners,
		"revenue": result.TotalRevenue.String(),
	}).Info("winner determination complete")
	s.writeJSON(w, http.StatusOK, auctionapi.NewAllocationView(result))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	bidder := mux.Vars(r)["bidder"]
	if err := s.auction.RefundLosingBid(bidder); err != nil {
		s.writeError(w, err)
		return
	}
	s.persist()

	bid, err := s.auction.Bid(bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewBidView(bid))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.auction.Info()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewAuctionView(info, s.auction.Phase()))
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.auction.Items()
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]auctionapi.ItemView, len(items))
	for i, item := range items {
		views[i] = auctionapi.NewItemView(item)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func parseItemID(r *http.Request) (core.ItemID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q: %w", raw, err)
	}
	return core.ItemID(id), nil
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	item, err := s.auction.Item(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewItemView(item))
}

func (s *Server) handleItemWinner(w http.ResponseWriter, r *http.Request) {
	id, err := parseItemID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bid, err := s.auction.WinningBid(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewBidView(bid))
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	bid, err := s.auction.Bid(mux.Vars(r)["bidder"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewBidView(bid))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.auction.Allocation()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, auctionapi.NewAllocationView(result))
}

// receiptResponse carries the signed settlement receipt: the plaintext
// copy, the COSE_Sign1 envelope, and the verification key.
type receiptResponse struct {
	Receipt      *auction.SettlementReceipt `json:"receipt"`
	COSEBase64   string                     `json:"cose_base64"`
	PublicKeyPEM string                     `json:"public_key_pem"`
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.auction.BuildReceipt()
	if err != nil {
		s.writeError(w, err)
		return
	}
	signed, err := auction.SignReceipt(receipt, s.receiptKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pemKey, err := encodePublicKeyPEM(&s.receiptKey.PublicKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receiptResponse{
		Receipt:      receipt,
		COSEBase64:   base64.StdEncoding.EncodeToString(signed),
		PublicKeyPEM: pemKey,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.events.Events())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"phase":  string(s.auction.Phase()),
	})
}
