// auctiond serves one sealed-bid combinatorial auction over HTTP: the
// boundary operations (initialize, commit, reveal, withdraw, solve,
// refund), the read-only accessors, the event feed, and a COSE-signed
// settlement receipt once the auction has been solved.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/bundleauction/auction"
)

// Server hosts a single auction instance.
type Server struct {
	addr       string
	log        *logrus.Entry
	auction    *auction.Auction
	events     *auction.MemoryEvents
	receiptKey *ecdsa.PrivateKey
	stateFile  string
}

// NewServer wires an auction with a logging event sink and a fresh ECDSA
// receipt-signing key. When stateFile is non-empty and holds a snapshot
// from an earlier run, the auction resumes from it.
func NewServer(addr, owner, stateFile string, logger *logrus.Logger) (*Server, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate receipt key: %w", err)
	}

	events := auction.NewMemoryEvents()
	log := logger.WithField("module", "auctiond")
	cfg := auction.Config{
		Owner: owner,
		Events: fanoutSink{
			feed: events,
			log:  logger.WithField("module", "auctiond.events"),
		},
	}

	var a *auction.Auction
	if snapshot, readErr := os.ReadFile(stateFile); stateFile != "" && readErr == nil {
		a, err = auction.Restore(snapshot, cfg)
		if err != nil {
			return nil, fmt.Errorf("restore auction state from %s: %w", stateFile, err)
		}
		log.WithField("state_file", stateFile).Info("resumed auction from snapshot")
	} else {
		a = auction.New(cfg)
	}

	return &Server{
		addr:       addr,
		log:        log,
		auction:    a,
		events:     events,
		receiptKey: key,
		stateFile:  stateFile,
	}, nil
}

// persist writes the current auction snapshot to the state file, if one is
// configured. Persistence failures are logged, not returned: the in-memory
// state already moved and the operation must not look failed to the caller.
func (s *Server) persist() {
	if s.stateFile == "" {
		return
	}
	snapshot, err := s.auction.Snapshot()
	if err != nil {
		s.log.WithError(err).Error("failed to encode auction snapshot")
		return
	}
	if err := os.WriteFile(s.stateFile, snapshot, 0o600); err != nil {
		s.log.WithError(err).Error("failed to write auction snapshot")
	}
}

// fanoutSink forwards each event to the in-memory feed and mirrors it into
// the log.
type fanoutSink struct {
	feed *auction.MemoryEvents
	log  *logrus.Entry
}

func (s fanoutSink) Emit(evt auction.Event) {
	s.feed.Emit(evt)
	fields := logrus.Fields{"event": evt.Type}
	if evt.Bidder != "" {
		fields["bidder"] = evt.Bidder
	}
	if evt.Amount != nil {
		fields["amount"] = evt.Amount.String()
	}
	if evt.Winners != nil {
		fields["winners"] = evt.Winners
	}
	s.log.WithFields(fields).Info("auction event")
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/auction/initialize", s.handleInitialize).Methods(http.MethodPost)
	r.HandleFunc("/auction/solve", s.handleSolve).Methods(http.MethodPost)
	r.HandleFunc("/auction/result", s.handleResult).Methods(http.MethodGet)
	r.HandleFunc("/auction/receipt", s.handleReceipt).Methods(http.MethodGet)
	r.HandleFunc("/auction", s.handleInfo).Methods(http.MethodGet)

	r.HandleFunc("/bids/commit", s.handleCommit).Methods(http.MethodPost)
	r.HandleFunc("/bids/reveal", s.handleReveal).Methods(http.MethodPost)
	r.HandleFunc("/bids/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	r.HandleFunc("/bids/{bidder}/refund", s.handleRefund).Methods(http.MethodPost)
	r.HandleFunc("/bids/{bidder}", s.handleBid).Methods(http.MethodGet)

	r.HandleFunc("/items", s.handleItems).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}/winner", s.handleItemWinner).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}", s.handleItem).Methods(http.MethodGet)

	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return r
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	s.log.WithField("addr", s.addr).Info("auction server listening")
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

// encodePublicKeyPEM exports the receipt verification key in PEM format.
func encodePublicKeyPEM(pub *ecdsa.PublicKey) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}
	return string(pem.EncodeToMemory(pemBlock)), nil
}

// getRequiredEnv reads a required environment variable.
func getRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return value, nil
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("AUCTION_LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	addr, err := getRequiredEnv("AUCTION_HTTP_ADDR")
	if err != nil {
		logger.Fatal(err)
	}
	owner := os.Getenv("AUCTION_OWNER")
	if owner == "" {
		owner = "auction"
	}
	stateFile := os.Getenv("AUCTION_STATE_FILE")

	server, err := NewServer(addr, owner, stateFile, logger)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Fatal(server.Start())
}
