package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
	"nhbmarket/native/market"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP front-end for marketplace interactions.
type Server struct {
	engine *market.Engine
	ledger *escrow.Ledger
	calc   *fees.Calculator
	logger *slog.Logger
}

// NewServer wires the marketplace engines behind the HTTP surface.
func NewServer(engine *market.Engine, ledger *escrow.Ledger, calc *fees.Calculator, logger *slog.Logger) *Server {
	if engine == nil {
		panic("market engine required")
	}
	if ledger == nil {
		panic("escrow ledger required")
	}
	if calc == nil {
		panic("fee calculator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, ledger: ledger, calc: calc, logger: logger}
}

// Router assembles the chi router for the server. The metrics gatherer is
// optional; passing nil omits the /metrics endpoint.
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/listings", func(r chi.Router) {
		r.Post("/", s.handleCreateListing)
		r.Get("/{id}", s.handleGetListing)
		r.Post("/{id}/commit", s.handleCommitBid)
		r.Post("/{id}/reveal", s.handleRevealBid)
		r.Post("/{id}/buy", s.handleBuy)
		r.Post("/{id}/end", s.handleEndAuction)
		r.Post("/{id}/cancel", s.handleCancel)
	})
	r.Route("/escrow", func(r chi.Router) {
		r.Post("/withdraw", s.handleWithdraw)
		r.Get("/{rail}/{account}", s.handleEscrowBalance)
	})
	r.Route("/fees", func(r chi.Router) {
		r.Post("/update", s.handleUpdateFee)
		r.Post("/recipient", s.handleUpdateFeeRecipient)
	})
	return r
}

type createListingRequest struct {
	Seller          string `json:"seller"`
	Contract        string `json:"contract"`
	TokenID         string `json:"tokenId"`
	Price           string `json:"price"`
	Rail            string `json:"rail"`
	Auction         bool   `json:"auction"`
	AuctionDuration int64  `json:"auctionDuration"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	seller, err := parseAddress(req.Seller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	contract, err := parseAddress(req.Contract)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	tokenID, err := parseAmount(req.TokenID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	asset := market.AssetRef{Contract: contract, TokenID: tokenID}
	listing, err := s.engine.CreateListing(seller, asset, price, req.Rail, req.Auction, req.AuctionDuration)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logger.Info("listing created", "id", listing.ID, "auction", listing.Auction)
	s.writeJSON(w, http.StatusCreated, listingResponse(listing))
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	listing, err := s.engine.GetListing(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listingResponse(listing))
}

type commitBidRequest struct {
	Bidder     string `json:"bidder"`
	Commitment string `json:"commitment"`
}

func (s *Server) handleCommitBid(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req commitBidRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	commitment, err := parseHash(req.Commitment)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.CommitBid(bidder, id, commitment); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "committed"})
}

type revealBidRequest struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
	Nonce  string `json:"nonce"`
}

func (s *Server) handleRevealBid(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req revealBidRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	nonce, err := parseHash(req.Nonce)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.RevealBid(bidder, id, amount, nonce); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "revealed"})
}

type buyRequest struct {
	Buyer string `json:"buyer"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req buyRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := parseAddress(req.Buyer)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.BuyNFT(buyer, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logger.Info("purchase settled", "id", id)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sold"})
}

func (s *Server) handleEndAuction(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.EndAuction(id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logger.Info("auction settled", "id", id)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req cancelRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.CancelListing(caller, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type withdrawRequest struct {
	Caller string `json:"caller"`
	Rail   string `json:"rail"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := s.ledger.Withdraw(req.Rail, caller)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (s *Server) handleEscrowBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.ledger.Balance(chi.URLParam(r, "rail"), account)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

type updateFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps uint32 `json:"feeBps"`
}

func (s *Server) handleUpdateFee(w http.ResponseWriter, r *http.Request) {
	var req updateFeeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.calc.UpdateMarketplaceFee(caller, req.FeeBps); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type updateFeeRecipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleUpdateFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req updateFeeRecipientRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.calc.UpdateFeeRecipient(caller, recipient); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// --- helpers ---

func (s *Server) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	return json.Unmarshal(body, dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, market.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotApproved),
		errors.Is(err, market.ErrNotSeller),
		errors.Is(err, fees.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, market.ErrListingInactive),
		errors.Is(err, market.ErrNotAnAuction),
		errors.Is(err, market.ErrNotFixedPrice),
		errors.Is(err, market.ErrAuctionEnded),
		errors.Is(err, market.ErrAuctionNotEnded),
		errors.Is(err, market.ErrBidTooSoon),
		errors.Is(err, market.ErrNoBidCommitted),
		errors.Is(err, market.ErrRevealWindowExpired),
		errors.Is(err, market.ErrInvalidReveal),
		errors.Is(err, market.ErrBidIncrementTooLow),
		errors.Is(err, market.ErrNoBids),
		errors.Is(err, escrow.ErrNoFundsToWithdraw):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrAuctionTooShort),
		errors.Is(err, fees.ErrFeeBpsOutOfRange),
		errors.Is(err, fees.ErrInvalidRecipient):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseListingID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid listing id %q", raw)
	}
	return id, nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	if len(decoded) != len(addr) {
		return addr, errors.New("address must be 20 bytes")
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseHash(value string) ([32]byte, error) {
	var hash [32]byte
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return hash, fmt.Errorf("decode hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, errors.New("hash must be 32 bytes")
	}
	copy(hash[:], decoded)
	return hash, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", value)
	}
	return amount, nil
}

type listingView struct {
	ID              uint64 `json:"id"`
	Seller          string `json:"seller"`
	Contract        string `json:"contract"`
	TokenID         string `json:"tokenId"`
	Price           string `json:"price"`
	Rail            string `json:"rail"`
	Active          bool   `json:"active"`
	Auction         bool   `json:"auction"`
	AuctionEnd      int64  `json:"auctionEnd,omitempty"`
	HighestBid      string `json:"highestBid,omitempty"`
	HighestBidder   string `json:"highestBidder,omitempty"`
	MinBidIncrement string `json:"minBidIncrement,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
}

func listingResponse(l *market.Listing) listingView {
	view := listingView{
		ID:        l.ID,
		Seller:    "0x" + hex.EncodeToString(l.Seller[:]),
		Contract:  "0x" + hex.EncodeToString(l.Asset.Contract[:]),
		Price:     l.Price.String(),
		Rail:      l.PayRail,
		Active:    l.Active,
		Auction:   l.Auction,
		CreatedAt: l.CreatedAt,
	}
	if l.Asset.TokenID != nil {
		view.TokenID = l.Asset.TokenID.String()
	}
	if l.Auction {
		view.AuctionEnd = l.AuctionEnd
		view.HighestBid = l.HighestBid.String()
		view.MinBidIncrement = l.MinBidIncrement.String()
		if l.HighestBidder != ([20]byte{}) {
			view.HighestBidder = "0x" + hex.EncodeToString(l.HighestBidder[:])
		}
	}
	return view
}
