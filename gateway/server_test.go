package gateway

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"nhbmarket/core/state"
	"nhbmarket/native/bank"
	"nhbmarket/native/custody"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
	"nhbmarket/native/market"
	"nhbmarket/storage"
)

type testHarness struct {
	handler  http.Handler
	engine   *market.Engine
	rail     *bank.Ledger
	registry *custody.Registry
	now      int64

	operator     [20]byte
	seller       [20]byte
	feeOwner     [20]byte
	feeRecipient [20]byte
	contract     [20]byte
	tokenID      *big.Int
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func hexAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		now:          1_700_000_000,
		operator:     testAddress(0x01),
		seller:       testAddress(0x02),
		feeOwner:     testAddress(0x03),
		feeRecipient: testAddress(0x04),
		contract:     testAddress(0x10),
		tokenID:      big.NewInt(7),
	}

	store := state.NewStore(storage.NewMemDB())
	h.rail = bank.NewLedger(store)
	h.registry = custody.NewRegistry(h.operator)

	ledger := escrow.NewLedger()
	ledger.SetState(store)
	ledger.SetPaymentRail(h.rail)

	calc, err := fees.NewCalculator(fees.Owner(h.feeOwner), 250, h.feeRecipient)
	require.NoError(t, err)
	require.NoError(t, calc.SetState(store))

	h.engine = market.NewEngine()
	h.engine.SetState(store)
	h.engine.SetCustody(h.registry)
	h.engine.SetLedger(ledger)
	h.engine.SetCalculator(calc)
	h.engine.SetPaymentRail(h.rail)
	h.engine.SetOperatorAddress(h.operator)
	h.engine.SetNowFunc(func() int64 { return h.now })

	server := NewServer(h.engine, ledger, calc, nil)
	h.handler = server.Router(prometheus.NewRegistry())

	require.NoError(t, h.registry.Register(h.contract, h.tokenID, h.seller))
	require.NoError(t, h.registry.Approve(h.contract, h.tokenID, h.seller, h.operator))
	return h
}

func (h *testHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) createListing(t *testing.T, auction bool) uint64 {
	t.Helper()
	payload := map[string]any{
		"seller":   hexAddress(h.seller),
		"contract": hexAddress(h.contract),
		"tokenId":  h.tokenID.String(),
		"price":    "1000",
		"rail":     escrow.NativeRail,
		"auction":  auction,
	}
	if auction {
		payload["auctionDuration"] = market.MinAuctionDuration
	}
	rec := h.do(t, http.MethodPost, "/listings", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view.ID
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetListing(t *testing.T) {
	h := newTestHarness(t)
	id := h.createListing(t, false)

	rec := h.do(t, http.MethodGet, "/listings/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view listingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, id, view.ID)
	require.Equal(t, hexAddress(h.seller), view.Seller)
	require.Equal(t, "1000", view.Price)
	require.True(t, view.Active)
	require.False(t, view.Auction)

	rec = h.do(t, http.MethodGet, "/listings/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/listings/notanumber", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateListingRejectsBadInput(t *testing.T) {
	h := newTestHarness(t)
	rec := h.do(t, http.MethodPost, "/listings", map[string]any{
		"seller":   "0x1234",
		"contract": hexAddress(h.contract),
		"tokenId":  "7",
		"price":    "1000",
		"rail":     escrow.NativeRail,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings", map[string]any{
		"seller":   hexAddress(h.seller),
		"contract": hexAddress(h.contract),
		"tokenId":  "7",
		"price":    "0",
		"rail":     escrow.NativeRail,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// A stranger listing someone else's asset is forbidden, not malformed.
	rec = h.do(t, http.MethodPost, "/listings", map[string]any{
		"seller":   hexAddress(testAddress(0x55)),
		"contract": hexAddress(h.contract),
		"tokenId":  "7",
		"price":    "1000",
		"rail":     escrow.NativeRail,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBuyFlow(t *testing.T) {
	h := newTestHarness(t)
	id := h.createListing(t, false)
	require.Equal(t, uint64(1), id)
	buyer := testAddress(0x20)
	require.NoError(t, h.rail.Mint(escrow.NativeRail, buyer, big.NewInt(1000)))

	rec := h.do(t, http.MethodPost, "/listings/1/buy", map[string]string{"buyer": hexAddress(buyer)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sellerBalance, err := h.rail.BalanceOf(escrow.NativeRail, h.seller)
	require.NoError(t, err)
	require.Equal(t, int64(975), sellerBalance.Int64())

	// The terminal transition fires once.
	rec = h.do(t, http.MethodPost, "/listings/1/buy", map[string]string{"buyer": hexAddress(buyer)})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuctionFlowOverHTTP(t *testing.T) {
	h := newTestHarness(t)
	h.createListing(t, true)
	bidder := testAddress(0x20)
	require.NoError(t, h.rail.Mint(escrow.NativeRail, bidder, big.NewInt(1000)))

	nonce := [32]byte{0x42}
	commitment := market.CommitmentHash(bidder, big.NewInt(1000), nonce)
	rec := h.do(t, http.MethodPost, "/listings/1/commit", map[string]string{
		"bidder":     hexAddress(bidder),
		"commitment": "0x" + hex.EncodeToString(commitment[:]),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/listings/1/reveal", map[string]string{
		"bidder": hexAddress(bidder),
		"amount": "1000",
		"nonce":  "0x" + hex.EncodeToString(nonce[:]),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Ending early is a state conflict.
	rec = h.do(t, http.MethodPost, "/listings/1/end", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	h.now += market.MinAuctionDuration
	rec = h.do(t, http.MethodPost, "/listings/1/end", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sellerBalance, err := h.rail.BalanceOf(escrow.NativeRail, h.seller)
	require.NoError(t, err)
	require.Equal(t, int64(975), sellerBalance.Int64())
}

func TestCancelListingOverHTTP(t *testing.T) {
	h := newTestHarness(t)
	h.createListing(t, false)

	rec := h.do(t, http.MethodPost, "/listings/1/cancel", map[string]string{"caller": hexAddress(testAddress(0x55))})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings/1/cancel", map[string]string{"caller": hexAddress(h.seller)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/listings/1/cancel", map[string]string{"caller": hexAddress(h.seller)})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestEscrowEndpoints(t *testing.T) {
	h := newTestHarness(t)
	account := testAddress(0x20)

	rec := h.do(t, http.MethodGet, "/escrow/NHB/"+hexAddress(account), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balance":"0"`)

	rec = h.do(t, http.MethodPost, "/escrow/withdraw", map[string]string{
		"caller": hexAddress(account),
		"rail":   escrow.NativeRail,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeeEndpoints(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/fees/update", map[string]any{
		"caller": hexAddress(testAddress(0x55)),
		"feeBps": 300,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/fees/update", map[string]any{
		"caller": hexAddress(h.feeOwner),
		"feeBps": 10_001,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/fees/update", map[string]any{
		"caller": hexAddress(h.feeOwner),
		"feeBps": 300,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/fees/recipient", map[string]any{
		"caller":    hexAddress(h.feeOwner),
		"recipient": hexAddress(testAddress(0x44)),
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCommitRejectsMalformedHash(t *testing.T) {
	h := newTestHarness(t)
	h.createListing(t, true)
	rec := h.do(t, http.MethodPost, "/listings/1/commit", map[string]string{
		"bidder":     hexAddress(testAddress(0x20)),
		"commitment": "0x1234",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForError(t *testing.T) {
	require.Equal(t, http.StatusNotFound, statusForError(market.ErrListingNotFound))
	require.Equal(t, http.StatusForbidden, statusForError(market.ErrNotSeller))
	require.Equal(t, http.StatusConflict, statusForError(market.ErrBidTooSoon))
	require.Equal(t, http.StatusConflict, statusForError(escrow.ErrNoFundsToWithdraw))
	require.Equal(t, http.StatusBadRequest, statusForError(market.ErrAuctionTooShort))
	require.Equal(t, http.StatusInternalServerError, statusForError(errors.New("backend unavailable")))
}
