package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/classify"
	"github.com/rivalapexmediation/auction/internal/codec"
	"github.com/rivalapexmediation/auction/internal/ledgerfsm"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
	"github.com/rivalapexmediation/auction/internal/registry"
	"github.com/rivalapexmediation/auction/internal/security"
)

type testHarness struct {
	handlers   *Handlers
	platformPk ed25519.PublicKey
	platformSk ed25519.PrivateKey
	bidderPk   ed25519.PublicKey
	bidderSk   ed25519.PrivateKey
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	platformPub, platformPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	bidderPub, bidderPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	reg, err := registry.New([]*registry.Bidder{
		{Name: "alpha", Endpoint: "https://alpha.example/bid", PublicKey: bidderPub, Timeout: time.Second, Pools: map[string]struct{}{"retail": {}}},
	})
	require.NoError(t, err)

	platforms, err := registry.NewPlatforms([]registry.PlatformKey{
		{PlatformID: "acme", PublicKey: platformPub},
	})
	require.NoError(t, err)

	health := registry.NewHealth(5, time.Minute)
	classifier := classify.New(classify.KeywordRules{"retail": {"shoes"}})

	store := ledgerstore.NewMemory()
	fsm := ledgerfsm.New(store, nil)
	runner := auctionrunner.New(nil, fsm)
	nonces := security.NewNonceStore(store, 60*time.Second)

	h := NewHandlers(reg, platforms, health, classifier, runner, fsm, nonces, nil, 500*time.Millisecond)

	return &testHarness{
		handlers:   h,
		platformPk: platformPub,
		platformSk: platformPriv,
		bidderPk:   bidderPub,
		bidderSk:   bidderPriv,
	}
}

func sign(t *testing.T, payload interface{}, sk ed25519.PrivateKey) string {
	t.Helper()
	sig, err := security.Sign(payload, sk)
	require.NoError(t, err)
	return sig
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestContext_HappyPath_NoBids_StillReturnsResult(t *testing.T) {
	h := newTestHarness(t)

	req := ContextRequestWire{
		RequestID:  "ctx_1",
		SessionID:  "sess_1",
		PlatformID: "acme",
		QueryText:  "buy shoes",
		Timestamp:  time.Now().UTC(),
		Nonce:      "n1",
	}
	req.Signature = sign(t, &req, h.platformSk)

	rec := postJSON(t, h.handlers.Context, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result auctionResultWire
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "ctx_1", result.AuctionID)
	assert.True(t, result.NoBid)
}

func TestContext_RejectsBadSignature(t *testing.T) {
	h := newTestHarness(t)

	req := ContextRequestWire{
		RequestID:  "ctx_2",
		PlatformID: "acme",
		QueryText:  "buy shoes",
		Timestamp:  time.Now().UTC(),
		Nonce:      "n2",
		Signature:  "bm90LWEtcmVhbC1zaWduYXR1cmU=",
	}

	rec := postJSON(t, h.handlers.Context, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrSignatureInvalid, body.Error.Code)
}

func TestContext_RejectsDuplicateNonce(t *testing.T) {
	h := newTestHarness(t)

	mk := func(id, nonce string) ContextRequestWire {
		r := ContextRequestWire{
			RequestID:  id,
			PlatformID: "acme",
			QueryText:  "buy shoes",
			Timestamp:  time.Now().UTC(),
			Nonce:      nonce,
		}
		r.Signature = sign(t, &r, h.platformSk)
		return r
	}

	first := mk("ctx_3", "dup-nonce")
	rec := postJSON(t, h.handlers.Context, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := mk("ctx_4", "dup-nonce")
	rec = postJSON(t, h.handlers.Context, second)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrNonceDuplicate, body.Error.Code)
}

func TestBidResponse_UnknownAuctionRejected(t *testing.T) {
	h := newTestHarness(t)

	bid := BidResponseWire{
		AuctionID:    "no-such-auction",
		Bidder:       "alpha",
		Price:        "1.50",
		PricingModel: "CPC",
		Timestamp:    time.Now().UTC(),
		Nonce:        "bid-n1",
	}
	bid.Signature = sign(t, &bid, h.bidderSk)

	rec := postJSON(t, h.handlers.BidResponse, bid)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrUnknownAuction, body.Error.Code)
}

func TestBidResponse_InvalidPriceSchemaInvalid(t *testing.T) {
	h := newTestHarness(t)

	bid := BidResponseWire{
		AuctionID:    "ctx_x",
		Bidder:       "alpha",
		Price:        "not-a-number",
		PricingModel: "CPC",
		Timestamp:    time.Now().UTC(),
		Nonce:        "bid-n2",
	}
	bid.Signature = sign(t, &bid, h.bidderSk)

	rec := postJSON(t, h.handlers.BidResponse, bid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvent_UnknownEventTypeRejected(t *testing.T) {
	_, ok := eventTypeFromPath("bogus")
	assert.False(t, ok)

	t1, ok := eventTypeFromPath("cpa")
	assert.True(t, ok)
	assert.Equal(t, ledgerfsm.EventCPA, t1)
}

func TestHealthCheck(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.handlers.HealthCheck(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCanonicalWithoutField_IgnoresSignatureValue(t *testing.T) {
	req := ContextRequestWire{RequestID: "a", PlatformID: "b", Nonce: "c", Timestamp: time.Now().UTC()}
	a, err := codec.CanonicalWithoutField(&req, "signature")
	require.NoError(t, err)
	req.Signature = "anything"
	b, err := codec.CanonicalWithoutField(&req, "signature")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
