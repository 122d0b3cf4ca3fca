// Package api implements the HTTP surface described in §6: /aip/context
// (alias /context), /aip/bid-response, /events/{cpx,cpc,cpa},
// /v1/weave/recommendations, and /health. Handlers only translate between
// wire JSON and the core packages (security, classify, auctionrunner,
// ledgerfsm, weave) — no business logic lives here, matching the
// reference corpus's Handlers struct, which is itself a thin dispatch layer
// over AuctionEngine/WaterfallManager.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/classify"
	"github.com/rivalapexmediation/auction/internal/ledgerfsm"
	"github.com/rivalapexmediation/auction/internal/registry"
	"github.com/rivalapexmediation/auction/internal/security"
	"github.com/rivalapexmediation/auction/internal/weave"
)

// Handlers wires together the core packages behind the HTTP surface.
type Handlers struct {
	registry   *registry.Registry
	platforms  *registry.Platforms
	health     *registry.Health
	classifier *classify.Classifier
	runner     *auctionrunner.Runner
	fsm        *ledgerfsm.FSM
	nonces     *security.NonceStore
	weave      *weave.Coordinator
	maxSkew    time.Duration
}

// NewHandlers builds the dispatch layer. weaveCoord may be nil if the
// recommendation surface is disabled.
func NewHandlers(
	reg *registry.Registry,
	platforms *registry.Platforms,
	health *registry.Health,
	classifier *classify.Classifier,
	runner *auctionrunner.Runner,
	fsm *ledgerfsm.FSM,
	nonces *security.NonceStore,
	weaveCoord *weave.Coordinator,
	maxSkew time.Duration,
) *Handlers {
	return &Handlers{
		registry:   reg,
		platforms:  platforms,
		health:     health,
		classifier: classifier,
		runner:     runner,
		fsm:        fsm,
		nonces:     nonces,
		weave:      weaveCoord,
		maxSkew:    maxSkew,
	}
}

// HealthCheck is the liveness probe (§6 GET /health).
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Context handles POST /aip/context (alias /context): a platform submits a
// ContextRequest; the response is an AuctionResult or {no_bid:true} (§4.6
// Open sequence).
func (h *Handlers) Context(w http.ResponseWriter, r *http.Request) {
	var req ContextRequestWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, ErrSchemaInvalid, "invalid JSON body")
		return
	}
	if req.RequestID == "" || req.PlatformID == "" || req.Nonce == "" {
		respondErr(w, ErrSchemaInvalid, "missing required fields")
		return
	}

	pub, ok := h.platforms.PublicKey(req.PlatformID)
	if !ok || !security.Verify(&req, req.Signature, pub) {
		respondErr(w, ErrSignatureInvalid, "signature verification failed")
		return
	}
	if !security.CheckTimestamp(req.Timestamp, time.Now().UTC(), h.maxSkew) {
		respondErr(w, ErrTimestampOutOfRange, "timestamp outside allowed clock skew")
		return
	}
	nr, err := h.nonces.Reserve(r.Context(), req.PlatformID, req.Nonce, req.Timestamp)
	if err != nil {
		respondErr(w, ErrStorageUnavailable, "nonce reservation failed")
		return
	}
	if nr.Duplicate {
		respondErr(w, ErrNonceDuplicate, "nonce already observed")
		return
	}
	if nr.Expired {
		respondErr(w, ErrTimestampOutOfRange, "nonce timestamp outside TTL horizon")
		return
	}

	pools := h.classifier.Classify(req.QueryText, req.Pools)
	targets := h.targetBidders(pools)

	result, err := h.runner.Open(r.Context(), auctionrunner.OpenRequest{
		AuctionID:     req.RequestID,
		TargetPools:   pools,
		TargetBidders: targets,
		ContextReq:    req,
	})
	if err != nil {
		if err == auctionrunner.ErrConflict {
			respondErr(w, ErrConflict, "duplicate auction id")
			return
		}
		log.WithError(err).WithField("auction_id", req.RequestID).Error("api: open auction failed")
		respondErr(w, ErrInternal, "failed to open auction")
		return
	}
	h.recordInviteOutcomes(targets, result)

	respondJSON(w, http.StatusOK, resultToWire(result))
}

// targetBidders resolves the pools a request was classified into down to a
// target-bidder set, skipping bidders whose circuit is currently open
// (§4.4/§4.6; skipping is an efficiency hint only, never a correctness
// requirement — see internal/registry/health.go).
func (h *Handlers) targetBidders(pools []string) map[string]struct{} {
	targets := make(map[string]struct{})
	for _, b := range h.registry.LookupByPools(pools) {
		if h.health == nil || h.health.Allow(b.Name) {
			targets[b.Name] = struct{}{}
		}
	}
	return targets
}

// recordInviteOutcomes scores every invited bidder's participation in the
// just-closed auction: the winner (if any) as a win, every other invited
// bidder as a miss, since none of them returned the winning bid before the
// window closed — whether they bid and lost, bid late, or never responded
// is immaterial to the circuit breaker's efficiency hint (§4.6/§4.4).
func (h *Handlers) recordInviteOutcomes(targets map[string]struct{}, result auctionrunner.Result) {
	if h.health == nil {
		return
	}
	winner := ""
	if result.Winner != nil {
		winner = result.Winner.Bidder
		h.health.RecordWin(winner)
	}
	for name := range targets {
		if name != winner {
			h.health.RecordMiss(name)
		}
	}
}

// BidResponse handles POST /aip/bid-response: a bidder submits a signed
// bid into a live auction (§4.6 Bid submission path).
func (h *Handlers) BidResponse(w http.ResponseWriter, r *http.Request) {
	var req BidResponseWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, ErrSchemaInvalid, "invalid JSON body")
		return
	}
	if req.AuctionID == "" || req.Bidder == "" || req.Nonce == "" {
		respondErr(w, ErrSchemaInvalid, "missing required fields")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		respondErr(w, ErrSchemaInvalid, "price must be a non-negative decimal")
		return
	}
	model := auctionrunner.PricingModel(req.PricingModel)
	if model != auctionrunner.CPA && model != auctionrunner.CPC && model != auctionrunner.CPX {
		respondErr(w, ErrSchemaInvalid, "pricing_model must be CPA, CPC, or CPX")
		return
	}

	pub, ok := h.registry.PublicKey(req.Bidder)
	if !ok || !security.Verify(&req, req.Signature, pub) {
		respondErr(w, ErrSignatureInvalid, "signature verification failed")
		return
	}
	if !security.CheckTimestamp(req.Timestamp, time.Now().UTC(), h.maxSkew) {
		respondErr(w, ErrTimestampOutOfRange, "timestamp outside allowed clock skew")
		return
	}
	nr, err := h.nonces.Reserve(r.Context(), req.Bidder, req.Nonce, req.Timestamp)
	if err != nil {
		respondErr(w, ErrStorageUnavailable, "nonce reservation failed")
		return
	}
	if nr.Duplicate {
		respondErr(w, ErrNonceDuplicate, "nonce already observed")
		return
	}
	if nr.Expired {
		respondErr(w, ErrTimestampOutOfRange, "nonce timestamp outside TTL horizon")
		return
	}

	bid := auctionrunner.Bid{
		AuctionID:    req.AuctionID,
		Bidder:       req.Bidder,
		Price:        price,
		PricingModel: model,
		Creative:     []byte(req.Creative),
	}
	if err := h.runner.Bid(r.Context(), bid); err != nil {
		switch err {
		case auctionrunner.ErrUnknownAuction:
			respondErr(w, ErrUnknownAuction, "no such auction")
		case auctionrunner.ErrWindowClosed:
			respondErr(w, ErrWindowClosed, "auction window has closed")
		case auctionrunner.ErrNotInvited:
			respondErr(w, ErrNotInvited, "bidder not invited to this auction")
		case auctionrunner.ErrDuplicateBid:
			respondErr(w, ErrDuplicateBid, "bidder already submitted a bid")
		default:
			log.WithError(err).WithField("auction_id", req.AuctionID).Error("api: bid submission failed")
			respondErr(w, ErrInternal, "bid submission failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted", "auction_id": req.AuctionID})
}

// eventTypeFromPath maps the {cpx,cpc,cpa} path variable to a
// ledgerfsm.EventType, accepting the all-lowercase or all-uppercase literal.
func eventTypeFromPath(v string) (ledgerfsm.EventType, bool) {
	switch v {
	case "cpx", "CPX":
		return ledgerfsm.EventCPX, true
	case "cpc", "CPC":
		return ledgerfsm.EventCPC, true
	case "cpa", "CPA":
		return ledgerfsm.EventCPA, true
	default:
		return "", false
	}
}

// Event handles POST /events/{cpx|cpc|cpa}: a signed event callback that
// advances the ledger FSM (§4.7).
func (h *Handlers) Event(w http.ResponseWriter, r *http.Request) {
	eventType, ok := eventTypeFromPath(mux.Vars(r)["type"])
	if !ok {
		respondErr(w, ErrSchemaInvalid, "unknown event type")
		return
	}

	var req EventWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, ErrSchemaInvalid, "invalid JSON body")
		return
	}
	if req.AuctionID == "" || req.Bidder == "" || req.ServeToken == "" || req.Nonce == "" {
		respondErr(w, ErrSchemaInvalid, "missing required fields")
		return
	}

	pub, ok := h.registry.PublicKey(req.Bidder)
	if !ok || !security.Verify(&req, req.Signature, pub) {
		respondErr(w, ErrSignatureInvalid, "signature verification failed")
		return
	}
	if !security.CheckTimestamp(req.Timestamp, time.Now().UTC(), h.maxSkew) {
		respondErr(w, ErrTimestampOutOfRange, "timestamp outside allowed clock skew")
		return
	}
	nr, err := h.nonces.Reserve(r.Context(), req.Bidder, req.Nonce, req.Timestamp)
	if err != nil {
		respondErr(w, ErrStorageUnavailable, "nonce reservation failed")
		return
	}
	if nr.Duplicate {
		respondErr(w, ErrNonceDuplicate, "nonce already observed")
		return
	}
	if nr.Expired {
		respondErr(w, ErrTimestampOutOfRange, "nonce timestamp outside TTL horizon")
		return
	}

	_, err = h.fsm.ApplyEvent(r.Context(), req.AuctionID, req.ServeToken, eventType, req.Nonce, req.Timestamp)
	if err != nil {
		switch err {
		case ledgerfsm.ErrNoSuchAuction:
			respondErr(w, ErrUnknownAuction, "no such auction or serve_token mismatch")
		case ledgerfsm.ErrTerminalState:
			respondErr(w, ErrTerminalState, "auction has already reached a terminal state")
		default:
			log.WithError(err).WithField("auction_id", req.AuctionID).Error("api: event apply failed")
			respondErr(w, ErrStorageUnavailable, "event processing failed, retry")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// WeaveRecommendation handles POST /v1/weave/recommendations: the
// cache-first get_or_create surface (§4.8).
func (h *Handlers) WeaveRecommendation(w http.ResponseWriter, r *http.Request) {
	if h.weave == nil {
		respondErr(w, ErrInternal, "recommendation coordinator disabled")
		return
	}
	var req WeaveRequestWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, ErrSchemaInvalid, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.MessageID == "" {
		respondErr(w, ErrSchemaInvalid, "missing required fields")
		return
	}

	outcome, err := h.weave.GetOrCreate(r.Context(), weave.Request{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Query:     req.Query,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"session_id": req.SessionID, "message_id": req.MessageID}).
			Error("api: weave get_or_create failed")
		respondErr(w, ErrStorageUnavailable, "recommendation lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, weaveOutcomeToWire(outcome))
}

func weaveOutcomeToWire(o weave.Outcome) map[string]any {
	switch o.Status {
	case weave.StatusInProgress:
		return map[string]any{
			"status":         "in_progress",
			"retry_after_ms": o.RetryAfter.Milliseconds(),
		}
	case weave.StatusFailed:
		return map[string]any{
			"status": "failed",
			"error":  o.Recommendation.Error,
		}
	default:
		body := map[string]any{
			"status":            "completed",
			"weave_content":     o.Recommendation.WeaveContent,
			"serve_token":       o.Recommendation.ServeToken,
			"creative_metadata": o.Recommendation.CreativeMetadata,
		}
		if o.Recommendation.AuctionResult != nil {
			body["auction_result"] = resultToWire(*o.Recommendation.AuctionResult)
		}
		return body
	}
}

func resultToWire(result auctionrunner.Result) auctionResultWire {
	out := auctionResultWire{
		AuctionID:  result.AuctionID,
		NoBid:      result.NoBid,
		ServeToken: result.ServeToken,
	}
	if !result.NoBid {
		p := result.Persisted
		out.Persisted = &p
	}
	if result.Winner != nil {
		out.Winner = &bidWire{
			Bidder:       result.Winner.Bidder,
			Price:        result.Winner.Price.String(),
			PricingModel: string(result.Winner.PricingModel),
			Creative:     string(result.Winner.Creative),
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondErr(w http.ResponseWriter, kind ErrorKind, message string) {
	var body errorBody
	body.Error.Code = kind
	body.Error.Message = message
	respondJSON(w, statusFor(kind), body)
}
