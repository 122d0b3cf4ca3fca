// Package ledgerfsm implements the ledger finite-state machine and event
// callback processing (§4.7): CREATED -> NO_BID, or CREATED -> SERVED ->
// {CPX_REPORTED | CPC_REPORTED | CPA_REPORTED}, with idempotent
// duplicate-event handling and an ordered event history kept inside the
// record. It sits directly on top of ledgerstore.Store's Put and atomic
// Update, the same way the reference corpus's
// double-entry ledger layers transaction semantics on a single storage
// primitive rather than re-deriving locking itself.
package ledgerfsm

import (
	"encoding/json"
	"time"

	"github.com/rivalapexmediation/auction/internal/auctionrunner"
)

// State is a LedgerRecord's FSM stage.
type State string

const (
	StateCreated     State = "CREATED"
	StateServed      State = "SERVED"
	StateNoBid       State = "NO_BID"
	StateCPXReported State = "CPX_REPORTED"
	StateCPCReported State = "CPC_REPORTED"
	StateCPAReported State = "CPA_REPORTED"
)

// EventType is one of the reportable event-callback kinds.
type EventType string

const (
	EventCPX EventType = "CPX"
	EventCPC EventType = "CPC"
	EventCPA EventType = "CPA"
)

// terminal reports whether a state has no further transitions.
func (s State) terminal() bool {
	switch s {
	case StateNoBid, StateCPXReported, StateCPCReported, StateCPAReported:
		return true
	default:
		return false
	}
}

// nextState returns the state an event transitions SERVED into.
func nextState(e EventType) (State, bool) {
	switch e {
	case EventCPX:
		return StateCPXReported, true
	case EventCPC:
		return StateCPCReported, true
	case EventCPA:
		return StateCPAReported, true
	default:
		return "", false
	}
}

// Event is one entry in a record's ordered history.
type Event struct {
	Type      EventType `json:"type"`
	Nonce     string    `json:"nonce"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the persisted per-auction ledger entity (§3 LedgerRecord).
// History is the ordered event record the idempotency check scans directly
// — no separate applied-set is persisted, so the FSM's duplicate-detection
// survives encode/decode round trips without a shadow data structure to
// keep in sync.
type Record struct {
	AuctionID  string             `json:"auction_id"`
	State      State              `json:"state"`
	ServeToken string             `json:"serve_token,omitempty"`
	Winner     *auctionrunner.Bid `json:"winner,omitempty"`
	NoBid      bool               `json:"no_bid"`
	History    []Event            `json:"history,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (r *Record) hasApplied(e EventType, nonce string) bool {
	for _, ev := range r.History {
		if ev.Type == e && ev.Nonce == nonce {
			return true
		}
	}
	return false
}

func (r *Record) appendEvent(e EventType, nonce string, ts time.Time) {
	r.History = append(r.History, Event{Type: e, Nonce: nonce, Timestamp: ts})
}

func encodeRecord(r *Record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
