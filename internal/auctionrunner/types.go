// Package auctionrunner implements the hard core of the server: the
// time-bounded auction window that rendezvous-matches a platform's open
// request with asynchronously arriving, independently-HTTP'd bidder
// responses (§4.6). The fan-out-and-collect shape — launch concurrent work,
// race it against a deadline, sort and pick a winner — is grounded on
// bidding.AuctionEngine's RunAuction/selectWinner, generalized here from an
// engine that dials adapters itself to one that only waits on an inbox
// other goroutines push into.
package auctionrunner

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PricingModel is a bid's pricing model. Selection priority is
// CPA > CPC > CPX (§4.6.1).
type PricingModel string

const (
	CPA PricingModel = "CPA"
	CPC PricingModel = "CPC"
	CPX PricingModel = "CPX"
)

// pricingRank returns the selection priority of a model; lower ranks first.
func pricingRank(m PricingModel) int {
	switch m {
	case CPA:
		return 0
	case CPC:
		return 1
	case CPX:
		return 2
	default:
		return 3
	}
}

// State is an auction slot's lifecycle stage. Monotonic OPEN -> CLOSED ->
// SETTLED.
type State string

const (
	StateOpen    State = "OPEN"
	StateClosed  State = "CLOSED"
	StateSettled State = "SETTLED"
)

// Auction is the transient runtime entity keyed by auction_id (= request_id).
type Auction struct {
	AuctionID      string
	OpenedAt       time.Time
	WindowDeadline time.Time
	TargetPools    []string
	TargetBidders  map[string]struct{}
	State          State
}

// Bid is a validated, signature-verified bid accepted into an auction's
// inbox. Price uses a fixed-point decimal to keep selection comparisons
// exact.
type Bid struct {
	AuctionID    string
	Bidder       string
	Price        decimal.Decimal
	PricingModel PricingModel
	Creative     []byte
	ReceivedAt   time.Time
}

// Result is the outcome produced on close.
type Result struct {
	AuctionID  string
	Winner     *Bid
	ServeToken string
	NoBid      bool
	Persisted  bool
}

// Sentinel errors for the error-kind envelope described in §7.
var (
	ErrUnknownAuction = errors.New("auctionrunner: unknown auction")
	ErrWindowClosed   = errors.New("auctionrunner: window closed")
	ErrConflict       = errors.New("auctionrunner: duplicate auction id")
	ErrDuplicateBid   = errors.New("auctionrunner: duplicate bid from bidder")
	ErrNotInvited     = errors.New("auctionrunner: bidder not in target set")
)
