package auctionrunner

import (
	"sync"
	"time"
)

// maxBidsPerSlot bounds the inbox queue so a misbehaving or oversized
// bidder set cannot grow a single slot without limit (§4.6: "bounded bid
// queue").
const maxBidsPerSlot = 256

// slot holds one in-flight auction: the Auction entity, its accumulating
// bids, and the completion signal that lets Close return early once every
// target bidder has answered. Each slot has its own mutex; the inbox map
// only needs a lock long enough to insert/remove/look up a slot, per §4.6's
// "shorter-lived lock sufficient only for insert/remove/lookup".
type slot struct {
	mu   sync.Mutex
	auc  Auction
	bids []Bid
	seen map[string]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

func newSlot(auc Auction) *slot {
	return &slot{
		auc:  auc,
		seen: make(map[string]struct{}, len(auc.TargetBidders)),
		done: make(chan struct{}),
	}
}

// submit appends a bid if the slot is OPEN, the bidder was invited, and the
// bidder has not already submitted. Returns the sentinel error to surface to
// the caller otherwise. If this bid completes the target set, the
// completion signal fires.
func (s *slot) submit(b Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.auc.State != StateOpen {
		return ErrWindowClosed
	}
	if _, invited := s.auc.TargetBidders[b.Bidder]; !invited {
		return ErrNotInvited
	}
	if _, dup := s.seen[b.Bidder]; dup {
		return ErrDuplicateBid
	}
	if len(s.bids) >= maxBidsPerSlot {
		return ErrWindowClosed
	}

	s.seen[b.Bidder] = struct{}{}
	s.bids = append(s.bids, b)

	if len(s.seen) >= len(s.auc.TargetBidders) {
		s.signalDone()
	}
	return nil
}

// signalDone fires the completion channel at most once. Caller must hold s.mu.
func (s *slot) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// awaitClose blocks until the completion signal fires or deadline elapses,
// whichever comes first, then transitions the slot OPEN -> CLOSED and
// returns the accumulated bids. Absence of an early completion signal never
// extends the window (§4.6: "this is an optimization").
func (s *slot) awaitClose(deadline time.Time) []Bid {
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auc.State == StateOpen {
		s.auc.State = StateClosed
	}
	s.signalDone()
	out := make([]Bid, len(s.bids))
	copy(out, s.bids)
	return out
}

func (s *slot) markSettled() {
	s.mu.Lock()
	s.auc.State = StateSettled
	s.mu.Unlock()
}

// inbox is the process-wide auction_id -> slot mapping.
type inbox struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func newInbox() *inbox {
	return &inbox{slots: make(map[string]*slot)}
}

// open inserts a new OPEN slot, failing with ErrConflict if auction_id is
// already registered.
func (ib *inbox) open(auc Auction) (*slot, error) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if _, exists := ib.slots[auc.AuctionID]; exists {
		return nil, ErrConflict
	}
	s := newSlot(auc)
	ib.slots[auc.AuctionID] = s
	return s, nil
}

// lookup finds a slot by auction_id without removing it.
func (ib *inbox) lookup(auctionID string) (*slot, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	s, ok := ib.slots[auctionID]
	return s, ok
}

// remove deletes a slot from the mapping, e.g. once settled.
func (ib *inbox) remove(auctionID string) {
	ib.mu.Lock()
	delete(ib.slots, auctionID)
	ib.mu.Unlock()
}
