package api

import "time"

// ErrorKind enumerates the error codes the core surfaces (§7).
type ErrorKind string

const (
	ErrSchemaInvalid       ErrorKind = "schema_invalid"
	ErrSignatureInvalid    ErrorKind = "signature_invalid"
	ErrTimestampOutOfRange ErrorKind = "timestamp_out_of_range"
	ErrNonceDuplicate      ErrorKind = "nonce_duplicate"
	ErrUnknownAuction      ErrorKind = "unknown_auction"
	ErrWindowClosed        ErrorKind = "window_closed"
	ErrNotInvited          ErrorKind = "not_invited"
	ErrDuplicateBid        ErrorKind = "duplicate_bid"
	ErrConflict            ErrorKind = "conflict"
	ErrTerminalState       ErrorKind = "terminal_state"
	ErrStorageUnavailable  ErrorKind = "storage_unavailable"
	ErrInternal            ErrorKind = "internal"
)

// statusFor maps an error kind to its HTTP status per §6's status-code
// contract: 400 schema, 401 transport-security, 404 unknown auctions on the
// event surface, 500 internal/storage. Everything else that reaches a
// handler successfully (including no_bid/in_progress) is 200.
func statusFor(kind ErrorKind) int {
	switch kind {
	case ErrSchemaInvalid:
		return 400
	case ErrSignatureInvalid, ErrTimestampOutOfRange, ErrNonceDuplicate:
		return 401
	case ErrUnknownAuction:
		return 404
	case ErrWindowClosed, ErrNotInvited, ErrDuplicateBid, ErrConflict, ErrTerminalState:
		return 400
	case ErrStorageUnavailable, ErrInternal:
		return 500
	default:
		return 500
	}
}

// errorBody is the JSON shape written for every application-level failure.
type errorBody struct {
	Error struct {
		Code    ErrorKind `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
}

// ContextRequestWire is the wire shape of a platform's ContextRequest (§3).
// The signed payload is this struct with "signature" removed, matching
// BidResponseWire and EventWire's flattened auth fields rather than a
// nested "auth" object, so codec.CanonicalWithoutField's single top-level
// field strip covers all three without a nested-field variant.
type ContextRequestWire struct {
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id"`
	PlatformID string    `json:"platform_id"`
	QueryText  string    `json:"query_text"`
	Locale     string    `json:"locale,omitempty"`
	Geo        string    `json:"geo,omitempty"`
	Pools      []string  `json:"pools,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Nonce      string    `json:"nonce"`
	Signature  string    `json:"signature,omitempty"`
}

// BidResponseWire is the wire shape of a bidder's signed BidResponse (§3).
type BidResponseWire struct {
	AuctionID    string    `json:"auction_id"`
	Bidder       string    `json:"bidder"`
	Price        string    `json:"price"`
	PricingModel string    `json:"pricing_model"`
	Creative     string    `json:"creative,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Nonce        string    `json:"nonce"`
	Signature    string    `json:"signature,omitempty"`
}

// EventWire is the wire shape of an event callback (§4.7). The data model
// in §3 lists only {auction_id, serve_token, nonce, timestamp, signature}
// for event callbacks, silent on whose key verifies the signature; we add
// an explicit "bidder" field (mirroring BidResponse's own bidder field) so
// signature verification can proceed against a known registered key, in the
// literal step order §4.7 specifies (transport-security checks before the
// ledger lookup), rather than inferring the principal from the record's
// stored winner after the fact.
type EventWire struct {
	AuctionID  string    `json:"auction_id"`
	Bidder     string    `json:"bidder"`
	ServeToken string    `json:"serve_token"`
	Timestamp  time.Time `json:"timestamp"`
	Nonce      string    `json:"nonce"`
	Signature  string    `json:"signature,omitempty"`
}

// WeaveRequestWire is the wire shape of a recommendation request (§4.8).
// Unsigned: the coordinator is reached through a platform's own trusted
// backend channel, not directly by bidders, and §4.8 specifies no auth
// fields for it.
type WeaveRequestWire struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Query     string `json:"query"`
}

// auctionResultWire is the JSON response for a settled auction (§3
// AuctionResult), shared by /aip/context and, embedded, by the Weave
// recommendation payload.
type auctionResultWire struct {
	AuctionID  string   `json:"auction_id"`
	NoBid      bool     `json:"no_bid,omitempty"`
	Winner     *bidWire `json:"winner,omitempty"`
	ServeToken string   `json:"serve_token,omitempty"`
	Persisted  *bool    `json:"persisted,omitempty"`
}

type bidWire struct {
	Bidder       string `json:"bidder"`
	Price        string `json:"price"`
	PricingModel string `json:"pricing_model"`
	Creative     string `json:"creative,omitempty"`
}
