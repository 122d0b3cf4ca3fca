// Package security implements the AIP transport-security layer: Ed25519
// signing/verification over canonical JSON, a timestamp skew gate, and a
// TTL-keyed nonce store with atomic test-and-set semantics. The signing
// primitives mirror the key-handling style of the reference corpus's
// configuration signer (raw Ed25519 keys, base64 at rest, PEM on the wire)
// adapted to per-principal verification instead of a single service key.
package security

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rivalapexmediation/auction/internal/codec"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
)

// DefaultMaxClockSkew is the default tolerance for |now - ts|.
const DefaultMaxClockSkew = 500 * time.Millisecond

// DefaultNonceTTL is the default lifetime of a reserved nonce.
const DefaultNonceTTL = 60 * time.Second

// Sign produces an Ed25519 signature over the canonical bytes of payload
// with the "signature" field excluded, base64-encoded for transport.
func Sign(payload interface{}, priv ed25519.PrivateKey) (string, error) {
	msg, err := codec.CanonicalWithoutField(payload, "signature")
	if err != nil {
		return "", fmt.Errorf("security: canonicalize for signing: %w", err)
	}
	sig := ed25519.Sign(priv, msg)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 Ed25519 signature over the canonical bytes of
// payload (signature field excluded) against pub. It never panics on
// malformed input — malformed signatures/keys simply fail to verify.
func Verify(payload interface{}, signatureB64 string, pub ed25519.PublicKey) bool {
	msg, err := codec.CanonicalWithoutField(payload, "signature")
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// CheckTimestamp reports whether ts is within maxSkew of now. A non-positive
// maxSkew falls back to DefaultMaxClockSkew.
func CheckTimestamp(ts, now time.Time, maxSkew time.Duration) bool {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxClockSkew
	}
	delta := now.Sub(ts)
	if delta < 0 {
		delta = -delta
	}
	return delta <= maxSkew
}

// NonceResult is the outcome of a nonce reservation attempt.
type NonceResult struct {
	OK        bool
	Duplicate bool
	Expired   bool
}

// NonceStore provides atomic test-and-set nonce reservation backed by the
// ledger storage capability (§4.3), so the "redis" backend gives true
// cross-process replay protection while "in_memory" suffices for a single
// process.
type NonceStore struct {
	store ledgerstore.Store
	ttl   time.Duration
}

// NewNonceStore constructs a nonce store over the given storage capability.
// A non-positive ttl falls back to DefaultNonceTTL.
func NewNonceStore(store ledgerstore.Store, ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &NonceStore{store: store, ttl: ttl}
}

type nonceEntry struct {
	Principal string    `json:"principal"`
	Nonce     string     `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Reserve attempts to atomically claim (principal, nonce) at time ts. A
// nonce already observed within its TTL horizon yields Duplicate=true; a
// timestamp older than the TTL horizon yields Expired=true (checked before
// the store round-trip, so no stale entry is ever written for it).
func (n *NonceStore) Reserve(ctx context.Context, principal, nonce string, ts time.Time) (NonceResult, error) {
	now := time.Now().UTC()
	if now.Sub(ts) > n.ttl {
		return NonceResult{Expired: true}, nil
	}

	key := nonceKey(principal, nonce)
	claimed := false
	_, err := n.store.Update(ctx, key, func(cur []byte, exists bool) ([]byte, error) {
		if exists {
			var e nonceEntry
			if decodeErr := decodeNonceEntry(cur, &e); decodeErr == nil && now.Before(e.ExpiresAt) {
				return cur, nil // leave untouched; caller observes !claimed
			}
		}
		claimed = true
		e := nonceEntry{Principal: principal, Nonce: nonce, ExpiresAt: now.Add(n.ttl)}
		return encodeNonceEntry(e)
	})
	if err != nil {
		return NonceResult{}, fmt.Errorf("security: nonce reservation failed: %w", err)
	}
	if !claimed {
		return NonceResult{Duplicate: true}, nil
	}
	return NonceResult{OK: true}, nil
}

func nonceKey(principal, nonce string) string {
	return "nonce:" + principal + ":" + nonce
}
