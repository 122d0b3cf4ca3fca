// Package registry holds the immutable, startup-loaded bidder table (§4.4)
// and a small health tracker used to skip circuit-broken bidders when
// deriving target_bidders. The record shape is adapted from the reference
// corpus's internal/bidders.Bidder data (name, endpoint, timeout, pools)
// generalized from an outbound-adapter interface to a pure registry entry,
// since in this protocol bidders call the server rather than the reverse.
package registry

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// Bidder is an immutable registry record loaded once at startup.
type Bidder struct {
	Name      string
	Endpoint  string
	PublicKey ed25519.PublicKey
	Timeout   time.Duration
	Pools     map[string]struct{}
}

// ParsePublicKeyPEM decodes a PEM-encoded Ed25519 public key (PKIX/SubjectPublicKeyInfo).
func ParsePublicKeyPEM(pemText string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("registry: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("registry: parse public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("registry: public key is not Ed25519")
	}
	return edPub, nil
}

// Registry is the immutable, in-memory bidder table. It is read-only after
// New and requires no locking on lookups, per §5's shared-resources model.
type Registry struct {
	byName map[string]*Bidder
	byPool map[string]map[string]*Bidder // pool -> bidder name -> Bidder
}

// New builds a Registry from already-parsed Bidder records. Duplicate
// names are rejected — names must be unique per §3.
func New(bidders []*Bidder) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Bidder, len(bidders)),
		byPool: make(map[string]map[string]*Bidder),
	}
	for _, b := range bidders {
		if b.Name == "" {
			return nil, fmt.Errorf("registry: bidder with empty name")
		}
		if _, dup := r.byName[b.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate bidder name %q", b.Name)
		}
		r.byName[b.Name] = b
		for pool := range b.Pools {
			if r.byPool[pool] == nil {
				r.byPool[pool] = make(map[string]*Bidder)
			}
			r.byPool[pool][b.Name] = b
		}
	}
	return r, nil
}

// LookupByName returns the bidder with the given name, if registered.
func (r *Registry) LookupByName(name string) (*Bidder, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// PublicKey returns the registered public key for name, if any.
func (r *Registry) PublicKey(name string) (ed25519.PublicKey, bool) {
	b, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return b.PublicKey, true
}

// LookupByPools returns the union of bidders subscribed to any of the given
// pools. The result set is deterministic in composition (a set) but callers
// needing stable ordering should sort by name themselves — selection (§4.6.1)
// already does.
func (r *Registry) LookupByPools(pools []string) []*Bidder {
	seen := make(map[string]*Bidder)
	for _, pool := range pools {
		for name, b := range r.byPool[pool] {
			seen[name] = b
		}
	}
	out := make([]*Bidder, 0, len(seen))
	for _, b := range seen {
		out = append(out, b)
	}
	return out
}

// Len returns the number of registered bidders.
func (r *Registry) Len() int { return len(r.byName) }
