package registry

import (
	"crypto/ed25519"
	"fmt"
)

// Platforms is the immutable, read-only table of platform principals
// allowed to POST ContextRequests, keyed by platform_id. It mirrors
// Registry's shape but is loaded from the server document (§6) rather than
// bidders.yaml, since platforms are the server's own trusted callers, not
// bidders discovered through the mediation config.
type Platforms struct {
	byID map[string]ed25519.PublicKey
}

// PlatformKey is a parsed (platform_id, public_key) pair ready for
// registration.
type PlatformKey struct {
	PlatformID string
	PublicKey  ed25519.PublicKey
}

// NewPlatforms builds a Platforms table from parsed keys.
func NewPlatforms(keys []PlatformKey) (*Platforms, error) {
	p := &Platforms{byID: make(map[string]ed25519.PublicKey, len(keys))}
	for _, k := range keys {
		if k.PlatformID == "" {
			return nil, fmt.Errorf("registry: platform with empty id")
		}
		if _, dup := p.byID[k.PlatformID]; dup {
			return nil, fmt.Errorf("registry: duplicate platform id %q", k.PlatformID)
		}
		p.byID[k.PlatformID] = k.PublicKey
	}
	return p, nil
}

// PublicKey returns the registered key for a platform id.
func (p *Platforms) PublicKey(platformID string) (ed25519.PublicKey, bool) {
	k, ok := p.byID[platformID]
	return k, ok
}
