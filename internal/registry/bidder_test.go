package registry

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPublicKeyPEM(t *testing.T) (string, ed25519.PublicKey) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), pub
}

func TestParsePublicKeyPEM_RoundTrip(t *testing.T) {
	pemText, want := mustPublicKeyPEM(t)
	got, err := ParsePublicKeyPEM(pemText)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParsePublicKeyPEM_Invalid(t *testing.T) {
	_, err := ParsePublicKeyPEM("not a pem block")
	assert.Error(t, err)
}

func newTestBidder(t *testing.T, name string, pools ...string) *Bidder {
	t.Helper()
	_, pub := mustPublicKeyPEM(t)
	poolSet := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		poolSet[p] = struct{}{}
	}
	return &Bidder{Name: name, Endpoint: "https://" + name + ".example/bid", PublicKey: pub, Timeout: 200 * time.Millisecond, Pools: poolSet}
}

func TestRegistry_LookupByPoolsUnion(t *testing.T) {
	alpha := newTestBidder(t, "alpha", "retail")
	beta := newTestBidder(t, "beta", "retail", "travel")
	gamma := newTestBidder(t, "gamma", "travel")

	reg, err := New([]*Bidder{alpha, beta, gamma})
	require.NoError(t, err)

	retail := reg.LookupByPools([]string{"retail"})
	names := map[string]bool{}
	for _, b := range retail {
		names[b.Name] = true
	}
	assert.Equal(t, map[string]bool{"alpha": true, "beta": true}, names)

	both := reg.LookupByPools([]string{"retail", "travel"})
	assert.Len(t, both, 3)
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	a1 := newTestBidder(t, "dup")
	a2 := newTestBidder(t, "dup")
	_, err := New([]*Bidder{a1, a2})
	assert.Error(t, err)
}

func TestRegistry_LookupByNameAndPublicKey(t *testing.T) {
	alpha := newTestBidder(t, "alpha", "retail")
	reg, err := New([]*Bidder{alpha})
	require.NoError(t, err)

	b, ok := reg.LookupByName("alpha")
	require.True(t, ok)
	assert.Equal(t, alpha.Endpoint, b.Endpoint)

	pub, ok := reg.PublicKey("alpha")
	require.True(t, ok)
	assert.Equal(t, alpha.PublicKey, pub)

	_, ok = reg.LookupByName("unknown")
	assert.False(t, ok)
}

func TestHealth_OpensAfterConsecutiveMisses(t *testing.T) {
	h := NewHealth(3, 50*time.Millisecond)
	assert.True(t, h.Allow("alpha"))

	h.RecordMiss("alpha")
	h.RecordMiss("alpha")
	assert.True(t, h.Allow("alpha"))
	h.RecordMiss("alpha")
	assert.False(t, h.Allow("alpha"))
	assert.Equal(t, StateOpen, h.State("alpha"))
}

func TestHealth_HalfOpenAfterResetTimeout(t *testing.T) {
	h := NewHealth(1, 20*time.Millisecond)
	h.RecordMiss("alpha")
	assert.False(t, h.Allow("alpha"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, h.Allow("alpha"))
	assert.Equal(t, StateHalfOpen, h.State("alpha"))
}

func TestHealth_WinResetsFailures(t *testing.T) {
	h := NewHealth(2, time.Second)
	h.RecordMiss("alpha")
	h.RecordWin("alpha")
	h.RecordMiss("alpha")
	assert.True(t, h.Allow("alpha"))
	assert.Equal(t, StateClosed, h.State("alpha"))
}
