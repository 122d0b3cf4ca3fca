package ledgerstore

import (
	"context"
	"hash/fnv"
	"sync"
)

// stripeCount controls how many independent mutexes the in-memory store
// shards updates across, so unrelated keys (different auction_ids) never
// contend on the same lock.
const stripeCount = 64

// Memory is a process-local, ephemeral Store for development and tests. It
// still serializes per-key updates (striped by key hash) so the same
// atomicity property tests pass uniformly across backends, per §9's
// "Protocol-based storage" design note.
type Memory struct {
	mu      sync.RWMutex
	values  map[string][]byte
	events  map[string][][]byte
	stripes [stripeCount]sync.Mutex
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		events: make(map[string][][]byte),
	}
}

func (m *Memory) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.stripes[h.Sum32()%stripeCount]
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Memory) Update(ctx context.Context, key string, mutate Mutator) ([]byte, error) {
	lock := m.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	cur, exists := m.values[key]
	m.mu.RUnlock()

	next, err := mutate(cur, exists)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// A nil result with no error means "leave the key as-is" — used by
		// mutators that reject an absent key (e.g. ledgerfsm's
		// no-such-auction check) without fabricating a tombstone entry.
		return nil, nil
	}

	m.mu.Lock()
	m.values[key] = next
	m.mu.Unlock()
	return next, nil
}

func (m *Memory) AppendEvent(_ context.Context, key string, event []byte) error {
	lock := m.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(event))
	copy(cp, event)
	m.events[key] = append(m.events[key], cp)
	return nil
}

func (m *Memory) Events(_ context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[key]
	out := make([][]byte, len(evs))
	copy(out, evs)
	return out, nil
}
