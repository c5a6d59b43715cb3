package evaluator

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// idempotencyEntry is one node of the cache's LRU doubly-linked list.
type idempotencyEntry struct {
	key     uint64
	outcome Outcome
	prev    *idempotencyEntry
	next    *idempotencyEntry
}

// idempotencyCache is a small bounded LRU keyed on a non-cryptographic
// hash of (agent, tool, action, chain, params). It exists to absorb
// duplicate requests — an HTTP client retrying after a timeout, for
// instance — without minting a second pending approval for what is
// really the same call. It is a performance/idempotence aid only: the
// decision log and ledger remain the source of truth, and a cache miss
// never changes the verdict, only whether a fresh approval is minted.
type idempotencyCache struct {
	mu      sync.Mutex
	entries map[uint64]*idempotencyEntry
	head    *idempotencyEntry
	tail    *idempotencyEntry
	maxSize int
}

func newIdempotencyCache(maxSize int) *idempotencyCache {
	return &idempotencyCache{
		entries: make(map[uint64]*idempotencyEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *idempotencyCache) get(key uint64) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Outcome{}, false
	}
	c.moveToHeadLocked(e)
	return e.outcome, true
}

func (c *idempotencyCache) put(key uint64, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.outcome = outcome
		c.moveToHeadLocked(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}
	e := &idempotencyEntry{key: key, outcome: outcome}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

func (c *idempotencyCache) moveToHeadLocked(e *idempotencyEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *idempotencyCache) pushHeadLocked(e *idempotencyEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *idempotencyCache) unlinkLocked(e *idempotencyEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *idempotencyCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeIdempotencyKey hashes the request shape that determines the
// verdict: agent, tool, action, caller chain (order-sensitive) and the
// canonical params JSON.
func computeIdempotencyKey(agentID, tool, action string, chain []string, params map[string]interface{}) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(agentID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(tool)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(action)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strings.Join(chain, ","))
	_, _ = h.Write([]byte{0})
	if len(params) > 0 {
		data, _ := json.Marshal(params)
		_, _ = h.Write(data)
	}
	return h.Sum64()
}
