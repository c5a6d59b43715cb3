// Package policystore provides an in-memory, concurrency-safe
// implementation of policy.Store backed by an atomic snapshot swap.
package policystore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// snapshot is the immutable value installed atomically. Readers take a
// pointer to one and never see a torn or partially-updated world.
type snapshot struct {
	docs    []policy.RuleDocument
	agents  map[string]policy.AgentSpec
	version int64
}

// Store is a lock-free-read, single-writer-at-a-time implementation of
// policy.Store. Reads (LookupAgent, Snapshot, Version) never block on
// Install and vice versa.
type Store struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex // serializes Install calls only
}

// New returns a Store seeded with an empty, version-0 snapshot.
func New() *Store {
	s := &Store{}
	s.current.Store(&snapshot{agents: map[string]policy.AgentSpec{}})
	return s
}

func (s *Store) LookupAgent(id string) (policy.AgentSpec, bool) {
	snap := s.current.Load()
	agent, ok := snap.agents[id]
	return agent, ok
}

func (s *Store) Snapshot() []policy.RuleDocument {
	snap := s.current.Load()
	out := make([]policy.RuleDocument, len(snap.docs))
	copy(out, snap.docs)
	return out
}

func (s *Store) Version() int64 {
	return s.current.Load().version
}

// Install applies the §4.2 replacement rule:
//
//   - docs non-empty: always replaces the prior set.
//   - docs empty and loadErr == nil: replaces the prior set with an
//     empty one (a directory that legitimately has no policy files).
//   - docs empty and loadErr != nil: rejected. The prior set and
//     version are left untouched and Install returns loadErr, so a
//     transient filesystem hiccup or a directory full of malformed
//     files never erases a working policy set.
func (s *Store) Install(docs []policy.RuleDocument, loadErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(docs) == 0 && loadErr != nil {
		return fmt.Errorf("refusing to install empty policy set: %w", loadErr)
	}

	agents := make(map[string]policy.AgentSpec, len(docs)*2)
	for _, doc := range docs {
		for _, agent := range doc.Agents {
			agents[agent.ID] = agent
		}
	}

	prev := s.current.Load()
	next := &snapshot{
		docs:    append([]policy.RuleDocument(nil), docs...),
		agents:  agents,
		version: prev.version + 1,
	}
	s.current.Store(next)
	return nil
}
