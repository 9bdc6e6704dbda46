// Package registry holds the current generation of servable bookmarklet
// sources.
//
// A generation is the complete source set produced by one build cycle. The
// build pipeline only ever submits full replacement sets; request handlers
// capture one immutable snapshot and work against it for the rest of the
// request, so no locks guard the read path.
package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source is one servable bookmarklet script. Immutable after creation.
type Source struct {
	// Filename is the asset's base name, used as the index display name.
	Filename string
	// Script is the body served verbatim at /file.
	Script string
	// Hash is the protected name the script is addressed by.
	Hash string
}

// Generation is an atomically installed source set. Lookups are exact-match
// by hash.
type Generation struct {
	Seq     uint64
	Created time.Time
	sources []Source
	byHash  map[string]Source
}

// Sources returns the generation's sources in install order.
func (g *Generation) Sources() []Source {
	return g.sources
}

// Lookup finds a source by its exact hash.
func (g *Generation) Lookup(hash string) (Source, bool) {
	src, ok := g.byHash[hash]
	return src, ok
}

// Event announces an installed generation to subscribers.
type Event struct {
	Seq       uint64
	Count     int
	Timestamp time.Time
}

// Registry swaps whole generations atomically. The zero snapshot is an empty
// generation, so reads are valid before the first install.
type Registry struct {
	current     atomic.Pointer[Generation]
	seq         atomic.Uint64
	mu          sync.Mutex
	subscribers []chan Event
}

// New creates a registry holding an empty initial generation.
func New() *Registry {
	r := &Registry{}
	r.current.Store(&Generation{
		Created: time.Now(),
		byHash:  map[string]Source{},
	})
	return r
}

// Install replaces the current generation with sources in one atomic swap. A
// reader observes either the previous complete generation or the new one,
// never a mix.
func (r *Registry) Install(sources []Source) *Generation {
	gen := &Generation{
		Seq:     r.seq.Add(1),
		Created: time.Now(),
		sources: sources,
		byHash:  make(map[string]Source, len(sources)),
	}
	for _, src := range sources {
		gen.byHash[src.Hash] = src
	}

	r.current.Store(gen)
	r.notify(Event{Seq: gen.Seq, Count: len(sources), Timestamp: gen.Created})

	return gen
}

// Snapshot returns the current generation.
func (r *Registry) Snapshot() *Generation {
	return r.current.Load()
}

// Subscribe returns a channel receiving one event per installed generation.
// Slow subscribers miss events rather than blocking installs.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 8)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, ch)

	return ch
}

func (r *Registry) notify(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
