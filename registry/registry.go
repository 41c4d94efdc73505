// Package registry tracks live connections by a locally unique uint32
// identifier. Identifiers come from a monotonic counter rather than the size of
// the registry, so removals never cause two connections to share an id.
package registry

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultQuarantine is how long a removed identifier stays ineligible for reuse
// after the counter wraps around.
const DefaultQuarantine = time.Minute

// NewEntryFunc builds the entry stored under a freshly allocated id.
type NewEntryFunc[T any] func(id uint32) T

// Registry is a concurrent map from connection id to entry. Insertions and
// removals are serialized by a single lock; lookups share a read lock.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[uint32]T
	last    uint32
	retired *cache.Cache
}

// New creates an empty Registry whose removed ids are quarantined for the
// given duration. A non-positive quarantine selects DefaultQuarantine.
//
// Parameters:
//   - quarantine: How long a removed id is withheld from reuse
//
// Returns:
//   - A new *Registry
func New[T any](quarantine time.Duration) *Registry[T] {
	if quarantine <= 0 {
		quarantine = DefaultQuarantine
	}

	return &Registry[T]{
		entries: make(map[uint32]T),
		retired: cache.New(quarantine, 2*quarantine),
	}
}

// Insert allocates the next free id, builds the entry with newEntry and stores
// it, all under the registry lock. Id 0 is never allocated. After the counter
// wraps, ids that are still registered or quarantined are skipped.
//
// Parameters:
//   - newEntry: Builds the entry for the allocated id; must not call back into the registry
//
// Returns:
//   - The allocated id
//   - The stored entry
func (r *Registry[T]) Insert(newEntry NewEntryFunc[T]) (uint32, T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID()
	entry := newEntry(id)
	r.entries[id] = entry
	return id, entry
}

// nextID advances the counter to an id that is neither live nor retired.
// Caller must hold r.mu for writing.
func (r *Registry[T]) nextID() uint32 {
	for {
		r.last++
		if r.last == 0 {
			continue
		}

		if _, live := r.entries[r.last]; live {
			continue
		}

		if _, retired := r.retired.Get(retiredKey(r.last)); retired {
			continue
		}

		return r.last
	}
}

// Remove deletes the entry for id and quarantines the id. Removing an unknown
// id is a no-op.
//
// Parameters:
//   - id: The id to remove
//
// Returns:
//   - The removed entry and true, or the zero value and false if id was not registered
func (r *Registry[T]) Remove(id uint32) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return entry, false
	}

	delete(r.entries, id)
	r.retired.SetDefault(retiredKey(id), struct{}{})
	return entry, true
}

// Get returns the entry registered under id.
//
// Parameters:
//   - id: The id to look up
//
// Returns:
//   - The entry and true if found, or the zero value and false otherwise
func (r *Registry[T]) Get(id uint32) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Has reports whether id is registered.
func (r *Registry[T]) Has(id uint32) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered ids in ascending order.
func (r *Registry[T]) IDs() []uint32 {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns the registered entries ordered by id. The slice is a copy;
// entries may be removed concurrently after it is taken.
func (r *Registry[T]) Snapshot() []T {
	ids := r.IDs()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if entry, ok := r.entries[id]; ok {
			out = append(out, entry)
		}
	}

	return out
}

// Range calls f for each entry of a snapshot, in id order, until f returns
// false. f may call Remove.
//
// Parameters:
//   - f: Called with each id and entry; return false to stop
func (r *Registry[T]) Range(f func(id uint32, entry T) bool) {
	ids := r.IDs()
	for _, id := range ids {
		entry, ok := r.Get(id)
		if !ok {
			continue
		}

		if !f(id, entry) {
			return
		}
	}
}

// Retired reports whether id is currently quarantined.
func (r *Registry[T]) Retired(id uint32) bool {
	_, ok := r.retired.Get(retiredKey(id))
	return ok
}

func retiredKey(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
