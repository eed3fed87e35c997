// Package registry implements the in-memory offering catalog: the
// primary (provider, key) store, the provider grouping, the inverted
// keyword index and the structured filter indexes, together with the
// query planner that picks the most selective access path.
package registry

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"offerdex/pkg/model"
)

// Config carries the registry tuning knobs.
type Config struct {
	// MinTokenLength is the shortest keyword the text index keeps.
	MinTokenLength int `yaml:"min_token_length"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{MinTokenLength: DefaultMinTokenLength}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinTokenLength < 1 {
		return fmt.Errorf("min_token_length must be at least 1, got %d", c.MinTokenLength)
	}
	return nil
}

// Meta is the lifecycle bookkeeping of one stored offering. A key that is
// withdrawn and later republished starts over with fresh Meta; nothing
// survives the withdrawal.
type Meta struct {
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Revision    uint64    `json:"revision"`
}

// entry is one primary-index slot.
type entry struct {
	offering *model.Offering
	meta     Meta
}

// providerCatalog tracks one provider's offering keys in insertion order.
type providerCatalog struct {
	order   []model.OfferingKey
	members map[model.OfferingKey]struct{}
}

func newProviderCatalog() *providerCatalog {
	return &providerCatalog{members: make(map[model.OfferingKey]struct{})}
}

func (pc *providerCatalog) add(key model.OfferingKey) {
	if _, ok := pc.members[key]; ok {
		return
	}
	pc.members[key] = struct{}{}
	pc.order = append(pc.order, key)
}

func (pc *providerCatalog) remove(key model.OfferingKey) {
	if _, ok := pc.members[key]; !ok {
		return
	}
	delete(pc.members, key)
	for i, k := range pc.order {
		if k == key {
			pc.order = append(pc.order[:i], pc.order[i+1:]...)
			break
		}
	}
}

func (pc *providerCatalog) contains(key model.OfferingKey) bool {
	_, ok := pc.members[key]
	return ok
}

// Registry is the owned, shared catalog state. Construct one at service
// start and pass it to every collaborator; it is not a process singleton.
//
// A single RWMutex guards the primary store and all secondary indexes
// together, so readers always observe either the full pre-update or the
// full post-update state and writes to any provider are serialized.
// Offerings handed out by reads are shared and must not be modified.
type Registry struct {
	mu         sync.RWMutex
	primary    map[model.OfferingID]*entry
	byProvider map[model.ProviderPubkey]*providerCatalog
	text       *textIndex
	filters    *filterIndex

	seq uint64
	now func() time.Time
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultMinTokenLength
	}
	return &Registry{
		primary:    make(map[model.OfferingID]*entry),
		byProvider: make(map[model.ProviderPubkey]*providerCatalog),
		text:       newTextIndex(cfg.MinTokenLength),
		filters:    newFilterIndex(),
		now:        time.Now,
	}
}

// event stamps a new catalog event under the write lock.
func (r *Registry) event(t model.EventType, id model.OfferingID, o *model.Offering) model.CatalogEvent {
	r.seq++
	return model.CatalogEvent{
		Type:     t,
		Provider: id.Provider,
		Key:      id.Key,
		Offering: o,
		Seq:      r.seq,
		At:       r.now(),
	}
}

// insertLocked adds a validated record under an identity known to be absent.
func (r *Registry) insertLocked(id model.OfferingID, o *model.Offering) model.CatalogEvent {
	ts := r.now()
	r.primary[id] = &entry{offering: o, meta: Meta{PublishedAt: ts, UpdatedAt: ts, Revision: 1}}

	pc, ok := r.byProvider[id.Provider]
	if !ok {
		pc = newProviderCatalog()
		r.byProvider[id.Provider] = pc
	}
	pc.add(id.Key)

	r.text.Index(id, o)
	r.filters.Insert(id, o)
	return r.event(model.EventPublished, id, o)
}

// updateLocked replaces the record under an identity known to be present
// with changed content.
func (r *Registry) updateLocked(id model.OfferingID, e *entry, o *model.Offering) model.CatalogEvent {
	r.filters.Remove(id, e.offering)
	r.filters.Insert(id, o)
	r.text.Index(id, o)

	e.offering = o
	e.meta.UpdatedAt = r.now()
	e.meta.Revision++
	return r.event(model.EventUpdated, id, o)
}

// withdrawLocked removes the record under an identity known to be present.
func (r *Registry) withdrawLocked(id model.OfferingID, e *entry) model.CatalogEvent {
	r.text.Remove(id)
	r.filters.Remove(id, e.offering)
	delete(r.primary, id)

	if pc, ok := r.byProvider[id.Provider]; ok {
		pc.remove(id.Key)
		if len(pc.members) == 0 {
			delete(r.byProvider, id.Provider)
		}
	}
	return r.event(model.EventWithdrawn, id, nil)
}

// Put inserts the offering if its identity is absent and replaces it in
// place otherwise. Replaying content identical to the stored record
// changes nothing and returns a nil event; otherwise the returned event
// describes the applied transition. Reads issued after Put returns see
// the new state.
func (r *Registry) Put(provider model.ProviderPubkey, o *model.Offering) (*model.CatalogEvent, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil offering", model.ErrValidation)
	}
	id, err := model.NewOfferingID(provider, o.Key)
	if err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	stored := o.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	var ev model.CatalogEvent
	if e, ok := r.primary[id]; ok {
		if e.offering.Equal(stored) {
			return nil, nil
		}
		ev = r.updateLocked(id, e, stored)
	} else {
		ev = r.insertLocked(id, stored)
	}
	return &ev, nil
}

// Update replaces the offering stored under (provider, o.Key), failing
// with model.ErrNotFound when that identity is absent. Content identical
// to the stored record is a no-op with a nil event, like Put.
func (r *Registry) Update(provider model.ProviderPubkey, o *model.Offering) (*model.CatalogEvent, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil offering", model.ErrValidation)
	}
	id, err := model.NewOfferingID(provider, o.Key)
	if err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	stored := o.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.primary[id]
	if !ok {
		return nil, fmt.Errorf("offering %s: %w", id, model.ErrNotFound)
	}
	if e.offering.Equal(stored) {
		return nil, nil
	}
	ev := r.updateLocked(id, e, stored)
	return &ev, nil
}

// Get returns the offering stored under (provider, key). The second
// return is false when the identity is absent; absence is not an error.
func (r *Registry) Get(provider model.ProviderPubkey, key model.OfferingKey) (*model.Offering, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.primary[model.OfferingID{Provider: provider, Key: key}]
	if !ok {
		return nil, false
	}
	return e.offering, true
}

// Meta returns the lifecycle bookkeeping of a stored offering.
func (r *Registry) Meta(provider model.ProviderPubkey, key model.OfferingKey) (Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.primary[model.OfferingID{Provider: provider, Key: key}]
	if !ok {
		return Meta{}, false
	}
	return e.meta, true
}

// Remove withdraws the offering under (provider, key). Removing an absent
// identity is a no-op and returns a nil event.
func (r *Registry) Remove(provider model.ProviderPubkey, key model.OfferingKey) *model.CatalogEvent {
	id := model.OfferingID{Provider: provider, Key: key}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.primary[id]
	if !ok {
		return nil
	}
	ev := r.withdrawLocked(id, e)
	return &ev
}

// RemoveProvider withdraws every offering of the provider, in catalog
// insertion order. An unknown provider is a no-op.
func (r *Registry) RemoveProvider(provider model.ProviderPubkey) []model.CatalogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.byProvider[provider]
	if !ok {
		return nil
	}

	keys := make([]model.OfferingKey, len(pc.order))
	copy(keys, pc.order)

	events := make([]model.CatalogEvent, 0, len(keys))
	for _, key := range keys {
		id := model.OfferingID{Provider: provider, Key: key}
		if e, ok := r.primary[id]; ok {
			events = append(events, r.withdrawLocked(id, e))
		}
	}
	return events
}

// ListByProvider returns the provider's offerings in the order their keys
// first entered the catalog. The returned records are shared.
func (r *Registry) ListByProvider(provider model.ProviderPubkey) []*model.Offering {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pc, ok := r.byProvider[provider]
	if !ok {
		return nil
	}

	out := make([]*model.Offering, 0, len(pc.order))
	for _, key := range pc.order {
		if e, ok := r.primary[model.OfferingID{Provider: provider, Key: key}]; ok {
			out = append(out, e.offering)
		}
	}
	return out
}

// Providers returns every provider with at least one offering, ordered
// by pubkey bytes so repeated calls over the same contents agree.
func (r *Registry) Providers() []model.ProviderPubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ProviderPubkey, 0, len(r.byProvider))
	for p := range r.byProvider {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// ReplaceProviderCatalog swaps the provider's catalog for the given set
// by symmetric difference: keys absent from the new set are withdrawn,
// new keys are inserted, changed records are updated in place, and
// records whose key and content are both unchanged are left untouched so
// no index churn or event occurs for them.
//
// The whole batch is validated before anything is applied; on error the
// registry is unchanged. Withdrawals are emitted first, ordered by key,
// then inserts and updates in the order the batch lists them.
func (r *Registry) ReplaceProviderCatalog(provider model.ProviderPubkey, offerings []*model.Offering) ([]model.CatalogEvent, error) {
	if provider.IsZero() {
		return nil, fmt.Errorf("%w: provider pubkey is zero", model.ErrInvalidIdentity)
	}

	incoming := make(map[model.OfferingKey]*model.Offering, len(offerings))
	ordered := make([]*model.Offering, 0, len(offerings))
	for i, o := range offerings {
		if o == nil {
			return nil, fmt.Errorf("%w: offering %d is nil", model.ErrValidation, i)
		}
		if _, err := model.NewOfferingID(provider, o.Key); err != nil {
			return nil, fmt.Errorf("offering %d: %w", i, err)
		}
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("offering %q: %w", o.Key, err)
		}
		if _, dup := incoming[o.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate offering key %q in catalog", model.ErrValidation, o.Key)
		}
		stored := o.Clone()
		incoming[o.Key] = stored
		ordered = append(ordered, stored)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var events []model.CatalogEvent

	if pc, ok := r.byProvider[provider]; ok {
		var dropped []model.OfferingKey
		for _, key := range pc.order {
			if _, keep := incoming[key]; !keep {
				dropped = append(dropped, key)
			}
		}
		sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
		for _, key := range dropped {
			id := model.OfferingID{Provider: provider, Key: key}
			if e, ok := r.primary[id]; ok {
				events = append(events, r.withdrawLocked(id, e))
			}
		}
	}

	for _, o := range ordered {
		id := model.OfferingID{Provider: provider, Key: o.Key}
		if e, ok := r.primary[id]; ok {
			if e.offering.Equal(o) {
				continue
			}
			events = append(events, r.updateLocked(id, e, o))
		} else {
			events = append(events, r.insertLocked(id, o))
		}
	}
	return events, nil
}

// Rebuild reconstructs the text and filter indexes from the primary
// store. It is a recovery operation; steady-state maintenance is
// incremental and never requires it.
func (r *Registry) Rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.text.Clear()
	r.filters.Clear()
	for id, e := range r.primary {
		r.text.Index(id, e.offering)
		r.filters.Insert(id, e.offering)
	}
}

// Len returns the number of stored offerings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.primary)
}

// ProviderCount returns the number of providers with at least one
// offering.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byProvider)
}

// Stats summarizes the registry contents.
type Stats struct {
	Offerings int    `json:"offerings"`
	Providers int    `json:"providers"`
	Keywords  int    `json:"keywords"`
	LastSeq   uint64 `json:"last_seq"`
}

// Stats returns a consistent snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Offerings: len(r.primary),
		Providers: len(r.byProvider),
		Keywords:  r.text.TokenCount(),
		LastSeq:   r.seq,
	}
}
