package model

import "time"

// EventType names a catalog lifecycle transition.
type EventType string

const (
	// EventPublished fires on the first insert of an identity, including a
	// key republished after withdrawal (that starts a fresh lifecycle).
	EventPublished EventType = "published"
	// EventUpdated fires when an existing identity is replaced with
	// changed content. Replaying identical content fires nothing.
	EventUpdated EventType = "updated"
	// EventWithdrawn fires when an identity is removed, directly or by a
	// catalog replace that drops its key.
	EventWithdrawn EventType = "withdrawn"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventPublished, EventUpdated, EventWithdrawn:
		return true
	}
	return false
}

// CatalogEvent describes one applied catalog transition. Events for a
// single provider are ordered by Seq; consumers use them to mirror the
// registry without polling.
type CatalogEvent struct {
	Type     EventType      `json:"type"`
	Provider ProviderPubkey `json:"provider_pubkey"`
	Key      OfferingKey    `json:"offering_key"`
	// Offering carries the post-transition record; nil for withdrawals.
	Offering *Offering `json:"offering,omitempty"`
	Seq      uint64    `json:"seq"`
	At       time.Time `json:"at"`
}

// ID returns the identity the event applies to.
func (e CatalogEvent) ID() OfferingID {
	return OfferingID{Provider: e.Provider, Key: e.Key}
}
