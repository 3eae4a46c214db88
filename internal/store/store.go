package store

import "time"

// Snapshot is the JSON representation of one resource's state.
//
// A Snapshot is produced whenever any of the resource's value, busy flag or
// error changes. It is decoupled from the generic resource types so that
// the server can encode it without knowing the value type.
type Snapshot struct {
	// Name is the resource name.
	Name string `json:"name"`

	// URL is the upstream URL the resource is fetched from.
	URL string `json:"url"`

	// Labels contains key-value metadata for grouping.
	Labels map[string]string `json:"labels,omitempty"`

	// Value is the last successfully fetched value. nil until the first
	// successful refresh.
	Value any `json:"value"`

	// Fetching is true while a refresh is in flight.
	Fetching bool `json:"fetching"`

	// Error is the message of the most recent failed refresh, or nil.
	Error *string `json:"error"`

	// RefreshedAt is when Value was last written. Zero before the first
	// successful refresh.
	RefreshedAt time.Time `json:"refreshed_at"`

	// ChangedAt is when this snapshot was produced.
	ChangedAt time.Time `json:"changed_at"`
}

// Store defines storage and change subscription for snapshots.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores a snapshot, replacing any previous one with the same
	// Name, and notifies all subscribers.
	Update(snap Snapshot)

	// Get returns the snapshot with the given name.
	Get(name string) (Snapshot, bool)

	// GetAll returns all snapshots ordered by name.
	GetAll() []Snapshot

	// Subscribe returns a channel that receives every update.
	// Caller must call Unsubscribe when done.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes its channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
