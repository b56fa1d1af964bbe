package banlist

import "maps"

// Registry maps user IDs to ban records. It is not safe for concurrent use;
// each request works on its own freshly fetched copy.
type Registry struct {
	users map[string]BanRecord
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]BanRecord)}
}

// Insert adds or replaces the record for userID.
func (r *Registry) Insert(userID string, record BanRecord) {
	r.users[userID] = record
}

// Remove deletes userID and returns the removed record.
func (r *Registry) Remove(userID string) (BanRecord, bool) {
	record, ok := r.users[userID]
	if ok {
		delete(r.users, userID)
	}
	return record, ok
}

// Lookup returns the record for userID.
func (r *Registry) Lookup(userID string) (BanRecord, bool) {
	record, ok := r.users[userID]
	return record, ok
}

// List returns a copy of all records keyed by user ID.
func (r *Registry) List() map[string]BanRecord {
	return maps.Clone(r.users)
}

// Len returns the number of banned users.
func (r *Registry) Len() int {
	return len(r.users)
}
