package profile

// Store exposes profile retrieval for HTTP handlers and the pipeline.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
	Default() Profile
}

// MemoryStore implements Store with an in-memory slice, suitable for MVP.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns the configured profiles.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by identifier.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Profile{}, false
}

// Default returns the profile used when a request names none.
func (s *MemoryStore) Default() Profile {
	if len(s.items) == 0 {
		return Profile{}
	}
	return s.items[0]
}
