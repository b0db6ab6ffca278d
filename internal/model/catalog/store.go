package catalog

// Store exposes genre and difficulty lookups.
type Store interface {
	Genres() []Genre
	Difficulties() []Difficulty
	FindGenre(id string) (Genre, bool)
	FindDifficulty(id string) (Difficulty, bool)
}

// MemoryStore implements Store over fixed slices.
type MemoryStore struct {
	genres       []Genre
	difficulties []Difficulty
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied tables.
func NewMemoryStore(genres []Genre, difficulties []Difficulty) *MemoryStore {
	return &MemoryStore{
		genres:       append([]Genre(nil), genres...),
		difficulties: append([]Difficulty(nil), difficulties...),
	}
}

// NewDefaultStore returns the built-in catalog.
func NewDefaultStore() *MemoryStore {
	return NewMemoryStore(Seed(), SeedDifficulties())
}

// Genres returns the genre list in presentation order.
func (s *MemoryStore) Genres() []Genre {
	return append([]Genre(nil), s.genres...)
}

// Difficulties returns the difficulty list in presentation order.
func (s *MemoryStore) Difficulties() []Difficulty {
	return append([]Difficulty(nil), s.difficulties...)
}

// FindGenre looks up a genre by identifier.
func (s *MemoryStore) FindGenre(id string) (Genre, bool) {
	for _, item := range s.genres {
		if item.ID == id {
			return item, true
		}
	}
	return Genre{}, false
}

// FindDifficulty looks up a difficulty by identifier.
func (s *MemoryStore) FindDifficulty(id string) (Difficulty, bool) {
	for _, item := range s.difficulties {
		if item.ID == id {
			return item, true
		}
	}
	return Difficulty{}, false
}
