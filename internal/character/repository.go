package character

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("character not found")

// Repository is an in-memory character store keyed by id. Ids are creation
// unix timestamps, bumped by one when two characters share a second.
type Repository struct {
	mu         sync.RWMutex
	characters map[int64]Character
	lastID     int64
	now        func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		characters: make(map[int64]Character),
		now:        time.Now,
	}
}

func (r *Repository) List(_ context.Context) []Character {
	r.mu.RLock()
	defer r.mu.RUnlock()

	characters := make([]Character, 0, len(r.characters))
	for _, c := range r.characters {
		characters = append(characters, c)
	}
	sort.Slice(characters, func(i, j int) bool { return characters[i].ID < characters[j].ID })

	return characters
}

func (r *Repository) Get(_ context.Context, id int64) (Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.characters[id]
	if !ok {
		return Character{}, ErrNotFound
	}
	return c, nil
}

func (r *Repository) Create(_ context.Context, input Input) Character {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.now().Unix()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id

	c := Character{ID: id, Name: input.Name, LastName: input.LastName}
	r.characters[id] = c
	return c
}

func (r *Repository) Update(_ context.Context, id int64, input Input) (Character, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.characters[id]; !ok {
		return Character{}, ErrNotFound
	}

	c := Character{ID: id, Name: input.Name, LastName: input.LastName}
	r.characters[id] = c
	return c, nil
}

func (r *Repository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.characters[id]; !ok {
		return ErrNotFound
	}
	delete(r.characters, id)
	return nil
}
