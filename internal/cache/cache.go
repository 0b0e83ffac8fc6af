// Package cache implements the local notes cache: the set of notes indexed
// by id, with the merge rule ReplaceAll needs to preserve local edits when
// a server listing arrives.
package cache

import (
	"fmt"
	"sync"

	"github.com/inkwell-app/notesync-core/internal/model"
	"github.com/inkwell-app/notesync-core/internal/store"
)

// Repository is the durable set of cached notes, backed by a single KV
// slot (notes_cache). All mutating methods persist synchronously, so the
// cache is always readable as the post-mutation state.
type Repository struct {
	mu sync.Mutex
	kv store.KV
}

// New returns a Repository backed by kv.
func New(kv store.KV) *Repository {
	return &Repository{kv: kv}
}

func (r *Repository) load() ([]model.CachedNote, error) {
	var notes []model.CachedNote
	ok, err := r.kv.Get(store.SlotNotesCache, &notes)
	if err != nil {
		return nil, fmt.Errorf("cache: load: %w", err)
	}
	if !ok {
		return []model.CachedNote{}, nil
	}
	return notes, nil
}

func (r *Repository) save(notes []model.CachedNote) error {
	if err := r.kv.Set(store.SlotNotesCache, notes); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	return nil
}

// List returns every cached note, in no particular order for non-pinned
// entries.
func (r *Repository) List() ([]model.CachedNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// GetByID returns the cached note with id, if any.
func (r *Repository) GetByID(id string) (model.CachedNote, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes, err := r.load()
	if err != nil {
		return model.CachedNote{}, false, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, true, nil
		}
	}
	return model.CachedNote{}, false, nil
}

// Upsert inserts note, or replaces the existing entry with the same id
// (exactly one entry per id at any time).
func (r *Repository) Upsert(note model.CachedNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes, err := r.load()
	if err != nil {
		return err
	}
	replaced := false
	for i, n := range notes {
		if n.ID == note.ID {
			notes[i] = note
			replaced = true
			break
		}
	}
	if !replaced {
		notes = append(notes, note)
	}
	return r.save(notes)
}

// Patch applies delta to the note with id, if present. Returns false if no
// such note exists.
func (r *Repository) Patch(id string, delta func(*model.CachedNote)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes, err := r.load()
	if err != nil {
		return false, err
	}
	for i := range notes {
		if notes[i].ID == id {
			delta(&notes[i])
			return true, r.save(notes)
		}
	}
	return false, nil
}

// Remove deletes the note with id from the cache, if present.
func (r *Repository) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	notes, err := r.load()
	if err != nil {
		return err
	}
	out := notes[:0]
	for _, n := range notes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return r.save(out)
}

// ReplaceAll merges a server listing into the cache: every entry with
// LocallyModified=true is preserved untouched; every other entry is
// replaced wholesale by the server list; any locally-created note
// (offline_* id) absent from the server response is prepended.
func (r *Repository) ReplaceAll(serverNotes []model.CachedNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.load()
	if err != nil {
		return err
	}

	serverByID := make(map[string]bool, len(serverNotes))
	for _, n := range serverNotes {
		serverByID[n.ID] = true
	}

	merged := make([]model.CachedNote, 0, len(serverNotes)+len(existing))

	// Prepend locally-created notes absent from the server response.
	for _, n := range existing {
		if model.IsOfflineID(n.ID) && !serverByID[n.ID] {
			merged = append(merged, n)
		}
	}

	// Preserve every locally-modified entry untouched; everything else
	// comes from the server response.
	modifiedByID := make(map[string]model.CachedNote, len(existing))
	for _, n := range existing {
		if n.LocallyModified {
			modifiedByID[n.ID] = n
		}
	}

	for _, n := range serverNotes {
		if local, ok := modifiedByID[n.ID]; ok {
			merged = append(merged, local)
			continue
		}
		merged = append(merged, n)
	}

	return r.save(merged)
}
