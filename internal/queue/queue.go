// Package queue implements the operation queue: the append-only, ordered
// log of pending mutations, dequeue, retry bookkeeping, and the temp-id
// rewrite used after a CREATE note round-trips.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-app/notesync-core/internal/model"
	"github.com/inkwell-app/notesync-core/internal/store"
)

// Queue is the durable, insertion-ordered log of QueuedOperations, backed
// by a single KV slot (sync_queue). The queue exclusively owns its
// operations; the offline API appends to it and rewrites or purges ops
// that have not synced yet (Update, RemoveWhere), and the driver consumes
// it.
type Queue struct {
	mu sync.Mutex
	kv store.KV
}

// New returns a Queue backed by kv.
func New(kv store.KV) *Queue {
	return &Queue{kv: kv}
}

func (q *Queue) load() ([]model.QueuedOperation, error) {
	var ops []model.QueuedOperation
	ok, err := q.kv.Get(store.SlotSyncQueue, &ops)
	if err != nil {
		return nil, fmt.Errorf("queue: load: %w", err)
	}
	if !ok {
		return []model.QueuedOperation{}, nil
	}
	return ops, nil
}

func (q *Queue) save(ops []model.QueuedOperation) error {
	if err := q.kv.Set(store.SlotSyncQueue, ops); err != nil {
		return fmt.Errorf("queue: save: %w", err)
	}
	return nil
}

// GetAll returns a snapshot of every queued operation in insertion order.
func (q *Queue) GetAll() ([]model.QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Len reports how many operations are currently queued, for the "pending
// count" display slot and the status control plane.
func (q *Queue) Len() (int, error) {
	ops, err := q.GetAll()
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

// Enqueue appends op, assigning a fresh unique id and retryCount=0, and
// returns the assigned id.
func (q *Queue) Enqueue(op model.QueuedOperation) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load()
	if err != nil {
		return "", err
	}

	op.ID = uuid.NewString()
	op.RetryCount = 0
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	ops = append(ops, op)

	if err := q.save(ops); err != nil {
		return "", err
	}
	return op.ID, nil
}

// RemoveByID drops the operation with id, if present.
func (q *Queue) RemoveByID(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.load()
	if err != nil {
		return err
	}
	out := ops[:0]
	for _, op := range ops {
		if op.ID != id {
			out = append(out, op)
		}
	}
	return q.save(out)
}

// RemoveWhere drops every operation for which match returns true, and
// returns how many were removed. Used by the local-only-delete
// short-circuit and by the offline API's purge of a still-pending
// CREATE_CHECKLIST when its item is deleted.
func (q *Queue) RemoveWhere(match func(model.QueuedOperation) bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.load()
	if err != nil {
		return 0, err
	}
	out := ops[:0]
	removed := 0
	for _, op := range ops {
		if match(op) {
			removed++
			continue
		}
		out = append(out, op)
	}
	if err := q.save(out); err != nil {
		return 0, err
	}
	return removed, nil
}

// BumpRetryWithError increments retryCount and records message on the
// operation with id.
func (q *Queue) BumpRetryWithError(id, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.load()
	if err != nil {
		return err
	}
	for i := range ops {
		if ops[i].ID == id {
			ops[i].RetryCount++
			ops[i].Error = message
			return q.save(ops)
		}
	}
	return nil
}

// Update locates the operation with id and applies mutate to it in place,
// persisting the result. Returns false if no such operation exists. Used
// to rewrite a still-pending CREATE_CHECKLIST payload in place when an
// edit targets an item that hasn't synced yet.
func (q *Queue) Update(id string, mutate func(*model.QueuedOperation)) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.load()
	if err != nil {
		return false, err
	}
	for i := range ops {
		if ops[i].ID == id {
			mutate(&ops[i])
			return true, q.save(ops)
		}
	}
	return false, nil
}

// RewriteNoteID retargets every operation referencing oldID (as
// ResourceId on note-typed operations, and as Payload.NoteID on any
// operation) to newID, in a single persistence round-trip. Concurrent Enqueue calls
// block on q.mu until this completes, so they queue behind the rewrite as
// required.
func (q *Queue) RewriteNoteID(oldID, newID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.load()
	if err != nil {
		return err
	}
	for i := range ops {
		if ops[i].ResourceType == model.ResourceNote && ops[i].ResourceID == oldID {
			ops[i].ResourceID = newID
		}
		ops[i].Payload.RewriteNoteID(oldID, newID)
	}
	return q.save(ops)
}
