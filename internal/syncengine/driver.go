// Package syncengine implements the sync driver: the heart of the core.
// It drains the operation queue obeying dependency and error rules,
// reconciles responses into the cache, and rewrites temp ids to
// server-assigned ids.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/inkwell-app/notesync-core/internal/cache"
	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/inkwell-app/notesync-core/internal/httpclient"
	"github.com/inkwell-app/notesync-core/internal/model"
	"github.com/inkwell-app/notesync-core/internal/queue"
	"github.com/inkwell-app/notesync-core/internal/store"
	"github.com/rs/zerolog"
)

// MaxRetries is the per-operation retry cap. Config.MaxRetries overrides
// this default when constructing a Driver.
const MaxRetries = 3

// DrainResult is drain()'s return value.
type DrainResult struct {
	Successful int
	Failed     int
	Remaining  int
}

// Driver is the sync engine's core component.
type Driver struct {
	queue  *queue.Queue
	cache  *cache.Repository
	http   *httpclient.Client
	kv     store.KV
	events *eventbus.Bus
	log    zerolog.Logger

	maxRetries int

	mu         sync.Mutex
	isSyncing  bool
}

// New builds a Driver wired to its collaborators.
func New(q *queue.Queue, c *cache.Repository, hc *httpclient.Client, kv store.KV, events *eventbus.Bus, maxRetries int, log zerolog.Logger) *Driver {
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	return &Driver{
		queue:      q,
		cache:      c,
		http:       hc,
		kv:         kv,
		events:     events,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "syncengine").Logger(),
	}
}

// IsSyncing reports whether a drain is currently in flight, for the status
// control plane.
func (d *Driver) IsSyncing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isSyncing
}

// Drain is the entry point: idempotent if already running, and guarded by
// isSyncing against re-entry. Nested re-entry from the post-CREATE
// restart is permitted and does not go through this guard — it calls
// drainOnce directly while the guard is already held.
func (d *Driver) Drain(ctx context.Context) (DrainResult, error) {
	d.mu.Lock()
	if d.isSyncing {
		d.mu.Unlock()
		d.log.Debug().Msg("drain already running, triggerSync is a no-op")
		return DrainResult{}, nil
	}
	d.isSyncing = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.isSyncing = false
		d.mu.Unlock()
	}()

	result, err := d.drainOnce(ctx)
	if err == nil && result.Successful > 0 {
		now := time.Now().UTC().Format(time.RFC3339)
		if setErr := d.kv.Set(store.SlotLastSync, now); setErr != nil {
			d.log.Error().Err(setErr).Msg("failed to persist last_sync")
		}
	}
	d.events.Publish(eventbus.TopicSyncTick, eventbus.SyncTickEvent{
		Successful: result.Successful,
		Failed:     result.Failed,
		Remaining:  result.Remaining,
	})
	return result, err
}

// drainOnce runs a single pass over the queue, except that a successful
// CREATE note aborts the remaining loop and recurses, whose counters are
// added to this call's before returning.
func (d *Driver) drainOnce(ctx context.Context) (DrainResult, error) {
	ops, err := d.queue.GetAll()
	if err != nil {
		return DrainResult{}, fmt.Errorf("syncengine: snapshot queue: %w", err)
	}
	if len(ops) == 0 {
		return DrainResult{}, nil
	}

	// Step 2: pending-creates set P.
	pendingCreates := make(map[string]bool)
	for _, op := range ops {
		if op.Type == model.OpCreateNote && op.ResourceType == model.ResourceNote {
			pendingCreates[op.ResourceID] = true
		}
	}

	failedCreates := make(map[string]bool) // per-drain set F
	var result DrainResult

	for _, op := range ops {
		targetID := op.TargetNoteID()

		// Step 3a: orphan detection.
		if model.IsOfflineID(targetID) && !pendingCreates[targetID] {
			d.log.Warn().Str("op", op.ID).Str("noteId", targetID).Msg("dropping orphaned operation")
			if err := d.queue.RemoveByID(op.ID); err != nil {
				return result, fmt.Errorf("syncengine: remove orphan: %w", err)
			}
			result.Failed++
			continue
		}

		// Step 3b: dependency skip. Left queued; counted in Remaining via
		// the post-loop queue count below, not incremented here.
		if op.Type != model.OpCreateNote && model.IsOfflineID(targetID) && failedCreates[targetID] {
			continue
		}

		// Step 3c: retry cap.
		if op.RetryCount >= d.maxRetries {
			d.log.Warn().Str("op", op.ID).Int("retryCount", op.RetryCount).Msg("dropping operation at retry cap")
			if err := d.queue.RemoveByID(op.ID); err != nil {
				return result, fmt.Errorf("syncengine: remove at retry cap: %w", err)
			}
			result.Failed++
			continue
		}

		// Step 3d: dispatch.
		dispatchErr := d.dispatch(ctx, op)
		if dispatchErr == nil {
			if err := d.queue.RemoveByID(op.ID); err != nil {
				return result, fmt.Errorf("syncengine: dequeue success: %w", err)
			}
			result.Successful++

			// Step 3e: post-CREATE rewrite already applied inside the
			// handler; abort this loop and recurse.
			if op.Type == model.OpCreateNote {
				sub, err := d.drainOnce(ctx)
				if err != nil {
					return result, err
				}
				result.Successful += sub.Successful
				result.Failed += sub.Failed
				result.Remaining = sub.Remaining
				return result, nil
			}
			continue
		}

		// Step 3f: error classification.
		d.classifyAndApply(op, dispatchErr, failedCreates, &result)
	}

	remaining, err := d.queue.Len()
	if err != nil {
		return result, fmt.Errorf("syncengine: count remaining: %w", err)
	}
	result.Remaining = remaining
	return result, nil
}

// classifyAndApply records one op's dispatch failure as Failed — every op
// dispatched this round that didn't succeed failed this attempt, whether
// or not it stays queued for a future retry. Remaining is derived
// separately, from the queue's actual occupancy once the round finishes,
// so an op dropped at the retry cap or on a 404 is Failed but not
// Remaining, while one still queued for retry is both.
func (d *Driver) classifyAndApply(op model.QueuedOperation, err error, failedCreates map[string]bool, result *DrainResult) {
	var httpErr httpclient.HTTPError
	switch {
	case errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound:
		d.log.Info().Str("op", op.ID).Msg("404: target gone, dropping")
		if rmErr := d.queue.RemoveByID(op.ID); rmErr != nil {
			d.log.Error().Err(rmErr).Msg("failed to remove 404'd operation")
		}
		result.Failed++

	case errors.As(err, &httpErr) && httpErr.Status == http.StatusUnprocessableEntity:
		d.log.Warn().Str("op", op.ID).Bytes("body", httpErr.Body).Msg("422: validation, retrying")
		if bumpErr := d.queue.BumpRetryWithError(op.ID, err.Error()); bumpErr != nil {
			d.log.Error().Err(bumpErr).Msg("failed to bump retry")
		}
		result.Failed++

	default:
		d.log.Warn().Str("op", op.ID).Err(err).Msg("operation failed, retrying")
		if bumpErr := d.queue.BumpRetryWithError(op.ID, err.Error()); bumpErr != nil {
			d.log.Error().Err(bumpErr).Msg("failed to bump retry")
		}
		if op.Type == model.OpCreateNote {
			failedCreates[op.ResourceID] = true
		}
		result.Failed++
	}
}

// isNumericID reports whether id looks like a server-assigned integer id
// rather than a pre-sync temp id ("temp-...", "temp_...").
func isNumericID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

