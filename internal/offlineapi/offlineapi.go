// Package offlineapi implements the offline API façade: the only surface
// the UI calls. Every mutation writes the cache synchronously to
// its final post-mutation shape and enqueues exactly one operation, so the
// UI never waits on the network to see its own edit. The exceptions:
// createNote may enqueue up to three; deleting a never-synced note purges
// its queued ops instead; editing or deleting a checklist item whose
// CREATE_CHECKLIST is still queued rewrites or purges that op instead.
package offlineapi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-app/notesync-core/internal/cache"
	"github.com/inkwell-app/notesync-core/internal/httpclient"
	"github.com/inkwell-app/notesync-core/internal/model"
	"github.com/inkwell-app/notesync-core/internal/netmonitor"
	"github.com/inkwell-app/notesync-core/internal/queue"
	"github.com/rs/zerolog"
)

// API is the façade the UI layer calls. It never talks to the network
// directly: online reads go through the HTTP client, but every write goes
// through the cache and the queue, letting the sync driver own delivery.
type API struct {
	cache *cache.Repository
	queue *queue.Queue
	http  *httpclient.Client
	net   *netmonitor.Monitor
	log   zerolog.Logger

	// triggerSync is called after every enqueue so an online client
	// attempts delivery immediately rather than waiting for the next
	// timer tick or connectivity edge. Wired to Driver.Drain by the
	// composition root; nil is tolerated (useful in tests).
	triggerSync func()
}

// New builds an API façade.
func New(c *cache.Repository, q *queue.Queue, hc *httpclient.Client, net *netmonitor.Monitor, triggerSync func(), log zerolog.Logger) *API {
	return &API{
		cache:       c,
		queue:       q,
		http:        hc,
		net:         net,
		triggerSync: triggerSync,
		log:         log.With().Str("component", "offlineapi").Logger(),
	}
}

func (a *API) kick() {
	if a.triggerSync != nil {
		a.triggerSync()
	}
}

func newNote(title, content string) model.Note {
	now := time.Now().UTC()
	return model.Note{
		Title:     title,
		Content:   content,
		Color:     model.ColorDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateNoteRequest is createNote's input: title/content plus optional
// local URIs for an attached voice memo or drawing captured at creation
// time (up to three ops fan out from one call).
type CreateNoteRequest struct {
	Title      string
	Content    string
	AudioURI   string
	DrawingURI string
}

// CreateNote mints an offline id, writes the optimistic cache entry, and
// enqueues the CREATE plus up to two attachment ops in order.
func (a *API) CreateNote(req CreateNoteRequest) (model.Note, error) {
	note := newNote(req.Title, req.Content)
	note.ID = model.NewOfflineID(uuid.NewString())
	note.AudioURI = req.AudioURI
	note.DrawingURI = req.DrawingURI

	if err := a.cache.Upsert(model.CachedNote{ID: note.ID, Data: note, LocallyModified: true}); err != nil {
		return model.Note{}, fmt.Errorf("offlineapi: cache optimistic note: %w", err)
	}

	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpCreateNote,
		ResourceType: model.ResourceNote,
		ResourceID:   note.ID,
		Payload:      model.Payload{CreateNote: &model.CreateNotePayload{NoteID: note.ID, Note: note}},
	}); err != nil {
		return model.Note{}, fmt.Errorf("offlineapi: enqueue CREATE: %w", err)
	}

	if req.AudioURI != "" {
		if _, err := a.queue.Enqueue(model.QueuedOperation{
			Type:         model.OpCreateAudio,
			ResourceType: model.ResourceAudio,
			ResourceID:   note.ID,
			Payload: model.Payload{CreateAudio: &model.CreateAudioPayload{
				NoteID: note.ID,
				TempID: model.NewOfflineID(uuid.NewString()),
				URI:    req.AudioURI,
			}},
		}); err != nil {
			return model.Note{}, fmt.Errorf("offlineapi: enqueue CREATE_AUDIO: %w", err)
		}
	}

	if req.DrawingURI != "" {
		if _, err := a.queue.Enqueue(model.QueuedOperation{
			Type:         model.OpCreateDrawing,
			ResourceType: model.ResourceDrawing,
			ResourceID:   note.ID,
			Payload: model.Payload{CreateDrawing: &model.CreateDrawingPayload{
				NoteID: note.ID,
				TempID: model.NewOfflineID(uuid.NewString()),
				URI:    req.DrawingURI,
			}},
		}); err != nil {
			return model.Note{}, fmt.Errorf("offlineapi: enqueue CREATE_DRAWING: %w", err)
		}
	}

	a.kick()
	return note, nil
}

// UpdateNote patches the cache with delta, marks it locally modified, and
// enqueues the UPDATE op.
func (a *API) UpdateNote(noteID string, delta map[string]any) error {
	updated, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		applyDelta(&n.Data, delta)
		n.LocallyModified = true
	})
	if err != nil {
		return fmt.Errorf("offlineapi: patch note: %w", err)
	}
	if !updated {
		return fmt.Errorf("offlineapi: update unknown note %q", noteID)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpUpdateNote,
		ResourceType: model.ResourceNote,
		ResourceID:   noteID,
		Payload:      model.Payload{UpdateNote: &model.UpdateNotePayload{NoteID: noteID, Delta: delta}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue UPDATE: %w", err)
	}
	a.kick()
	return nil
}

func applyDelta(note *model.Note, delta map[string]any) {
	if title, ok := delta["title"].(string); ok {
		note.Title = title
	}
	if content, ok := delta["content"].(string); ok {
		note.Content = content
	}
	if color, ok := delta["color"].(string); ok {
		note.Color = model.Color(color)
	}
	if pinned, ok := delta["isPinned"].(bool); ok {
		note.IsPinned = pinned
	}
	if archived, ok := delta["isArchived"].(bool); ok {
		note.IsArchived = archived
	}
	note.UpdatedAt = time.Now().UTC()
}

// DeleteNote removes the note from the cache immediately. If the id is
// still offline_* (never synced), this is the local-only-delete
// short-circuit: every queued op referencing it is purged and no DELETE
// is enqueued. Otherwise a DELETE op is enqueued for the driver.
func (a *API) DeleteNote(noteID string) error {
	if err := a.cache.Remove(noteID); err != nil {
		return fmt.Errorf("offlineapi: remove note from cache: %w", err)
	}

	if model.IsOfflineID(noteID) {
		if _, err := a.queue.RemoveWhere(func(op model.QueuedOperation) bool {
			return op.ResourceID == noteID || op.Payload.NoteID() == noteID
		}); err != nil {
			return fmt.Errorf("offlineapi: purge queued ops for local-only note: %w", err)
		}
		return nil
	}

	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDeleteNote,
		ResourceType: model.ResourceNote,
		ResourceID:   noteID,
		Payload:      model.Payload{DeleteNote: &model.DeleteNotePayload{NoteID: noteID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DELETE: %w", err)
	}
	a.kick()
	return nil
}

// GetNotes returns the cache when offline; when online it additionally
// fetches the server listing and merges it via the cache's ReplaceAll
// rule before returning.
func (a *API) GetNotes(ctx context.Context) ([]model.CachedNote, error) {
	if a.net == nil || !a.net.Snapshot() {
		return a.cache.List()
	}

	remote, err := a.fetchNotes(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("online note fetch failed, serving cache")
		return a.cache.List()
	}
	if err := a.cache.ReplaceAll(remote); err != nil {
		return nil, fmt.Errorf("offlineapi: merge server notes: %w", err)
	}
	return a.cache.List()
}
