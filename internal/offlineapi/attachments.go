package offlineapi

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-app/notesync-core/internal/model"
)

// UploadImage optimistically appends a temp_ image entry and enqueues the
// multipart upload.
func (a *API) UploadImage(noteID, uri, name, mimeType string) error {
	tempID := "temp_" + uuid.NewString()
	_, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Images = append(n.Data.Images, model.Image{ID: tempID})
		n.LocallyModified = true
	})
	if err != nil {
		return fmt.Errorf("offlineapi: attach optimistic image: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpUploadImage,
		ResourceType: model.ResourceImage,
		ResourceID:   tempID,
		Payload: model.Payload{UploadImage: &model.UploadImagePayload{
			NoteID: noteID, TempID: tempID, URI: uri, Name: name, MimeType: mimeType,
		}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue UPLOAD_IMAGE: %w", err)
	}
	a.kick()
	return nil
}

// DeleteImage removes the image entry from the cache and enqueues the
// deletion.
func (a *API) DeleteImage(noteID, imageID string) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Images = removeByID(n.Data.Images, imageID, func(i model.Image) string { return i.ID })
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: remove optimistic image: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDeleteImage,
		ResourceType: model.ResourceImage,
		ResourceID:   imageID,
		Payload:      model.Payload{DeleteImage: &model.DeleteImagePayload{NoteID: noteID, ImageID: imageID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DELETE_IMAGE: %w", err)
	}
	a.kick()
	return nil
}

// CreateAudio attaches a voice memo to an existing note (the createNote
// fan-out path covers new notes; this covers adding one afterward).
func (a *API) CreateAudio(noteID, uri, name, mimeType string) error {
	tempID := "temp_" + uuid.NewString()
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.AudioRecordings = append(n.Data.AudioRecordings, model.AudioRecording{ID: tempID})
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: attach optimistic audio: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpCreateAudio,
		ResourceType: model.ResourceAudio,
		ResourceID:   tempID,
		Payload: model.Payload{CreateAudio: &model.CreateAudioPayload{
			NoteID: noteID, TempID: tempID, URI: uri, Name: name, MimeType: mimeType,
		}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue CREATE_AUDIO: %w", err)
	}
	a.kick()
	return nil
}

// DeleteAudio removes the voice memo entry from the cache and enqueues the
// deletion.
func (a *API) DeleteAudio(noteID, audioID string) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.AudioRecordings = removeByID(n.Data.AudioRecordings, audioID, func(r model.AudioRecording) string { return r.ID })
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: remove optimistic audio: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDeleteAudio,
		ResourceType: model.ResourceAudio,
		ResourceID:   audioID,
		Payload:      model.Payload{DeleteAudio: &model.DeleteAudioPayload{NoteID: noteID, AudioID: audioID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DELETE_AUDIO: %w", err)
	}
	a.kick()
	return nil
}

// CreateDrawing attaches a sketch to an existing note.
func (a *API) CreateDrawing(noteID, uri, name, mimeType string) error {
	tempID := "temp_" + uuid.NewString()
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Drawings = append(n.Data.Drawings, model.Drawing{ID: tempID})
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: attach optimistic drawing: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpCreateDrawing,
		ResourceType: model.ResourceDrawing,
		ResourceID:   tempID,
		Payload: model.Payload{CreateDrawing: &model.CreateDrawingPayload{
			NoteID: noteID, TempID: tempID, URI: uri, Name: name, MimeType: mimeType,
		}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue CREATE_DRAWING: %w", err)
	}
	a.kick()
	return nil
}

// DeleteDrawing removes the sketch entry from the cache and enqueues the
// deletion.
func (a *API) DeleteDrawing(noteID, drawingID string) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Drawings = removeByID(n.Data.Drawings, drawingID, func(dr model.Drawing) string { return dr.ID })
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: remove optimistic drawing: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDeleteDrawing,
		ResourceType: model.ResourceDrawing,
		ResourceID:   drawingID,
		Payload:      model.Payload{DeleteDrawing: &model.DeleteDrawingPayload{NoteID: noteID, DrawingID: drawingID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DELETE_DRAWING: %w", err)
	}
	a.kick()
	return nil
}

// CreateReminder sets the note's single reminder slot and enqueues its
// creation.
func (a *API) CreateReminder(noteID string, remindAt time.Time) error {
	tempID := "temp-" + uuid.NewString()
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Reminder = &model.Reminder{ID: tempID, RemindAt: remindAt}
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: set optimistic reminder: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpCreateReminder,
		ResourceType: model.ResourceReminder,
		ResourceID:   tempID,
		Payload:      model.Payload{CreateReminder: &model.CreateReminderPayload{NoteID: noteID, RemindAt: remindAt}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue CREATE_REMINDER: %w", err)
	}
	a.kick()
	return nil
}

// DeleteReminder clears the note's reminder slot and enqueues its removal.
func (a *API) DeleteReminder(noteID, reminderID string) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Reminder = nil
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: clear optimistic reminder: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDeleteReminder,
		ResourceType: model.ResourceReminder,
		ResourceID:   reminderID,
		Payload:      model.Payload{DeleteReminder: &model.DeleteReminderPayload{NoteID: noteID, ReminderID: reminderID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DELETE_REMINDER: %w", err)
	}
	a.kick()
	return nil
}

// AttachLabel adds a label reference to the note and enqueues the
// attachment. Labels themselves are read-mostly and fetched separately.
func (a *API) AttachLabel(noteID string, label model.Label) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Labels = append(n.Data.Labels, label)
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: attach optimistic label: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpAttachLabel,
		ResourceType: model.ResourceLabel,
		ResourceID:   label.ID,
		Payload:      model.Payload{AttachLabel: &model.AttachLabelPayload{NoteID: noteID, LabelID: label.ID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue ATTACH_LABEL: %w", err)
	}
	a.kick()
	return nil
}

// DetachLabel removes a label reference from the note and enqueues the
// detachment.
func (a *API) DetachLabel(noteID, labelID string) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.Labels = removeByID(n.Data.Labels, labelID, func(l model.Label) string { return l.ID })
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: detach optimistic label: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDetachLabel,
		ResourceType: model.ResourceLabel,
		ResourceID:   labelID,
		Payload:      model.Payload{DetachLabel: &model.DetachLabelPayload{NoteID: noteID, LabelID: labelID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DETACH_LABEL: %w", err)
	}
	a.kick()
	return nil
}

// CreateChecklistItem appends a temp-prefixed checklist item and enqueues
// its creation.
func (a *API) CreateChecklistItem(noteID, text string, isCompleted bool) error {
	tempID := "temp-" + uuid.NewString()
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.ChecklistItems = append(n.Data.ChecklistItems, model.ChecklistItem{
			ID: tempID, Text: text, IsCompleted: isCompleted, Order: len(n.Data.ChecklistItems),
		})
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: add optimistic checklist item: %w", err)
	}
	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpCreateChecklist,
		ResourceType: model.ResourceChecklist,
		ResourceID:   tempID,
		Payload: model.Payload{CreateChecklist: &model.CreateChecklistPayload{
			NoteID: noteID, TempID: tempID, Text: text, IsCompleted: isCompleted,
		}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue CREATE_CHECKLIST: %w", err)
	}
	a.kick()
	return nil
}

// UpdateChecklistItem patches a checklist item's text/completion and
// enqueues the update. If the item still carries a temp- id, the queued
// CREATE_CHECKLIST payload is rewritten in place instead of enqueueing a
// separate UPDATE — its own CREATE hasn't synced yet, so there is nothing
// server-side to PUT against.
func (a *API) UpdateChecklistItem(noteID, itemID, text string, isCompleted bool) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		for i := range n.Data.ChecklistItems {
			if n.Data.ChecklistItems[i].ID == itemID {
				n.Data.ChecklistItems[i].Text = text
				n.Data.ChecklistItems[i].IsCompleted = isCompleted
			}
		}
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: patch optimistic checklist item: %w", err)
	}

	if model.IsTempChecklistID(itemID) {
		ops, err := a.queue.GetAll()
		if err != nil {
			return fmt.Errorf("offlineapi: read queue for pending create: %w", err)
		}
		for _, op := range ops {
			if op.Type == model.OpCreateChecklist && op.Payload.CreateChecklist != nil && op.Payload.CreateChecklist.TempID == itemID {
				if _, err := a.queue.Update(op.ID, func(o *model.QueuedOperation) {
					o.Payload.CreateChecklist.Text = text
					o.Payload.CreateChecklist.IsCompleted = isCompleted
				}); err != nil {
					return fmt.Errorf("offlineapi: rewrite pending checklist create: %w", err)
				}
				// The pending CREATE now carries the latest edit; nothing
				// further to enqueue.
				a.kick()
				return nil
			}
		}
		return nil
	}

	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpUpdateChecklist,
		ResourceType: model.ResourceChecklist,
		ResourceID:   itemID,
		Payload: model.Payload{UpdateChecklist: &model.UpdateChecklistPayload{
			NoteID: noteID, ItemID: itemID, Text: text, IsCompleted: isCompleted,
		}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue UPDATE_CHECKLIST: %w", err)
	}
	a.kick()
	return nil
}

// DeleteChecklistItem removes the item from the cache and enqueues its
// deletion, unless it is still a temp- id: its CREATE_CHECKLIST has not
// synced, so that pending op is removed from the queue and no DELETE is
// enqueued.
func (a *API) DeleteChecklistItem(noteID, itemID string) error {
	if _, err := a.cache.Patch(noteID, func(n *model.CachedNote) {
		n.Data.ChecklistItems = removeByID(n.Data.ChecklistItems, itemID, func(c model.ChecklistItem) string { return c.ID })
		n.LocallyModified = true
	}); err != nil {
		return fmt.Errorf("offlineapi: remove optimistic checklist item: %w", err)
	}

	if model.IsTempChecklistID(itemID) {
		if _, err := a.queue.RemoveWhere(func(op model.QueuedOperation) bool {
			return op.Type == model.OpCreateChecklist && op.Payload.CreateChecklist != nil && op.Payload.CreateChecklist.TempID == itemID
		}); err != nil {
			return fmt.Errorf("offlineapi: purge pending checklist create: %w", err)
		}
		return nil
	}

	if _, err := a.queue.Enqueue(model.QueuedOperation{
		Type:         model.OpDeleteChecklist,
		ResourceType: model.ResourceChecklist,
		ResourceID:   itemID,
		Payload:      model.Payload{DeleteChecklist: &model.DeleteChecklistPayload{NoteID: noteID, ItemID: itemID}},
	}); err != nil {
		return fmt.Errorf("offlineapi: enqueue DELETE_CHECKLIST: %w", err)
	}
	a.kick()
	return nil
}

func removeByID[T any](items []T, id string, idOf func(T) string) []T {
	out := items[:0]
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}
