package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/inkwell-app/notesync-core/internal/httpclient"
	"github.com/inkwell-app/notesync-core/internal/model"
)

// dispatch routes op to its per-type handler and applies the handler's
// cache effect. It returns nil only once both the remote call (if any)
// and the cache write have succeeded.
func (d *Driver) dispatch(ctx context.Context, op model.QueuedOperation) error {
	switch op.Type {
	case model.OpCreateNote:
		return d.handleCreateNote(ctx, op)
	case model.OpUpdateNote:
		return d.handleUpdateNote(ctx, op)
	case model.OpDeleteNote:
		return d.handleDeleteNote(ctx, op)
	case model.OpUploadImage:
		return d.handleUploadImage(ctx, op)
	case model.OpDeleteImage:
		return d.handleDeleteImage(ctx, op)
	case model.OpCreateReminder:
		return d.handleCreateReminder(ctx, op)
	case model.OpDeleteReminder:
		return d.handleDeleteReminder(ctx, op)
	case model.OpAttachLabel:
		return d.handleAttachLabel(ctx, op)
	case model.OpDetachLabel:
		return d.handleDetachLabel(ctx, op)
	case model.OpCreateChecklist:
		return d.handleCreateChecklist(ctx, op)
	case model.OpUpdateChecklist:
		return d.handleUpdateChecklist(ctx, op)
	case model.OpDeleteChecklist:
		return d.handleDeleteChecklist(ctx, op)
	case model.OpCreateAudio:
		return d.handleCreateAudio(ctx, op)
	case model.OpDeleteAudio:
		return d.handleDeleteAudio(ctx, op)
	case model.OpCreateDrawing:
		return d.handleCreateDrawing(ctx, op)
	case model.OpDeleteDrawing:
		return d.handleDeleteDrawing(ctx, op)
	default:
		return fmt.Errorf("syncengine: no handler registered for op type %q", op.Type)
	}
}

func (d *Driver) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, httpclient.SetupError{Err: err}
	}
	return d.http.Do(ctx, http.MethodPost, path, bytes.NewReader(raw), map[string]string{"Content-Type": "application/json"})
}

func (d *Driver) putJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, httpclient.SetupError{Err: err}
	}
	return d.http.Do(ctx, http.MethodPut, path, bytes.NewReader(raw), map[string]string{"Content-Type": "application/json"})
}

func (d *Driver) delete(ctx context.Context, path string) (*http.Response, error) {
	return d.http.Do(ctx, http.MethodDelete, path, nil, nil)
}

func decodeNote(resp *http.Response) (model.Note, error) {
	defer resp.Body.Close()
	var note model.Note
	if err := json.NewDecoder(resp.Body).Decode(&note); err != nil {
		return model.Note{}, httpclient.SetupError{Err: fmt.Errorf("decode note response: %w", err)}
	}
	return note, nil
}

// handleCreateNote implements CREATE note: POST /notes, then replace the
// temp cache entry with the server entry, merge local-only fields the
// create queued but the server doesn't echo (audio/drawing URIs pending
// their own ops, and any temp_ images still awaiting their own UPLOAD_IMAGE
// op), and rewrite every queued dependent from the offline id to the
// server id.
func (d *Driver) handleCreateNote(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.CreateNote
	if payload == nil {
		return fmt.Errorf("syncengine: CREATE op %s missing payload", op.ID)
	}

	body := payload.Note
	body.AudioURI, body.DrawingURI = "", ""
	resp, err := d.postJSON(ctx, "/notes", body)
	if err != nil {
		return err
	}
	serverNote, err := decodeNote(resp)
	if err != nil {
		return err
	}

	oldID := payload.NoteID
	newID := serverNote.ID

	if existing, ok, err := d.cache.GetByID(oldID); err == nil && ok {
		serverNote.AudioURI = existing.Data.AudioURI
		serverNote.DrawingURI = existing.Data.DrawingURI
		for _, img := range existing.Data.Images {
			if model.IsTempAttachmentID(img.ID) {
				serverNote.Images = append(serverNote.Images, img)
			}
		}
	}

	now := time.Now().UTC()
	if err := d.cache.Remove(oldID); err != nil {
		return fmt.Errorf("syncengine: remove temp note from cache: %w", err)
	}
	if err := d.cache.Upsert(model.CachedNote{
		ID:              newID,
		Data:            serverNote,
		LocallyModified: false,
		LastSyncedAt:    &now,
	}); err != nil {
		return fmt.Errorf("syncengine: upsert synced note: %w", err)
	}

	if err := d.queue.RewriteNoteID(oldID, newID); err != nil {
		return fmt.Errorf("syncengine: rewrite dependents to server id: %w", err)
	}
	return nil
}

// handleUpdateNote implements UPDATE note: PUT /notes/{id}, then clear
// locallyModified and stamp lastSyncedAt.
func (d *Driver) handleUpdateNote(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.UpdateNote
	if payload == nil {
		return fmt.Errorf("syncengine: UPDATE op %s missing payload", op.ID)
	}
	resp, err := d.putJSON(ctx, "/notes/"+payload.NoteID, payload.Delta)
	if err != nil {
		return err
	}
	resp.Body.Close()

	now := time.Now().UTC()
	_, err = d.cache.Patch(payload.NoteID, func(n *model.CachedNote) {
		n.LocallyModified = false
		n.LastSyncedAt = &now
	})
	return err
}

// handleDeleteNote implements DELETE note: DELETE /notes/{id} only if the
// id is a server integer (an offline_* id was already purged from the
// cache synchronously by the façade's local-only short-circuit and should
// never reach the driver, but the numeric guard is kept as a second line
// of defense per the handler table).
func (d *Driver) handleDeleteNote(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DeleteNote
	if payload == nil {
		return fmt.Errorf("syncengine: DELETE op %s missing payload", op.ID)
	}
	if isNumericID(payload.NoteID) {
		resp, err := d.delete(ctx, "/notes/"+payload.NoteID)
		if err != nil {
			return err
		}
		resp.Body.Close()
	}
	return d.cache.Remove(payload.NoteID)
}

func (d *Driver) uploadMultipart(ctx context.Context, path, field, uri string) (*http.Response, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, httpclient.SetupError{Err: fmt.Errorf("open attachment %s: %w", uri, err)}
	}
	defer f.Close()

	body, contentType, err := httpclient.Multipart(field, field, f)
	if err != nil {
		return nil, err
	}
	return d.http.Do(ctx, http.MethodPost, path, body, map[string]string{"Content-Type": contentType})
}

// handleUploadImage implements UPLOAD_IMAGE: POST /notes/{noteId}/images
// multipart; no documented cache effect beyond draining the op (the note's
// images array is refreshed on the next note fetch/merge).
func (d *Driver) handleUploadImage(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.UploadImage
	if payload == nil {
		return fmt.Errorf("syncengine: UPLOAD_IMAGE op %s missing payload", op.ID)
	}
	resp, err := d.uploadMultipart(ctx, "/notes/"+payload.NoteID+"/images", "image", payload.URI)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// handleDeleteImage implements DELETE_IMAGE: DELETE /notes/images/{id}
// only if the image id is numeric (a temp_* id means the UPLOAD_IMAGE
// itself never synced, so there is nothing server-side to delete).
func (d *Driver) handleDeleteImage(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DeleteImage
	if payload == nil {
		return fmt.Errorf("syncengine: DELETE_IMAGE op %s missing payload", op.ID)
	}
	if !isNumericID(payload.ImageID) {
		return nil
	}
	resp, err := d.delete(ctx, "/notes/images/"+payload.ImageID)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleCreateReminder(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.CreateReminder
	if payload == nil {
		return fmt.Errorf("syncengine: CREATE_REMINDER op %s missing payload", op.ID)
	}
	resp, err := d.postJSON(ctx, "/notes/"+payload.NoteID+"/reminders", map[string]any{
		"remind_at": payload.RemindAt,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleDeleteReminder(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DeleteReminder
	if payload == nil {
		return fmt.Errorf("syncengine: DELETE_REMINDER op %s missing payload", op.ID)
	}
	resp, err := d.delete(ctx, "/reminders/"+payload.ReminderID)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleAttachLabel(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.AttachLabel
	if payload == nil {
		return fmt.Errorf("syncengine: ATTACH_LABEL op %s missing payload", op.ID)
	}
	resp, err := d.postJSON(ctx, "/notes/"+payload.NoteID+"/labels", map[string]any{
		"label_id": payload.LabelID,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleDetachLabel(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DetachLabel
	if payload == nil {
		return fmt.Errorf("syncengine: DETACH_LABEL op %s missing payload", op.ID)
	}
	resp, err := d.delete(ctx, "/notes/"+payload.NoteID+"/labels/"+payload.LabelID)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleCreateChecklist(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.CreateChecklist
	if payload == nil {
		return fmt.Errorf("syncengine: CREATE_CHECKLIST op %s missing payload", op.ID)
	}
	resp, err := d.postJSON(ctx, "/notes/"+payload.NoteID+"/checklist", map[string]any{
		"text":         payload.Text,
		"is_completed": payload.IsCompleted,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// handleUpdateChecklist implements UPDATE_CHECKLIST: PUT /checklist/{id}
// unless the item id is still a temp- id. Such an item's own
// CREATE_CHECKLIST hasn't synced, so there is nothing server-side to PUT
// and the op completes without a call; the offline API folds edits of
// pending items into their queued create instead of enqueueing an UPDATE.
func (d *Driver) handleUpdateChecklist(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.UpdateChecklist
	if payload == nil {
		return fmt.Errorf("syncengine: UPDATE_CHECKLIST op %s missing payload", op.ID)
	}
	if model.IsTempChecklistID(payload.ItemID) {
		return nil
	}
	resp, err := d.putJSON(ctx, "/checklist/"+payload.ItemID, map[string]any{
		"text":         payload.Text,
		"is_completed": payload.IsCompleted,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleDeleteChecklist(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DeleteChecklist
	if payload == nil {
		return fmt.Errorf("syncengine: DELETE_CHECKLIST op %s missing payload", op.ID)
	}
	if model.IsTempChecklistID(payload.ItemID) {
		return nil
	}
	resp, err := d.delete(ctx, "/checklist/"+payload.ItemID)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleCreateAudio(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.CreateAudio
	if payload == nil {
		return fmt.Errorf("syncengine: CREATE_AUDIO op %s missing payload", op.ID)
	}
	resp, err := d.uploadMultipart(ctx, "/notes/"+payload.NoteID+"/audio", "audio", payload.URI)
	if err != nil {
		return err
	}
	resp.Body.Close()
	_, err = d.cache.Patch(payload.NoteID, func(n *model.CachedNote) {
		n.Data.AudioURI = ""
	})
	return err
}

func (d *Driver) handleDeleteAudio(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DeleteAudio
	if payload == nil {
		return fmt.Errorf("syncengine: DELETE_AUDIO op %s missing payload", op.ID)
	}
	if !isNumericID(payload.AudioID) {
		return nil
	}
	resp, err := d.delete(ctx, "/notes/audio/"+payload.AudioID)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) handleCreateDrawing(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.CreateDrawing
	if payload == nil {
		return fmt.Errorf("syncengine: CREATE_DRAWING op %s missing payload", op.ID)
	}
	resp, err := d.uploadMultipart(ctx, "/notes/"+payload.NoteID+"/drawings", "drawing", payload.URI)
	if err != nil {
		return err
	}
	resp.Body.Close()
	_, err = d.cache.Patch(payload.NoteID, func(n *model.CachedNote) {
		n.Data.DrawingURI = ""
	})
	return err
}

func (d *Driver) handleDeleteDrawing(ctx context.Context, op model.QueuedOperation) error {
	payload := op.Payload.DeleteDrawing
	if payload == nil {
		return fmt.Errorf("syncengine: DELETE_DRAWING op %s missing payload", op.ID)
	}
	if !isNumericID(payload.DrawingID) {
		return nil
	}
	resp, err := d.delete(ctx, "/notes/drawings/"+payload.DrawingID)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
