package model

import "time"

// OpType is the closed set of mutation kinds the operation queue carries.
// The sync driver's dispatch table (internal/syncengine) switches on this
// with one case per variant; its default case only fails an unknown type
// with an error, so every variant added here must get a handler.
type OpType string

const (
	OpCreateNote       OpType = "CREATE"
	OpUpdateNote       OpType = "UPDATE"
	OpDeleteNote       OpType = "DELETE"
	OpUploadImage      OpType = "UPLOAD_IMAGE"
	OpDeleteImage      OpType = "DELETE_IMAGE"
	OpCreateReminder   OpType = "CREATE_REMINDER"
	OpDeleteReminder   OpType = "DELETE_REMINDER"
	OpAttachLabel      OpType = "ATTACH_LABEL"
	OpDetachLabel      OpType = "DETACH_LABEL"
	OpCreateChecklist  OpType = "CREATE_CHECKLIST"
	OpUpdateChecklist  OpType = "UPDATE_CHECKLIST"
	OpDeleteChecklist  OpType = "DELETE_CHECKLIST"
	OpCreateAudio      OpType = "CREATE_AUDIO"
	OpDeleteAudio      OpType = "DELETE_AUDIO"
	OpCreateDrawing    OpType = "CREATE_DRAWING"
	OpDeleteDrawing    OpType = "DELETE_DRAWING"
)

// ResourceType names what a QueuedOperation's ResourceId refers to.
type ResourceType string

const (
	ResourceNote      ResourceType = "note"
	ResourceImage     ResourceType = "image"
	ResourceAudio     ResourceType = "audio"
	ResourceDrawing   ResourceType = "drawing"
	ResourceReminder  ResourceType = "reminder"
	ResourceLabel     ResourceType = "label"
	ResourceChecklist ResourceType = "checklist"
)

// QueuedOperation is one entry in the durable, ordered mutation log. Payload
// is a variant-specific struct (the *Payload types below); it is stored as a typed
// field rather than a free-form map so the driver's dispatch is exhaustive.
type QueuedOperation struct {
	ID           string       `json:"id"`
	Type         OpType       `json:"type"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Payload      Payload      `json:"payload"`
	CreatedAt    time.Time    `json:"createdAt"`
	RetryCount   int          `json:"retryCount"`
	Error        string       `json:"error,omitempty"`
}

// TargetNoteID resolves the note this operation is ultimately about, per
// the sync driver's orphan-detection rule: resourceId for note-typed ops,
// payload.noteId for everything else.
func (op QueuedOperation) TargetNoteID() string {
	if op.ResourceType == ResourceNote {
		return op.ResourceID
	}
	return op.Payload.NoteID()
}

// Payload is the closed sum of per-operation-type request bodies. Exactly
// one field is populated per QueuedOperation, matching its Type.
type Payload struct {
	CreateNote      *CreateNotePayload      `json:"createNote,omitempty"`
	UpdateNote      *UpdateNotePayload      `json:"updateNote,omitempty"`
	DeleteNote      *DeleteNotePayload      `json:"deleteNote,omitempty"`
	UploadImage     *UploadImagePayload     `json:"uploadImage,omitempty"`
	DeleteImage     *DeleteImagePayload     `json:"deleteImage,omitempty"`
	CreateReminder  *CreateReminderPayload  `json:"createReminder,omitempty"`
	DeleteReminder  *DeleteReminderPayload  `json:"deleteReminder,omitempty"`
	AttachLabel     *AttachLabelPayload     `json:"attachLabel,omitempty"`
	DetachLabel     *DetachLabelPayload     `json:"detachLabel,omitempty"`
	CreateChecklist *CreateChecklistPayload `json:"createChecklist,omitempty"`
	UpdateChecklist *UpdateChecklistPayload `json:"updateChecklist,omitempty"`
	DeleteChecklist *DeleteChecklistPayload `json:"deleteChecklist,omitempty"`
	CreateAudio     *CreateAudioPayload     `json:"createAudio,omitempty"`
	DeleteAudio     *DeleteAudioPayload     `json:"deleteAudio,omitempty"`
	CreateDrawing   *CreateDrawingPayload   `json:"createDrawing,omitempty"`
	DeleteDrawing   *DeleteDrawingPayload   `json:"deleteDrawing,omitempty"`
}

// NoteID returns the noteId carried by whichever variant is populated, or
// "" if none is (which never happens for a well-formed operation).
func (p Payload) NoteID() string {
	switch {
	case p.CreateNote != nil:
		return p.CreateNote.NoteID
	case p.UpdateNote != nil:
		return p.UpdateNote.NoteID
	case p.DeleteNote != nil:
		return p.DeleteNote.NoteID
	case p.UploadImage != nil:
		return p.UploadImage.NoteID
	case p.DeleteImage != nil:
		return p.DeleteImage.NoteID
	case p.CreateReminder != nil:
		return p.CreateReminder.NoteID
	case p.DeleteReminder != nil:
		return p.DeleteReminder.NoteID
	case p.AttachLabel != nil:
		return p.AttachLabel.NoteID
	case p.DetachLabel != nil:
		return p.DetachLabel.NoteID
	case p.CreateChecklist != nil:
		return p.CreateChecklist.NoteID
	case p.UpdateChecklist != nil:
		return p.UpdateChecklist.NoteID
	case p.DeleteChecklist != nil:
		return p.DeleteChecklist.NoteID
	case p.CreateAudio != nil:
		return p.CreateAudio.NoteID
	case p.DeleteAudio != nil:
		return p.DeleteAudio.NoteID
	case p.CreateDrawing != nil:
		return p.CreateDrawing.NoteID
	case p.DeleteDrawing != nil:
		return p.DeleteDrawing.NoteID
	default:
		return ""
	}
}

// RewriteNoteID replaces every occurrence of oldID with newID across
// whichever payload variant is populated. Used by the temp-id rewrite to
// retarget dependents of a just-created note once the server assigns it a
// real id.
func (p *Payload) RewriteNoteID(oldID, newID string) {
	set := func(field *string) {
		if *field == oldID {
			*field = newID
		}
	}
	switch {
	case p.CreateNote != nil:
		set(&p.CreateNote.NoteID)
	case p.UpdateNote != nil:
		set(&p.UpdateNote.NoteID)
	case p.DeleteNote != nil:
		set(&p.DeleteNote.NoteID)
	case p.UploadImage != nil:
		set(&p.UploadImage.NoteID)
	case p.DeleteImage != nil:
		set(&p.DeleteImage.NoteID)
	case p.CreateReminder != nil:
		set(&p.CreateReminder.NoteID)
	case p.DeleteReminder != nil:
		set(&p.DeleteReminder.NoteID)
	case p.AttachLabel != nil:
		set(&p.AttachLabel.NoteID)
	case p.DetachLabel != nil:
		set(&p.DetachLabel.NoteID)
	case p.CreateChecklist != nil:
		set(&p.CreateChecklist.NoteID)
	case p.UpdateChecklist != nil:
		set(&p.UpdateChecklist.NoteID)
	case p.DeleteChecklist != nil:
		set(&p.DeleteChecklist.NoteID)
	case p.CreateAudio != nil:
		set(&p.CreateAudio.NoteID)
	case p.DeleteAudio != nil:
		set(&p.DeleteAudio.NoteID)
	case p.CreateDrawing != nil:
		set(&p.CreateDrawing.NoteID)
	case p.DeleteDrawing != nil:
		set(&p.DeleteDrawing.NoteID)
	}
}

type CreateNotePayload struct {
	NoteID string `json:"noteId"`
	Note   Note   `json:"note"`
}

type UpdateNotePayload struct {
	NoteID string         `json:"noteId"`
	Delta  map[string]any `json:"delta"`
}

type DeleteNotePayload struct {
	NoteID string `json:"noteId"`
}

type UploadImagePayload struct {
	NoteID   string `json:"noteId"`
	TempID   string `json:"tempId"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"type"`
}

type DeleteImagePayload struct {
	NoteID  string `json:"noteId"`
	ImageID string `json:"imageId"`
}

type CreateReminderPayload struct {
	NoteID   string    `json:"noteId"`
	RemindAt time.Time `json:"remindAt"`
}

type DeleteReminderPayload struct {
	NoteID     string `json:"noteId"`
	ReminderID string `json:"reminderId"`
}

type AttachLabelPayload struct {
	NoteID  string `json:"noteId"`
	LabelID string `json:"labelId"`
}

type DetachLabelPayload struct {
	NoteID  string `json:"noteId"`
	LabelID string `json:"labelId"`
}

type CreateChecklistPayload struct {
	NoteID      string `json:"noteId"`
	TempID      string `json:"tempId"`
	Text        string `json:"text"`
	IsCompleted bool   `json:"isCompleted"`
}

type UpdateChecklistPayload struct {
	NoteID      string `json:"noteId"`
	ItemID      string `json:"itemId"`
	Text        string `json:"text"`
	IsCompleted bool   `json:"isCompleted"`
}

type DeleteChecklistPayload struct {
	NoteID string `json:"noteId"`
	ItemID string `json:"itemId"`
}

type CreateAudioPayload struct {
	NoteID   string `json:"noteId"`
	TempID   string `json:"tempId"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"type"`
}

type DeleteAudioPayload struct {
	NoteID  string `json:"noteId"`
	AudioID string `json:"audioId"`
}

type CreateDrawingPayload struct {
	NoteID   string `json:"noteId"`
	TempID   string `json:"tempId"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"type"`
}

type DeleteDrawingPayload struct {
	NoteID    string `json:"noteId"`
	DrawingID string `json:"drawingId"`
}
