// Package model defines the data types shared by the cache, the operation
// queue, and the sync driver: notes and their attachments, and the closed
// set of queued mutation types.
package model

import "time"

// Color is a closed set of note accent colors.
type Color string

const (
	ColorDefault Color = "default"
	ColorRed     Color = "red"
	ColorOrange  Color = "orange"
	ColorYellow  Color = "yellow"
	ColorGreen   Color = "green"
	ColorBlue    Color = "blue"
	ColorPurple  Color = "purple"
	ColorPink    Color = "pink"
)

// ChecklistItem is a single line of a note's checklist. Before sync it
// carries a "temp-<ts>" id; after sync the id is the server integer id as
// a string.
type ChecklistItem struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	IsCompleted bool   `json:"isCompleted"`
	Order       int    `json:"order"`
}

// Image is an uploaded photo attachment. Before sync it carries a
// "temp_<ts>" id.
type Image struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// AudioRecording is an uploaded voice-memo attachment.
type AudioRecording struct {
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
	Duration int    `json:"durationSeconds,omitempty"`
}

// Drawing is an uploaded sketch attachment.
type Drawing struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Reminder is a note's single scheduled reminder.
type Reminder struct {
	ID       string    `json:"id"`
	RemindAt time.Time `json:"remindAt"`
}

// Label is a read-mostly tag fetched from the server and attached to notes.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Note is the note entity as the UI and the wire protocol see it. Its Id is
// either a server integer (serialized as a decimal string) or a local
// temporary id of the form "offline_<uuid>".
type Note struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Content          string           `json:"content"`
	Color            Color            `json:"color"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	IsPinned         bool             `json:"isPinned"`
	IsArchived       bool             `json:"isArchived"`
	IsDeleted        bool             `json:"isDeleted"`
	ChecklistItems   []ChecklistItem  `json:"checklistItems,omitempty"`
	Labels           []Label          `json:"labels,omitempty"`
	Images           []Image          `json:"images,omitempty"`
	AudioRecordings  []AudioRecording `json:"audioRecordings,omitempty"`
	Drawings         []Drawing        `json:"drawings,omitempty"`
	Reminder         *Reminder        `json:"reminder,omitempty"`

	// Transient local-only fields. Never sent to the server; cleared once
	// the corresponding UPLOAD op has been dequeued.
	AudioURI   string `json:"audioUri,omitempty"`
	DrawingURI string `json:"drawingUri,omitempty"`
}

// CachedNote wraps a Note with the bookkeeping the cache repository needs:
// whether it has local edits not yet confirmed by the server, and when it
// was last reconciled.
type CachedNote struct {
	ID              string     `json:"id"`
	Data            Note       `json:"data"`
	LocallyModified bool       `json:"locallyModified"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
}

// IsOfflineID reports whether id is a locally minted, not-yet-synced note
// id ("offline_<uuid>").
func IsOfflineID(id string) bool {
	return len(id) > len(offlinePrefix) && id[:len(offlinePrefix)] == offlinePrefix
}

const offlinePrefix = "offline_"

// NewOfflineID mints a fresh temporary note id.
func NewOfflineID(uuidStr string) string {
	return offlinePrefix + uuidStr
}

// IsTempChecklistID reports whether id is a pre-sync checklist item id.
func IsTempChecklistID(id string) bool {
	return hasPrefix(id, "temp-")
}

// IsTempAttachmentID reports whether id is a pre-sync attachment id.
func IsTempAttachmentID(id string) bool {
	return hasPrefix(id, "temp_")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
