package model

import "testing"

func TestIsOfflineID(t *testing.T) {
	cases := map[string]bool{
		"offline_abc123": true,
		"7":               false,
		"offline_":        false,
		"":                false,
		"temp_123":        false,
	}
	for id, want := range cases {
		if got := IsOfflineID(id); got != want {
			t.Errorf("IsOfflineID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestNewOfflineID(t *testing.T) {
	id := NewOfflineID("uuid-1")
	if id != "offline_uuid-1" {
		t.Errorf("unexpected offline id: %q", id)
	}
	if !IsOfflineID(id) {
		t.Errorf("NewOfflineID result must satisfy IsOfflineID")
	}
}

func TestIsTempChecklistAndAttachmentID(t *testing.T) {
	if !IsTempChecklistID("temp-1700000000") {
		t.Error("expected temp- prefixed id to be a temp checklist id")
	}
	if IsTempChecklistID("temp_1700000000") {
		t.Error("attachment prefix should not satisfy checklist temp id check")
	}
	if !IsTempAttachmentID("temp_1700000000") {
		t.Error("expected temp_ prefixed id to be a temp attachment id")
	}
	if IsTempAttachmentID("temp-1700000000") {
		t.Error("checklist prefix should not satisfy attachment temp id check")
	}
}

func TestPayloadNoteIDAndRewrite(t *testing.T) {
	p := Payload{UpdateNote: &UpdateNotePayload{NoteID: "offline_x", Delta: map[string]any{"title": "a"}}}

	if got := p.NoteID(); got != "offline_x" {
		t.Fatalf("NoteID() = %q, want offline_x", got)
	}

	p.RewriteNoteID("offline_x", "42")
	if got := p.NoteID(); got != "42" {
		t.Fatalf("after rewrite NoteID() = %q, want 42", got)
	}
}

func TestPayloadRewriteNoteIDNoOpOnMismatch(t *testing.T) {
	p := Payload{DeleteImage: &DeleteImagePayload{NoteID: "offline_x", ImageID: "temp_1"}}
	p.RewriteNoteID("offline_y", "42")
	if p.DeleteImage.NoteID != "offline_x" {
		t.Errorf("expected no rewrite on id mismatch, got %q", p.DeleteImage.NoteID)
	}
}

func TestQueuedOperationTargetNoteID(t *testing.T) {
	noteOp := QueuedOperation{ResourceType: ResourceNote, ResourceID: "offline_a"}
	if got := noteOp.TargetNoteID(); got != "offline_a" {
		t.Errorf("note-typed op: TargetNoteID() = %q, want offline_a", got)
	}

	dependentOp := QueuedOperation{
		ResourceType: ResourceChecklist,
		ResourceID:   "temp-1",
		Payload:      Payload{CreateChecklist: &CreateChecklistPayload{NoteID: "offline_a", TempID: "temp-1"}},
	}
	if got := dependentOp.TargetNoteID(); got != "offline_a" {
		t.Errorf("dependent op: TargetNoteID() = %q, want offline_a", got)
	}
}
