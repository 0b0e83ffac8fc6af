package offlineapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkwell-app/notesync-core/internal/model"
)

// notesListResponse accepts either a bare array or {"data": [...]} — the
// server surface documents both shapes for GET /notes.
type notesListResponse struct {
	Data []model.Note `json:"data"`
}

func (a *API) fetchNotes(ctx context.Context) ([]model.CachedNote, error) {
	resp, err := a.http.Do(ctx, http.MethodGet, "/notes", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("offlineapi: read notes response: %w", err)
	}

	var notes []model.Note
	if err := json.Unmarshal(raw, &notes); err != nil {
		var wrapped notesListResponse
		if wrapErr := json.Unmarshal(raw, &wrapped); wrapErr != nil {
			return nil, fmt.Errorf("offlineapi: decode notes list: %w", err)
		}
		notes = wrapped.Data
	}

	now := time.Now().UTC()
	cached := make([]model.CachedNote, 0, len(notes))
	for _, n := range notes {
		cached = append(cached, model.CachedNote{ID: n.ID, Data: n, LocallyModified: false, LastSyncedAt: &now})
	}
	return cached, nil
}
