package syncengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkwell-app/notesync-core/internal/cache"
	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/inkwell-app/notesync-core/internal/httpclient"
	"github.com/inkwell-app/notesync-core/internal/model"
	"github.com/inkwell-app/notesync-core/internal/queue"
	"github.com/inkwell-app/notesync-core/internal/store"
	"github.com/rs/zerolog"
)

type alwaysPresentTokens struct{}

func (alwaysPresentTokens) GetToken() (string, bool, error) { return "test-token", true, nil }
func (alwaysPresentTokens) ClearSession() error              { return nil }

func newTestDriver(t *testing.T, handler http.HandlerFunc) (*Driver, *queue.Queue, *cache.Repository, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	kv := store.NewMemoryKV()
	q := queue.New(kv)
	c := cache.New(kv)
	hc := httpclient.New(server.URL, 2*time.Second, alwaysPresentTokens{}, eventbus.New(), zerolog.Nop())
	d := New(q, c, hc, kv, eventbus.New(), 3, zerolog.Nop())
	return d, q, c, server
}

func TestDrain_OfflineCreateWithImageDependent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42","title":"hello","content":"world"}`))
	})
	mux.HandleFunc("/notes/42/images", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	d, q, c, _ := newTestDriver(t, mux.ServeHTTP)

	offlineID := "offline_abc"
	c.Upsert(model.CachedNote{ID: offlineID, Data: model.Note{ID: offlineID, Title: "hello", Content: "world"}})
	q.Enqueue(model.QueuedOperation{
		Type: model.OpCreateNote, ResourceType: model.ResourceNote, ResourceID: offlineID,
		Payload: model.Payload{CreateNote: &model.CreateNotePayload{NoteID: offlineID, Note: model.Note{Title: "hello", Content: "world"}}},
	})
	q.Enqueue(model.QueuedOperation{
		Type: model.OpUploadImage, ResourceType: model.ResourceImage, ResourceID: "temp_1",
		Payload: model.Payload{UploadImage: &model.UploadImagePayload{NoteID: offlineID, TempID: "temp_1", URI: "/dev/null"}},
	})

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Successful != 2 {
		t.Errorf("expected 2 successful ops (create + image), got %+v", result)
	}

	ops, _ := q.GetAll()
	if len(ops) != 0 {
		t.Errorf("expected queue drained, got %d remaining", len(ops))
	}

	if _, ok, _ := c.GetByID(offlineID); ok {
		t.Error("expected temp cache entry removed")
	}
	n, ok, _ := c.GetByID("42")
	if !ok {
		t.Fatal("expected note re-cached under server id 42")
	}
	if n.Data.Title != "hello" {
		t.Errorf("unexpected cached note: %+v", n)
	}
}

func TestDrain_CreateMergesPendingTempImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"99","title":"hello","content":"world"}`))
	})

	d, q, c, _ := newTestDriver(t, mux.ServeHTTP)

	offlineID := "offline_img"
	c.Upsert(model.CachedNote{ID: offlineID, Data: model.Note{
		ID:      offlineID,
		Title:   "hello",
		Content: "world",
		Images:  []model.Image{{ID: "temp_1"}},
	}})
	q.Enqueue(model.QueuedOperation{
		Type: model.OpCreateNote, ResourceType: model.ResourceNote, ResourceID: offlineID,
		Payload: model.Payload{CreateNote: &model.CreateNotePayload{NoteID: offlineID, Note: model.Note{Title: "hello", Content: "world"}}},
	})

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Successful != 1 {
		t.Errorf("expected 1 successful op (create), got %+v", result)
	}

	n, ok, _ := c.GetByID("99")
	if !ok {
		t.Fatal("expected note re-cached under server id 99")
	}
	if len(n.Data.Images) != 1 || n.Data.Images[0].ID != "temp_1" {
		t.Errorf("expected pending temp_ image carried forward, got %+v", n.Data.Images)
	}
}

func TestDrain_DependentSkippedWhenCreateFailsThisRound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	var imageCalled bool
	mux.HandleFunc("/notes/", func(w http.ResponseWriter, r *http.Request) {
		imageCalled = true
		w.WriteHeader(http.StatusOK)
	})

	d, q, c, _ := newTestDriver(t, mux.ServeHTTP)

	offlineID := "offline_x"
	c.Upsert(model.CachedNote{ID: offlineID, Data: model.Note{ID: offlineID}})
	q.Enqueue(model.QueuedOperation{
		Type: model.OpCreateNote, ResourceType: model.ResourceNote, ResourceID: offlineID,
		Payload: model.Payload{CreateNote: &model.CreateNotePayload{NoteID: offlineID}},
	})
	q.Enqueue(model.QueuedOperation{
		Type: model.OpUploadImage, ResourceType: model.ResourceImage, ResourceID: "temp_2",
		Payload: model.Payload{UploadImage: &model.UploadImagePayload{NoteID: offlineID, TempID: "temp_2", URI: "/dev/null"}},
	})

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if imageCalled {
		t.Error("expected dependent image upload to be skipped this round, not dispatched")
	}
	if result.Failed != 1 {
		t.Errorf("expected the CREATE's 500 to count as a failure this round, got %+v", result)
	}
	if result.Remaining != 2 {
		t.Errorf("expected both ops remaining (create retried, image dependency-skipped), got %+v", result)
	}

	ops, _ := q.GetAll()
	if len(ops) != 2 {
		t.Fatalf("expected both ops still queued, got %d", len(ops))
	}
	if ops[0].RetryCount != 1 {
		t.Errorf("expected CREATE retryCount bumped to 1, got %d", ops[0].RetryCount)
	}
	if ops[1].RetryCount != 0 {
		t.Errorf("expected dependency-skipped op's retryCount untouched, got %d", ops[1].RetryCount)
	}
}

func TestDrain_OrphanedDependentIsDropped(t *testing.T) {
	d, q, _, _ := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no HTTP call expected for an orphaned op, got %s %s", r.Method, r.URL.Path)
	})

	q.Enqueue(model.QueuedOperation{
		Type: model.OpUploadImage, ResourceType: model.ResourceImage, ResourceID: "temp_1",
		Payload: model.Payload{UploadImage: &model.UploadImagePayload{NoteID: "offline_ghost", TempID: "temp_1", URI: "/dev/null"}},
	})

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failed (orphaned) op, got %+v", result)
	}
	ops, _ := q.GetAll()
	if len(ops) != 0 {
		t.Errorf("expected orphaned op removed from queue, got %d remaining", len(ops))
	}
}

func TestDrain_RetryCapDropsOperation(t *testing.T) {
	d, q, _, _ := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("op at retry cap must not be dispatched")
	})

	q.Enqueue(model.QueuedOperation{
		Type: model.OpDeleteNote, ResourceType: model.ResourceNote, ResourceID: "7",
		Payload: model.Payload{DeleteNote: &model.DeleteNotePayload{NoteID: "7"}},
	})

	id := mustSingleOpID(t, q)
	for i := 0; i < 3; i++ {
		if err := q.BumpRetryWithError(id, "boom"); err != nil {
			t.Fatalf("BumpRetryWithError failed: %v", err)
		}
	}

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failed op at retry cap, got %+v", result)
	}
	remaining, _ := q.GetAll()
	if len(remaining) != 0 {
		t.Errorf("expected op dropped at retry cap, got %d remaining", len(remaining))
	}
}

func TestDrain_404DropsOperation(t *testing.T) {
	d, q, _, _ := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	q.Enqueue(model.QueuedOperation{
		Type: model.OpDeleteNote, ResourceType: model.ResourceNote, ResourceID: "7",
		Payload: model.Payload{DeleteNote: &model.DeleteNotePayload{NoteID: "7"}},
	})

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 404 to count as failed/dropped, got %+v", result)
	}
	ops, _ := q.GetAll()
	if len(ops) != 0 {
		t.Errorf("expected op removed after 404, got %d remaining", len(ops))
	}
}

func TestDrain_422Retries(t *testing.T) {
	d, q, _, _ := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bad title"}`))
	})

	q.Enqueue(model.QueuedOperation{
		Type: model.OpUpdateNote, ResourceType: model.ResourceNote, ResourceID: "7",
		Payload: model.Payload{UpdateNote: &model.UpdateNotePayload{NoteID: "7", Delta: map[string]any{"title": "x"}}},
	})

	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 422 to count as a failure this round, got %+v", result)
	}
	if result.Remaining != 1 {
		t.Errorf("expected 422 to retry (remaining), got %+v", result)
	}
	ops, _ := q.GetAll()
	if len(ops) != 1 || ops[0].RetryCount != 1 {
		t.Errorf("expected op retained with retryCount bumped, got %+v", ops)
	}
}

func TestDrain_EmptyQueueIsANoop(t *testing.T) {
	d, _, _, _ := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call expected for an empty queue")
	})
	result, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result != (DrainResult{}) {
		t.Errorf("expected zero-value result for empty queue, got %+v", result)
	}
}

func TestDrain_ReentryGuardSkipsConcurrentCall(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d, q, _, _ := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		w.WriteHeader(http.StatusOK)
	})

	q.Enqueue(model.QueuedOperation{
		Type: model.OpDeleteNote, ResourceType: model.ResourceNote, ResourceID: "7",
		Payload: model.Payload{DeleteNote: &model.DeleteNotePayload{NoteID: "7"}},
	})

	done := make(chan DrainResult, 1)
	go func() {
		r, _ := d.Drain(context.Background())
		done <- r
	}()

	<-started
	secondResult, err := d.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain call errored: %v", err)
	}
	if secondResult != (DrainResult{}) {
		t.Errorf("expected re-entrant Drain to be a no-op, got %+v", secondResult)
	}
	close(release)
	<-done
}

func mustSingleOpID(t *testing.T, q *queue.Queue) string {
	t.Helper()
	ops, err := q.GetAll()
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected exactly 1 queued op, got %d", len(ops))
	}
	return ops[0].ID
}
