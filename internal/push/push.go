// Package push implements the push subscriber: a websocket subscription
// to the authenticated user's private channel, translating
// note.created/updated/deleted events into cache writes and a UI refresh
// tick.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inkwell-app/notesync-core/internal/cache"
	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/inkwell-app/notesync-core/internal/httpclient"
	"github.com/inkwell-app/notesync-core/internal/model"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// channelAuthRequest is the body POSTed to /broadcasting/auth to obtain a
// signed subscription for a private channel.
type channelAuthRequest struct {
	Channel  string `json:"channel_name"`
	SocketID string `json:"socket_id"`
}

type channelAuthResponse struct {
	Auth string `json:"auth"`
}

// inboundEvent is the envelope every note.* push event arrives in.
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type notePayload struct {
	Note model.Note `json:"note"`
}

type noteIDPayload struct {
	NoteID string `json:"noteId"`
}

// Subscriber owns the websocket connection to the push bus for one logged
// in user.
type Subscriber struct {
	wsURL  string
	http   *httpclient.Client
	cache  *cache.Repository
	events *eventbus.Bus
	log    zerolog.Logger
}

// New builds a Subscriber. wsURL is the push bus endpoint (e.g.
// "wss://host:port/app/<key>"), resolved from config's PushHost/PushPort.
func New(wsURL string, hc *httpclient.Client, c *cache.Repository, events *eventbus.Bus, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		wsURL:  wsURL,
		http:   hc,
		cache:  c,
		events: events,
		log:    log.With().Str("component", "push").Logger(),
	}
}

// Run connects, authorizes the private channel for userID, and processes
// events until ctx is cancelled or the connection drops — in which case it
// returns an error the caller may use to decide whether to reconnect.
// There is no retry loop here; the caller owns backoff (cmd/notesyncd
// drives a reconnect loop around Run).
func (s *Subscriber) Run(ctx context.Context, userID string) error {
	conn, _, err := websocket.Dial(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("push: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	socketID, err := s.readSocketID(ctx, conn)
	if err != nil {
		return fmt.Errorf("push: read connection handshake: %w", err)
	}

	channel := fmt.Sprintf("App.Models.User.%s", userID)
	auth, err := s.authorizeChannel(ctx, channel, socketID)
	if err != nil {
		return fmt.Errorf("push: authorize channel: %w", err)
	}
	if err := s.subscribe(ctx, conn, channel, auth); err != nil {
		return fmt.Errorf("push: subscribe: %w", err)
	}

	s.log.Info().Str("channel", channel).Msg("subscribed to push channel")

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("push: read: %w", err)
		}
		var evt inboundEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.log.Warn().Err(err).Msg("discarding malformed push frame")
			continue
		}
		if err := s.handle(evt); err != nil {
			s.log.Warn().Err(err).Str("event", evt.Event).Msg("failed to apply push event")
			continue
		}
	}
}

// readSocketID waits for the bus's initial connection-established frame.
func (s *Subscriber) readSocketID(ctx context.Context, conn *websocket.Conn) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, raw, err := conn.Read(readCtx)
	if err != nil {
		return "", err
	}
	var frame struct {
		Event string `json:"event"`
		Data  string `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", fmt.Errorf("decode handshake frame: %w", err)
	}
	var data struct {
		SocketID string `json:"socket_id"`
	}
	if err := json.Unmarshal([]byte(frame.Data), &data); err != nil {
		return "", fmt.Errorf("decode handshake payload: %w", err)
	}
	return data.SocketID, nil
}

func (s *Subscriber) authorizeChannel(ctx context.Context, channel, socketID string) (string, error) {
	body, err := json.Marshal(channelAuthRequest{Channel: channel, SocketID: socketID})
	if err != nil {
		return "", err
	}
	resp, err := s.http.Do(ctx, http.MethodPost, "/broadcasting/auth",
		bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var authResp channelAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("decode broadcasting auth response: %w", err)
	}
	return authResp.Auth, nil
}

func (s *Subscriber) subscribe(ctx context.Context, conn *websocket.Conn, channel, auth string) error {
	frame := map[string]any{
		"event": "pusher:subscribe",
		"data": map[string]any{
			"channel": channel,
			"auth":    auth,
		},
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, raw)
}

// handle applies one decoded push event to the cache and publishes a UI
// refresh tick.
func (s *Subscriber) handle(evt inboundEvent) error {
	switch evt.Event {
	case "note.created":
		var payload notePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			return err
		}
		return s.handleCreated(payload.Note)

	case "note.updated":
		var payload notePayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			return err
		}
		return s.handleUpdated(payload.Note)

	case "note.deleted":
		var payload noteIDPayload
		if err := json.Unmarshal(evt.Data, &payload); err != nil {
			return err
		}
		return s.handleDeleted(payload.NoteID)

	default:
		// Connection-management frames (pusher:connection_established,
		// pusher_internal:subscription_succeeded, pings) are expected and
		// ignored here.
		return nil
	}
}

func (s *Subscriber) handleCreated(note model.Note) error {
	if _, ok, err := s.cache.GetByID(note.ID); err != nil {
		return err
	} else if ok {
		// Already present — this is an echo of our own just-synced write.
		return nil
	}
	now := time.Now().UTC()
	if err := s.cache.Upsert(model.CachedNote{ID: note.ID, Data: note, LocallyModified: false, LastSyncedAt: &now}); err != nil {
		return err
	}
	s.publishTick(eventbus.PushNoteCreated, note.ID)
	return nil
}

func (s *Subscriber) handleUpdated(note model.Note) error {
	now := time.Now().UTC()
	existed, err := s.cache.Patch(note.ID, func(n *model.CachedNote) {
		if n.LocallyModified {
			// A local edit still queued for this note wins; it will
			// overwrite the server state again on the next drain.
			return
		}
		n.Data = note
		n.LastSyncedAt = &now
	})
	if err != nil {
		return err
	}
	if !existed {
		return s.handleCreated(note)
	}
	s.publishTick(eventbus.PushNoteUpdated, note.ID)
	return nil
}

func (s *Subscriber) handleDeleted(noteID string) error {
	if err := s.cache.Remove(noteID); err != nil {
		return err
	}
	s.publishTick(eventbus.PushNoteDeleted, noteID)
	return nil
}

func (s *Subscriber) publishTick(kind eventbus.PushNoteEventKind, noteID string) {
	s.events.Publish(eventbus.TopicPushNote, eventbus.PushNoteEvent{Kind: kind, NoteID: noteID})
}

