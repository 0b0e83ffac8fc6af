// Package httpclient implements the HTTP client facade: base URL,
// bearer-token injection, 401→session-expired handling, a single default
// timeout, and a three-category error projection (Network/Http/Setup) so
// the sync driver never has to parse net/http errors itself.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/rs/zerolog"
)

// TokenStore is the auth boundary httpclient depends on: get the current
// bearer token (if any) and clear it on 401, without the client needing to
// know whether it is backed by an OS keychain or memory.
type TokenStore interface {
	GetToken() (token string, present bool, err error)
	ClearSession() error
}

// EventPublisher is the narrow slice of eventbus.Bus the client needs, so
// it can publish "session expired" without importing the concrete bus
// type.
type EventPublisher interface {
	Publish(topic string, event any)
}

// Client is the Offline API's and the Sync Driver's single gateway to the
// remote notes API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	events  EventPublisher
	log     zerolog.Logger
}

// New builds a Client with the given base URL and timeout (default 60s).
func New(baseURL string, timeout time.Duration, tokens TokenStore, events EventPublisher, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		events:  events,
		log:     log.With().Str("component", "httpclient").Logger(),
	}
}

// Do sends req against the configured base URL (req.URL is expected to be
// a path, e.g. "/notes"; Do resolves it against baseURL), injecting the
// bearer token if one is present, and projects the outcome into
// NetworkError / HTTPError / SetupError. A cached token already past its
// exp claim (ExpiresProactively) short-circuits straight to the same
// session-expired handling a live 401 gets, without a doomed round-trip.
// A 2xx response is returned unconsumed; callers must close resp.Body.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	correlationID := uuid.NewString()
	logger := c.log.With().Str("method", method).Str("path", path).Str("correlationId", correlationID).Logger()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, SetupError{Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("X-Correlation-ID", correlationID)

	token, present, err := c.tokens.GetToken()
	if err != nil {
		return nil, SetupError{Err: fmt.Errorf("read token: %w", err)}
	}
	if present && ExpiresProactively(token) {
		logger.Warn().Msg("cached token expired — clearing session without a round-trip")
		return c.handleUnauthorized(&http.Response{Body: http.NoBody}, true, &logger)
	}
	if present {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("http request failed")
		return nil, NetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return c.handleUnauthorized(resp, present, &logger)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, HTTPError{Status: resp.StatusCode, Body: bodyBytes}
	}

	return resp, nil
}

// handleUnauthorized handles a 401 with a present token by clearing the
// token and user slot and publishing a session-expired event before
// rejecting the request. A 401 with no token is a normal unauth HTTPError.
func (c *Client) handleUnauthorized(resp *http.Response, hadToken bool, logger *zerolog.Logger) (*http.Response, error) {
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)

	if !hadToken {
		return nil, HTTPError{Status: http.StatusUnauthorized, Body: bodyBytes}
	}

	logger.Warn().Msg("401 with token present — clearing session")
	if err := c.tokens.ClearSession(); err != nil {
		logger.Error().Err(err).Msg("failed to clear session after 401")
	}
	if c.events != nil {
		c.events.Publish(eventbus.TopicAuthChanged, eventbus.AuthChangedEvent{LoggedIn: false, Reason: "401"})
	}
	return nil, HTTPError{Status: http.StatusUnauthorized, Body: bodyBytes}
}

// Multipart builds a single-file multipart/form-data body for the
// UPLOAD_IMAGE / CREATE_AUDIO / CREATE_DRAWING handlers, all of which
// upload one named file field.
func Multipart(fieldName, fileName string, content io.Reader) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		return nil, "", fmt.Errorf("httpclient: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, "", fmt.Errorf("httpclient: copy file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("httpclient: close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// ExpiresProactively reports whether the cached bearer token (an
// unverified JWT — the server remains the signature authority) is at or
// past its exp claim. Used to avoid a doomed round-trip before a drain.
func ExpiresProactively(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}
