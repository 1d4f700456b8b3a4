package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

// BridgeClient drives an external whatsapp-web.js bridge process. Calls
// go over HTTP; lifecycle events come back on a Redis Pub/Sub channel
// per session (wa:bridge:<id>), published by the bridge.
type BridgeClient struct {
	baseURL string
	client  *http.Client
	rdb     *redis.Client
	log     *slog.Logger
}

func NewBridgeClient(baseURL string, rdb *redis.Client, log *slog.Logger) *BridgeClient {
	return &BridgeClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		rdb: rdb,
		log: log,
	}
}

type initRequest struct {
	SessionID string `json:"sessionId"`
	Resume    bool   `json:"resume"`
}

func (b *BridgeClient) Initialize(ctx context.Context, sessionID string, auth AuthConfig) (Handle, error) {
	// Subscribe before asking the bridge to start so no event is lost.
	sub := b.rdb.Subscribe(context.Background(), eventChannel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe bridge events: %w", err)
	}

	reqBody, err := json.Marshal(initRequest{SessionID: sessionID, Resume: auth.Resume})
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sessions", bytes.NewReader(reqBody))
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		_ = sub.Close()
		return nil, fmt.Errorf("bridge initialize: unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	h := &bridgeHandle{
		sessionID: sessionID,
		baseURL:   b.baseURL,
		client:    b.client,
		sub:       sub,
		log:       b.log,
		events:    make(chan Event, 16),
	}
	go h.pump()
	return h, nil
}

func eventChannel(sessionID string) string {
	return "wa:bridge:" + sessionID
}

type bridgeHandle struct {
	sessionID string
	baseURL   string
	client    *http.Client
	sub       *redis.PubSub
	log       *slog.Logger
	events    chan Event

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	dispose  sync.Once
}

type bridgeEvent struct {
	Type        string `json:"type"`
	QR          string `json:"qr,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Credentials []byte `json:"credentials,omitempty"`
	From        string `json:"from,omitempty"`
	Body        string `json:"body,omitempty"`
}

func (h *bridgeHandle) pump() {
	defer close(h.events)

	for msg := range h.sub.Channel() {
		var raw bridgeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
			h.log.Warn("bridge event decode failed", "session", h.sessionID, "error", err)
			continue
		}
		h.events <- Event{
			Type:        EventType(raw.Type),
			QR:          raw.QR,
			Reason:      raw.Reason,
			Credentials: raw.Credentials,
			From:        raw.From,
			Body:        raw.Body,
		}
	}
}

func (h *bridgeHandle) Events() <-chan Event { return h.events }

// begin registers an in-flight call so Dispose can wait for it.
func (h *bridgeHandle) begin() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.inflight.Add(1)
	return nil
}

func (h *bridgeHandle) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	if err := h.begin(); err != nil {
		return false, err
	}
	defer h.inflight.Done()

	u := h.baseURL + "/sessions/" + url.PathEscape(h.sessionID) + "/registered?address=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("bridge registered check: unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var out struct {
		Registered bool `json:"registered"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	return out.Registered, nil
}

type sendRequest struct {
	To          string             `json:"to"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

func (h *bridgeHandle) SendMessage(ctx context.Context, address, body string, attachments []model.Attachment) error {
	if err := h.begin(); err != nil {
		return err
	}
	defer h.inflight.Done()

	reqBody, err := json.Marshal(sendRequest{To: address, Body: body, Attachments: attachments})
	if err != nil {
		return err
	}

	u := h.baseURL + "/sessions/" + url.PathEscape(h.sessionID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("bridge send: unexpected status code: %d body=%q", resp.StatusCode, string(respBody))
	}
	return nil
}

func (h *bridgeHandle) Dispose(ctx context.Context) error {
	h.dispose.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		// No new calls can start; wait for the ones already running.
		h.inflight.Wait()

		u := h.baseURL + "/sessions/" + url.PathEscape(h.sessionID)
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
		if err == nil {
			if resp, err := h.client.Do(req); err != nil {
				h.log.Warn("bridge dispose request failed", "session", h.sessionID, "error", err)
			} else {
				_ = resp.Body.Close()
			}
		}

		_ = h.sub.Close()
	})
	return nil
}
