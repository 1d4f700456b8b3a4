package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

type bridgeServer struct {
	mu        sync.Mutex
	initBody  initRequest
	sendBody  sendRequest
	sends     int
	deletes   int
	addresses []string
}

func newBridgeServer(t *testing.T, registered bool) (*bridgeServer, *httptest.Server) {
	t.Helper()
	bs := &bridgeServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		bs.mu.Lock()
		defer bs.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&bs.initBody)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("POST /sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		bs.mu.Lock()
		defer bs.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&bs.sendBody)
		bs.sends++
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /sessions/{id}/registered", func(w http.ResponseWriter, r *http.Request) {
		bs.mu.Lock()
		bs.addresses = append(bs.addresses, r.URL.Query().Get("address"))
		bs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"registered": registered})
	})
	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		bs.mu.Lock()
		bs.deletes++
		bs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return bs, srv
}

func newBridgeClient(t *testing.T, baseURL string) (*BridgeClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewBridgeClient(baseURL, rdb, slog.New(slog.DiscardHandler)), mr
}

func TestBridgeClient_InitializeAndEventStream(t *testing.T) {
	t.Parallel()

	bs, srv := newBridgeServer(t, true)
	b, mr := newBridgeClient(t, srv.URL)

	h, err := b.Initialize(context.Background(), "tenant-1", AuthConfig{Resume: true})
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	t.Cleanup(func() { _ = h.Dispose(context.Background()) })

	bs.mu.Lock()
	if bs.initBody.SessionID != "tenant-1" || !bs.initBody.Resume {
		t.Fatalf("unexpected init request %+v", bs.initBody)
	}
	bs.mu.Unlock()

	mr.Publish("wa:bridge:tenant-1", `{"type":"qr","qr":"qr-blob"}`)
	mr.Publish("wa:bridge:tenant-1", `{"type":"disconnected","reason":"phone offline"}`)

	for _, want := range []Event{
		{Type: EventQRChallenge, QR: "qr-blob"},
		{Type: EventDisconnected, Reason: "phone offline"},
	} {
		select {
		case got := <-h.Events():
			if got.Type != want.Type || got.QR != want.QR || got.Reason != want.Reason {
				t.Fatalf("expected event %+v, got %+v", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %+v", want)
		}
	}
}

func TestBridgeClient_InitializeRejectedByBridge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	b, _ := newBridgeClient(t, srv.URL)

	if _, err := b.Initialize(context.Background(), "tenant-1", AuthConfig{}); err == nil {
		t.Fatal("expected initialize error on non-202 response")
	}
}

func TestBridgeClient_SendMessageAndRegisteredCheck(t *testing.T) {
	t.Parallel()

	bs, srv := newBridgeServer(t, false)
	b, _ := newBridgeClient(t, srv.URL)

	h, err := b.Initialize(context.Background(), "tenant-1", AuthConfig{})
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	t.Cleanup(func() { _ = h.Dispose(context.Background()) })

	ctx := context.Background()

	registered, err := h.IsRegisteredUser(ctx, "573001234567@c.us")
	if err != nil {
		t.Fatalf("IsRegisteredUser() error: %v", err)
	}
	if registered {
		t.Fatal("expected registered=false from bridge")
	}

	err = h.SendMessage(ctx, "573001234567@c.us", "hola", []model.Attachment{
		{Name: "doc.pdf", MimeType: "application/pdf", Bytes: []byte("pdf")},
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.sendBody.To != "573001234567@c.us" || bs.sendBody.Body != "hola" {
		t.Fatalf("unexpected send request %+v", bs.sendBody)
	}
	if len(bs.sendBody.Attachments) != 1 || bs.sendBody.Attachments[0].Name != "doc.pdf" {
		t.Fatalf("expected attachment forwarded, got %+v", bs.sendBody.Attachments)
	}
	if len(bs.addresses) != 1 || bs.addresses[0] != "573001234567@c.us" {
		t.Fatalf("unexpected registered-check addresses %+v", bs.addresses)
	}
}

func TestBridgeClient_DisposeIsIdempotentAndClosesEvents(t *testing.T) {
	t.Parallel()

	bs, srv := newBridgeServer(t, true)
	b, _ := newBridgeClient(t, srv.URL)

	h, err := b.Initialize(context.Background(), "tenant-1", AuthConfig{})
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	ctx := context.Background()
	if err := h.Dispose(ctx); err != nil {
		t.Fatalf("Dispose() error: %v", err)
	}
	if err := h.Dispose(ctx); err != nil {
		t.Fatalf("second Dispose() error: %v", err)
	}

	bs.mu.Lock()
	deletes := bs.deletes
	bs.mu.Unlock()
	if deletes != 1 {
		t.Fatalf("expected exactly 1 bridge delete, got %d", deletes)
	}

	select {
	case _, ok := <-h.Events():
		if ok {
			t.Fatal("expected events channel closed, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after dispose")
	}

	if err := h.SendMessage(ctx, "x@c.us", "hi", nil); !errors.Is(err, ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed after dispose, got %v", err)
	}
}
