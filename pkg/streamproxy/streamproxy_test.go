package streamproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	inbox   []any
	outbox  []map[string]any
	closed  chan struct{}
	readIdx int
}

func newFakeConn(inbox ...any) *fakeConn {
	return &fakeConn{inbox: inbox, closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	c.mu.Lock()
	idx := c.readIdx
	c.readIdx++
	c.mu.Unlock()

	if idx >= len(c.inbox) {
		<-c.closed
		return fmt.Errorf("connection closed")
	}
	data, err := json.Marshal(c.inbox[idx])
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.outbox = append(c.outbox, m)
	return nil
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) events() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.outbox...)
}

func TestBridgeReenvelopesUpstreamEvents(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req upstreamRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		require.Equal(t, "streaming", req.ResponseMode)
		require.Equal(t, "hello", req.Query)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"hi\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	conn := newFakeConn(map[string]any{"query": "hello"})
	bridge := New(conn, upstream.Client(), Config{UpstreamURL: upstream.URL}, "alice")

	go func() {
		time.Sleep(300 * time.Millisecond)
		conn.Close()
	}()
	_ = bridge.Run(context.Background())

	bridge.mu.Lock()
	done := bridge.taskDone
	bridge.mu.Unlock()
	if done != nil {
		<-done
	}

	var sawReenveloped bool
	for _, e := range conn.events() {
		if e["type"] == "chat_event_batch" {
			payload, _ := e["payload"].([]any)
			for _, p := range payload {
				if m, ok := p.(map[string]any); ok && m["answer"] == "hi" {
					sawReenveloped = true
				}
			}
		}
	}
	require.True(t, sawReenveloped, "expected upstream event re-enveloped as chat_event_batch, got %v", conn.events())
}

func TestBridgeStopCancelsInFlight(t *testing.T) {
	blockCh := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"partial\"}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-blockCh
	}))
	defer upstream.Close()

	conn := newFakeConn(
		map[string]any{"query": "long running"},
		map[string]any{"type": "stop_chat_stream"},
	)
	bridge := New(conn, upstream.Client(), Config{UpstreamURL: upstream.URL}, "alice")

	done := make(chan struct{})
	go func() {
		_ = bridge.Run(context.Background())
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	close(blockCh)
	conn.Close()
	<-done
}
