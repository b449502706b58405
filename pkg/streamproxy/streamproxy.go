// Package streamproxy is the legacy WebSocket-to-SSE bridge: it
// forwards a chat query to a Dify-style upstream agent over
// streaming HTTP and re-envelopes each SSE chunk as a chat_event_batch
// WS frame, mirroring the normalization the newer orchestrator in
// pkg/chat performs for its own upstream.
package streamproxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/docassistant/docassistant/internal/logger"
)

// Conn is the narrow WebSocket surface Bridge needs.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Config configures the upstream Dify-style agent endpoint.
type Config struct {
	UpstreamURL string
	APIKey      string
}

type inbound struct {
	Type           string         `json:"type"`
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	ConversationID string         `json:"conversation_id"`
}

type upstreamRequest struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	User           string         `json:"user"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// Bridge drives one WebSocket connection's legacy streaming session.
type Bridge struct {
	conn       Conn
	httpClient *http.Client
	cfg        Config
	username   string

	writeMu sync.Mutex

	mu         sync.Mutex
	stopFlag   bool
	cancelTask context.CancelFunc
	taskDone   chan struct{}
}

// New constructs a Bridge bound to an already-attached connection.
func New(conn Conn, httpClient *http.Client, cfg Config, username string) *Bridge {
	return &Bridge{conn: conn, httpClient: httpClient, cfg: cfg, username: username}
}

// Run blocks reading inbound WS messages until the connection closes
// or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		var msg inbound
		if err := b.conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch {
		case msg.Type == "stop_chat_stream":
			b.stop()
			b.send(map[string]any{"type": "stop_request_processed"})

		case msg.Query != "":
			b.startStream(ctx, msg)
		}
	}
}

func (b *Bridge) stop() {
	b.mu.Lock()
	b.stopFlag = true
	if b.cancelTask != nil {
		b.cancelTask()
	}
	b.mu.Unlock()
}

func (b *Bridge) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopFlag
}

func (b *Bridge) startStream(ctx context.Context, msg inbound) {
	b.mu.Lock()
	if b.cancelTask != nil {
		b.cancelTask()
		<-b.taskDone
	}
	b.stopFlag = false
	taskCtx, cancel := context.WithCancel(ctx)
	b.cancelTask = cancel
	done := make(chan struct{})
	b.taskDone = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer b.send(map[string]any{"event": "message_end"})
		if err := b.streamUpstream(taskCtx, msg); err != nil && taskCtx.Err() == nil && !b.isStopped() {
			logger.WarnCtx(taskCtx, "stream proxy upstream call failed", logger.Username(b.username), logger.Err(err))
			b.send(map[string]any{"type": "error", "content": fmt.Sprintf("upstream stream failed: %v", err)})
		}
	}()
}

// streamUpstream posts the query to the Dify-style agent and
// re-envelopes every SSE data chunk as a chat_event_batch frame.
func (b *Bridge) streamUpstream(ctx context.Context, msg inbound) error {
	reqBody := upstreamRequest{
		Query:          msg.Query,
		Inputs:         msg.Inputs,
		User:           b.username,
		ResponseMode:   "streaming",
		ConversationID: msg.ConversationID,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if b.isStopped() || ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var parsed any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			continue
		}
		b.send(map[string]any{
			"type":    "chat_event_batch",
			"payload": []any{parsed},
		})
	}
	return scanner.Err()
}

func (b *Bridge) send(payload map[string]any) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(payload); err != nil {
		logger.Warn("failed to write stream proxy event", logger.Username(b.username), logger.Err(err))
	}
}
