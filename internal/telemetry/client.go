// internal/telemetry/client.go
// Fire-and-forget event reporting to an optional host endpoint. The
// switchboard works identically with no endpoint configured; nothing in
// the turn path ever waits on delivery.
package telemetry

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"switchboard/internal/bus"
)

// Event types posted to the endpoint.
const (
	EventTurnComplete   = "turn_complete"
	EventTurnError      = "turn_error"
	EventSessionStart   = "session_start"
	EventSessionEnd     = "session_end"
	EventCompaction     = "compaction"
	EventTokenWarning   = "token_warning"
	EventDebateStarted  = "debate_started"
	EventDebateFinished = "debate_finished"
	EventGuardianAlert  = "guardian_alert"
)

// maxFieldLen bounds free-text fields in outgoing events.
const maxFieldLen = 200

// Event is the wire shape posted to the endpoint.
type Event struct {
	Type      string            `json:"type"`
	Source    string            `json:"source"`
	AgentID   string            `json:"agent_id,omitempty"`
	Timestamp int64             `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// Client posts events over HTTP with a short timeout. A client built
// with an empty endpoint is permanently disabled and all emits are
// no-ops.
type Client struct {
	endpoint   string
	httpClient *http.Client
	enabled    bool
	unsubs     []func()
	logOnce    sync.Once
}

// New builds a client for the given endpoint. An empty endpoint
// disables the client.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		enabled: endpoint != "",
	}
}

// Enabled reports whether events will actually be posted.
func (c *Client) Enabled() bool {
	return c.enabled
}

// forwardedTypes are the bus events mirrored to the endpoint. Streaming
// deltas and content blocks stay local.
var forwardedTypes = []string{
	bus.TypeComplete,
	bus.TypeError,
	bus.TypeSessionStart,
	bus.TypeSessionEnd,
	bus.TypeCompaction,
	bus.TypeTokenWarning,
}

// Attach subscribes the client to the bus. No-op when disabled.
func (c *Client) Attach(b *bus.Bus) {
	if !c.enabled {
		return
	}
	for _, t := range forwardedTypes {
		c.unsubs = append(c.unsubs, b.Subscribe(t, c.handle))
	}
}

// Detach releases the bus subscriptions.
func (c *Client) Detach() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

func (c *Client) handle(ev bus.Event) {
	switch p := ev.Payload.(type) {
	case bus.CompletePayload:
		data := map[string]string{
			"message_id": p.MessageID,
			"is_error":   strconv.FormatBool(p.IsError),
		}
		if p.Metrics != nil {
			data["input_tokens"] = strconv.Itoa(p.Metrics.InputTokens)
			data["output_tokens"] = strconv.Itoa(p.Metrics.OutputTokens)
			data["duration_ms"] = strconv.FormatInt(p.Metrics.DurationMS, 10)
		}
		c.Emit(EventTurnComplete, ev.AgentID, data)
	case bus.ErrorPayload:
		c.Emit(EventTurnError, ev.AgentID, map[string]string{
			"error":     truncate(p.Err, maxFieldLen),
			"exit_code": strconv.Itoa(p.ExitCode),
			"terminal":  strconv.FormatBool(p.Terminal),
		})
	case bus.SessionPayload:
		eventType := EventSessionStart
		switch ev.Type {
		case bus.TypeSessionEnd:
			eventType = EventSessionEnd
		case bus.TypeCompaction:
			eventType = EventCompaction
		}
		c.Emit(eventType, ev.AgentID, map[string]string{
			"session_id": p.SessionID,
			"model":      p.Model,
		})
	case bus.TokenPayload:
		c.Emit(EventTokenWarning, ev.AgentID, map[string]string{
			"used":   strconv.Itoa(p.Used),
			"window": strconv.Itoa(p.Window),
		})
	}
}

// Emit sends an event asynchronously. Fire and forget.
func (c *Client) Emit(eventType, agentID string, data map[string]string) {
	if !c.enabled {
		return
	}

	event := Event{
		Type:      eventType,
		Source:    "switchboard",
		AgentID:   agentID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}

	go c.send(event)
}

// send performs the HTTP POST. Runs on its own goroutine; delivery
// failures are logged once and otherwise swallowed.
func (c *Client) send(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("[telemetry] failed to marshal event: %v", err)
		return
	}

	resp, err := c.httpClient.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		c.logOnce.Do(func() {
			log.Printf("[telemetry] event delivery failed (endpoint may be down): %v; further failures suppressed", err)
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[telemetry] event rejected with status %d", resp.StatusCode)
	}
}

// DebateStarted reports a new debate session.
func (c *Client) DebateStarted(sessionID, topic, mode string) {
	c.Emit(EventDebateStarted, "", map[string]string{
		"session_id": sessionID,
		"topic":      truncate(topic, maxFieldLen),
		"mode":       mode,
	})
}

// DebateFinished reports a debate session ending in any status.
func (c *Client) DebateFinished(sessionID, status string) {
	c.Emit(EventDebateFinished, "", map[string]string{
		"session_id": sessionID,
		"status":     status,
	})
}

// GuardianAlert reports destructive command patterns flagged for an agent.
func (c *Client) GuardianAlert(agentID string, patterns []string) {
	c.Emit(EventGuardianAlert, agentID, map[string]string{
		"patterns": truncate(strings.Join(patterns, ", "), maxFieldLen),
	})
}

// truncate limits a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
