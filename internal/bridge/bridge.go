// internal/bridge/bridge.go
// Package bridge connects adapter callbacks to the event bus. Each
// normalized callback becomes a typed event attributed to the agent's
// current in-flight message id, which the UI store owns.
package bridge

import (
	"switchboard/internal/adapter"
	"switchboard/internal/bus"
	"switchboard/internal/message"
)

// MessageResolver maps agents to in-flight message ids. The UI store
// implements it: BeginTurn creates the streaming assistant message and
// InFlight reports the one currently open for an agent.
type MessageResolver interface {
	BeginTurn(agentID, model string) string
	InFlight(agentID string) (string, bool)
}

// Agent is the callback surface the bridge consumes. *adapter.Adapter
// implements it.
type Agent interface {
	ID() string
	Model() string
	OnLifecycle(fn func(adapter.LifecycleEvent))
	OnContentBlock(fn func(message.ContentBlock))
	OnStreamText(fn func(string))
	OnStreamThinking(fn func(string))
	OnToolResult(fn func(message.ContentBlock))
	OnComplete(fn func(adapter.Completion))
	OnError(fn func(adapter.TurnError))
	OnStatus(fn func(from, to adapter.Status))
}

// Bridge publishes adapter activity onto the bus.
type Bridge struct {
	bus      *bus.Bus
	resolver MessageResolver
}

// New creates a bridge. Call Connect (or ConnectAll) to attach agents.
func New(b *bus.Bus, resolver MessageResolver) *Bridge {
	return &Bridge{bus: b, resolver: resolver}
}

// ConnectAll attaches every adapter in the registry.
func (br *Bridge) ConnectAll(reg *adapter.Registry) {
	for _, a := range reg.All() {
		br.Connect(a)
	}
}

// Connect registers bus-publishing callbacks on one agent. The adapter
// owns the registrations; they are released by adapter.Dispose.
func (br *Bridge) Connect(a Agent) {
	agentID := a.ID()

	a.OnStatus(func(from, to adapter.Status) {
		if to == adapter.StatusStarting {
			// A turn the UI did not initiate, such as a retry resend,
			// still needs a message to stream into.
			if _, ok := br.resolver.InFlight(agentID); !ok {
				br.resolver.BeginTurn(agentID, a.Model())
			}
		}
		br.bus.Emit(bus.Event{
			Type:    bus.TypeStatus,
			AgentID: agentID,
			Payload: bus.StatusPayload{From: from.String(), To: to.String()},
		})
	})

	a.OnContentBlock(func(b message.ContentBlock) {
		id, _ := br.resolver.InFlight(agentID)
		br.bus.Emit(bus.Event{
			Type:    bus.TypeContentBlock,
			AgentID: agentID,
			Payload: bus.BlockPayload{MessageID: id, Block: b},
		})
	})

	a.OnStreamText(func(text string) {
		id, _ := br.resolver.InFlight(agentID)
		br.bus.Emit(bus.Event{
			Type:    bus.TypeStreamText,
			AgentID: agentID,
			Payload: bus.TextPayload{MessageID: id, Text: text},
		})
	})

	a.OnStreamThinking(func(text string) {
		id, _ := br.resolver.InFlight(agentID)
		br.bus.Emit(bus.Event{
			Type:    bus.TypeStreamThinking,
			AgentID: agentID,
			Payload: bus.TextPayload{MessageID: id, Text: text},
		})
	})

	a.OnToolResult(func(b message.ContentBlock) {
		id, _ := br.resolver.InFlight(agentID)
		br.bus.Emit(bus.Event{
			Type:    bus.TypeToolResult,
			AgentID: agentID,
			Payload: bus.BlockPayload{MessageID: id, Block: b},
		})
	})

	a.OnComplete(func(c adapter.Completion) {
		id, _ := br.resolver.InFlight(agentID)
		br.bus.Emit(bus.Event{
			Type:    bus.TypeComplete,
			AgentID: agentID,
			Payload: bus.CompletePayload{MessageID: id, Text: c.Text, IsError: c.IsError, Metrics: c.Metrics},
		})
	})

	a.OnError(func(e adapter.TurnError) {
		id, _ := br.resolver.InFlight(agentID)
		br.bus.Emit(bus.Event{
			Type:    bus.TypeError,
			AgentID: agentID,
			Payload: bus.ErrorPayload{MessageID: id, Err: e.Err, ExitCode: e.ExitCode},
		})
	})

	a.OnLifecycle(func(ev adapter.LifecycleEvent) {
		switch ev.Kind {
		case adapter.LifecycleSessionStart:
			br.bus.Emit(bus.Event{
				Type:    bus.TypeSessionStart,
				AgentID: agentID,
				Payload: bus.SessionPayload{SessionID: ev.SessionID, Model: ev.Model},
			})
		case adapter.LifecycleSessionEnd:
			br.bus.Emit(bus.Event{
				Type:    bus.TypeSessionEnd,
				AgentID: agentID,
				Payload: bus.SessionPayload{SessionID: ev.SessionID, Model: ev.Model},
			})
		case adapter.LifecycleCompaction:
			br.bus.Emit(bus.Event{
				Type:    bus.TypeCompaction,
				AgentID: agentID,
				Payload: bus.SessionPayload{SessionID: ev.SessionID, Model: ev.Model},
			})
		case adapter.LifecycleTokenWarning:
			br.bus.Emit(bus.Event{
				Type:    bus.TypeTokenWarning,
				AgentID: agentID,
				Payload: bus.TokenPayload{Used: ev.Used, Window: ev.Window},
			})
		}
	})
}
