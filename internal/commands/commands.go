// Package commands handles slash command parsing for the switchboard input box.
package commands

import (
	"strconv"
	"strings"
)

// Command interface for all command types
type Command interface {
	Type() string
}

// Help returns help text
type Help struct{}

func (Help) Type() string { return "help" }

// FocusAgent switches the input box to another agent
type FocusAgent struct {
	AgentID string
}

func (FocusAgent) Type() string { return "agent" }

// SetModel overrides the model used for the focused agent's next turns
type SetModel struct {
	Model string
}

func (SetModel) Type() string { return "model" }

// StartDebate starts a two-agent debate
type StartDebate struct {
	Mode   string
	AgentA string
	AgentB string
	Rounds int
	Topic  string
}

func (StartDebate) Type() string { return "debate" }

// Cancel kills an agent's in-flight turn, or the running debate when no
// agent is named
type Cancel struct {
	AgentID string
}

func (Cancel) Type() string { return "cancel" }

// Retry resends the last message to an agent
type Retry struct {
	AgentID string
}

func (Retry) Type() string { return "retry" }

// LoadFile loads a file into the next prompt
type LoadFile struct {
	Path string
}

func (LoadFile) Type() string { return "file" }

// LoadDir loads a directory summary into the next prompt
type LoadDir struct {
	Path string
}

func (LoadDir) Type() string { return "dir" }

// ShowHistory lists recent debates
type ShowHistory struct {
	Limit int
}

func (ShowHistory) Type() string { return "history" }

// Export writes a debate transcript to markdown
type Export struct {
	DebateID string
}

func (Export) Type() string { return "export" }

// Clear clears the transcript view
type Clear struct{}

func (Clear) Type() string { return "clear" }

// Quit exits the program
type Quit struct{}

func (Quit) Type() string { return "quit" }

// ParseError represents a command parsing error
type ParseError struct {
	Message string
}

func (ParseError) Type() string { return "error" }

// debate modes accepted by /debate.
var debateModes = map[string]bool{
	"side_by_side": true,
	"sequential":   true,
	"multi_round":  true,
}

// Parse parses user input and returns the appropriate Command.
// Returns nil if the input is not a slash command.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help":
		return Help{}

	case "/agent":
		if len(args) == 0 {
			return ParseError{Message: "/agent requires an agent id"}
		}
		return FocusAgent{AgentID: strings.ToLower(args[0])}

	case "/model":
		if len(args) == 0 {
			return ParseError{Message: "/model requires a model name"}
		}
		return SetModel{Model: args[0]}

	case "/debate":
		return parseDebate(args)

	case "/cancel":
		c := Cancel{}
		if len(args) > 0 {
			c.AgentID = strings.ToLower(args[0])
		}
		return c

	case "/retry":
		r := Retry{}
		if len(args) > 0 {
			r.AgentID = strings.ToLower(args[0])
		}
		return r

	case "/file":
		if len(args) == 0 {
			return ParseError{Message: "/file requires a path"}
		}
		return LoadFile{Path: strings.Join(args, " ")}

	case "/dir":
		if len(args) == 0 {
			return ParseError{Message: "/dir requires a path"}
		}
		return LoadDir{Path: strings.Join(args, " ")}

	case "/history":
		h := ShowHistory{Limit: 10}
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return ParseError{Message: "/history takes an optional positive count"}
			}
			h.Limit = n
		}
		return h

	case "/export":
		e := Export{}
		if len(args) > 0 {
			e.DebateID = args[0]
		}
		return e

	case "/clear":
		return Clear{}

	case "/quit", "/exit":
		return Quit{}

	default:
		return ParseError{Message: "unknown command: " + cmd}
	}
}

// parseDebate handles: /debate <mode> <agentA> <agentB> [rounds] <topic...>
func parseDebate(args []string) Command {
	if len(args) < 4 {
		return ParseError{Message: "/debate requires: <mode> <agentA> <agentB> <topic>"}
	}

	mode := strings.ToLower(args[0])
	if !debateModes[mode] {
		return ParseError{Message: "unknown debate mode: " + args[0]}
	}

	cmd := StartDebate{
		Mode:   mode,
		AgentA: strings.ToLower(args[1]),
		AgentB: strings.ToLower(args[2]),
	}

	rest := args[3:]
	// An optional leading number is the round count.
	if n, err := strconv.Atoi(rest[0]); err == nil {
		if n <= 0 {
			return ParseError{Message: "debate rounds must be positive"}
		}
		cmd.Rounds = n
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return ParseError{Message: "/debate requires a topic"}
	}
	cmd.Topic = strings.Join(rest, " ")

	return cmd
}

// HelpText returns the help text for all available commands.
func HelpText() string {
	return `Available commands:
  /help                                    - Show this help
  /agent <id>                              - Switch the input to another agent
  /model <name>                            - Override the focused agent's model
  /debate <mode> <a> <b> [rounds] <topic>  - Start a debate (side_by_side, sequential, multi_round)
  /cancel [agent]                          - Cancel the debate, or kill one agent's turn
  /retry [agent]                           - Resend the last message
  /file <path>                             - Attach a file to the next prompt
  /dir <path>                              - Attach a directory summary to the next prompt
  /history [n]                             - List recent debates
  /export [debate-id]                      - Export a debate to markdown
  /clear                                   - Clear the transcript
  /quit                                    - Exit`
}
