// internal/adapter/strategy.go
package adapter

import (
	"switchboard/internal/protocol"
)

// TurnRequest carries everything argv construction needs for one turn.
type TurnRequest struct {
	Text       string
	Model      string
	SessionID  string // vendor session to resume; empty on the first turn
	AutoAccept bool
}

// Strategy is the vendor-specific part of an adapter: how to invoke the
// CLI and how to read what it says. Everything else (subprocess
// lifecycle, drip feeding, completion bookkeeping) is shared.
type Strategy struct {
	Vendor string
	Caps   protocol.Capabilities
	Parse  protocol.ParseFunc

	// BuildArgs renders the argv after the binary name.
	BuildArgs func(req TurnRequest) []string

	// PromptViaStdin marks CLIs that read the turn text from stdin
	// instead of a trailing argument.
	PromptViaStdin bool
}

// StrategyFor returns the strategy for a vendor id.
func StrategyFor(vendor string) (Strategy, bool) {
	caps, ok := protocol.ForVendor(vendor)
	if !ok {
		return Strategy{}, false
	}
	parse, ok := protocol.ParserFor(vendor)
	if !ok {
		return Strategy{}, false
	}

	s := Strategy{Vendor: vendor, Caps: caps, Parse: parse}

	switch vendor {
	case protocol.VendorClaude:
		s.BuildArgs = func(req TurnRequest) []string {
			args := []string{"--print", "--verbose", "--output-format", "stream-json"}
			args = appendCommonFlags(args, caps, req)
			// The terminator keeps prompts starting with "-" from
			// being eaten as flags.
			return append(args, "--", req.Text)
		}

	case protocol.VendorGemini:
		s.PromptViaStdin = true
		s.BuildArgs = func(req TurnRequest) []string {
			args := []string{"--output-format", "stream-json"}
			return appendCommonFlags(args, caps, req)
		}

	case protocol.VendorCodex:
		s.BuildArgs = func(req TurnRequest) []string {
			args := []string{"exec", "--json", "--skip-git-repo-check"}
			if req.Model != "" {
				args = append(args, "--model", req.Model)
			}
			if req.AutoAccept && caps.PermissionSkipFlag != "" {
				args = append(args, caps.PermissionSkipFlag)
			}
			// Resume is a positional subcommand for this CLI, not a
			// flag.
			if req.SessionID != "" {
				args = append(args, caps.ResumeFlag, req.SessionID)
			}
			return append(args, req.Text)
		}

	case protocol.VendorOpenCode:
		s.BuildArgs = func(req TurnRequest) []string {
			args := []string{"run", "--format", "json"}
			args = appendCommonFlags(args, caps, req)
			return append(args, req.Text)
		}
	}

	return s, true
}

// appendCommonFlags adds the model, permission-skip and resume flags
// shared by the flag-style CLIs.
func appendCommonFlags(args []string, caps protocol.Capabilities, req TurnRequest) []string {
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.AutoAccept && caps.PermissionSkipFlag != "" {
		args = append(args, caps.PermissionSkipFlag)
	}
	if req.SessionID != "" && caps.ResumeFlag != "" {
		args = append(args, caps.ResumeFlag, req.SessionID)
	}
	return args
}
