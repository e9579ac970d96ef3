// internal/protocol/capabilities.go
package protocol

// Capabilities is the static invocation surface of one vendor CLI.
// Loaded at start-up, read-only afterwards. Binary may be overridden
// per agent in the config; everything else is fixed per vendor.
type Capabilities struct {
	Vendor string
	Binary string

	// ResumeFlag carries the vendor's session id on turns after the
	// first. Empty means the vendor cannot resume and every turn is a
	// fresh session.
	ResumeFlag string

	// PermissionSkipFlag puts the CLI in auto-accept mode. Empty means
	// no such flag is known for the vendor and auto-accept requests
	// are ignored for it.
	PermissionSkipFlag string

	// EmitsCompaction marks vendors that signal when they summarize
	// or trim their own context window.
	EmitsCompaction bool

	// StreamsDeltas marks vendors that emit token-level text deltas.
	// The others deliver whole blocks and get drip-fed locally.
	StreamsDeltas bool

	// ContextWindow in tokens, used for token warnings.
	ContextWindow int

	// SlashCommands the vendor handles natively; the input box passes
	// these through instead of interpreting them.
	SlashCommands []string
}

var capabilityTable = map[string]Capabilities{
	VendorClaude: {
		Vendor:             VendorClaude,
		Binary:             "claude",
		ResumeFlag:         "--resume",
		PermissionSkipFlag: "--dangerously-skip-permissions",
		EmitsCompaction:    true,
		StreamsDeltas:      true,
		ContextWindow:      200000,
		SlashCommands:      []string{"/compact", "/clear", "/cost"},
	},
	VendorGemini: {
		Vendor:             VendorGemini,
		Binary:             "gemini",
		ResumeFlag:         "--resume",
		PermissionSkipFlag: "--yolo",
		EmitsCompaction:    false,
		StreamsDeltas:      false,
		ContextWindow:      1000000,
		SlashCommands:      []string{"/memory", "/stats", "/tools"},
	},
	VendorCodex: {
		Vendor:             VendorCodex,
		Binary:             "codex",
		ResumeFlag:         "resume",
		PermissionSkipFlag: "--full-auto",
		EmitsCompaction:    false,
		StreamsDeltas:      true,
		ContextWindow:      200000,
		SlashCommands:      nil,
	},
	VendorOpenCode: {
		Vendor:     VendorOpenCode,
		Binary:     "opencode",
		ResumeFlag: "--session",
		// Upstream never settled on an auto-accept flag for this CLI,
		// so none is emitted; config warns when auto-accept is asked
		// for here.
		PermissionSkipFlag: "",
		EmitsCompaction:    true,
		StreamsDeltas:      false,
		ContextWindow:      200000,
		SlashCommands:      []string{"/undo", "/redo", "/share"},
	},
}

// ForVendor returns the capability descriptor for a vendor id.
func ForVendor(vendor string) (Capabilities, bool) {
	c, ok := capabilityTable[vendor]
	return c, ok
}

// Vendors lists the supported vendor ids in stable order.
func Vendors() []string {
	return []string{VendorClaude, VendorGemini, VendorCodex, VendorOpenCode}
}
