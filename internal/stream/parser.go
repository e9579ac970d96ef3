// internal/stream/parser.go
// Incremental line parser for subprocess output. Agent CLIs emit one
// JSON object per line, but the bytes arrive in arbitrarily split
// chunks and interleaved with terminal noise, so the parser buffers
// partial lines and silently drops anything that does not decode.
package stream

import (
	"bytes"
	"encoding/json"
)

// MaxLineBytes caps the internal buffer. A "line" that grows past this
// without a newline is treated as noise and discarded.
const MaxLineBytes = 10 * 1024 * 1024

// LineParser splits a byte stream on newlines and yields one decoded
// JSON value per complete line. It never drops or duplicates a record:
// a line split across any number of Feed calls decodes exactly once.
type LineParser struct {
	buf     []byte
	maxLine int
}

// NewLineParser creates a parser with the default buffer cap.
func NewLineParser() *LineParser {
	return &LineParser{maxLine: MaxLineBytes}
}

// Feed appends a chunk to the buffer and returns the JSON values
// decoded from every complete line it now contains. Lines that are
// empty or fail to decode (ANSI sequences, banners, progress noise)
// produce nothing. The trailing incomplete line is retained for the
// next call.
func (p *LineParser) Feed(chunk []byte) []json.RawMessage {
	p.buf = append(p.buf, chunk...)

	var out []json.RawMessage
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		if raw, ok := decodeLine(line); ok {
			out = append(out, raw)
		}
	}

	// Oversized tail without a newline is never going to be a valid
	// event line; drop it so a misbehaving process cannot grow the
	// buffer without bound.
	if len(p.buf) > p.maxLine {
		p.buf = nil
	}
	return out
}

// Flush force-decodes whatever remains in the buffer. Called at
// subprocess exit, since the final line may have no trailing newline.
func (p *LineParser) Flush() []json.RawMessage {
	if len(p.buf) == 0 {
		return nil
	}
	rest := p.buf
	p.buf = nil

	var out []json.RawMessage
	for _, line := range bytes.Split(rest, []byte{'\n'}) {
		if raw, ok := decodeLine(line); ok {
			out = append(out, raw)
		}
	}
	return out
}

// Reset clears all buffered state so the parser can be reused for the
// next turn.
func (p *LineParser) Reset() {
	p.buf = nil
}

// Pending returns the number of buffered bytes awaiting a newline.
func (p *LineParser) Pending() int {
	return len(p.buf)
}

// decodeLine validates one line as JSON and returns a copy of it. The
// copy matters: the parser's buffer is reused across calls.
func decodeLine(line []byte) (json.RawMessage, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	// Event lines are JSON objects or arrays; bare scalars are noise.
	if line[0] != '{' && line[0] != '[' {
		return nil, false
	}
	if !json.Valid(line) {
		return nil, false
	}
	raw := make(json.RawMessage, len(line))
	copy(raw, line)
	return raw, true
}
