package proxy

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// maxPendingLine caps a partial line held between writes. Longer lines are dropped.
const maxPendingLine = 1 << 20

// Usage is the provider-reported token count of a completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// StreamParser reads a relayed SSE stream incrementally and keeps the last usage object it saw.
// Malformed events are skipped; "[DONE]" ends parsing.
type StreamParser struct {
	pending   []byte
	skipping  bool
	usage     Usage
	haveUsage bool
	done      bool
	errored   bool
	errMsg    string
}

// Write consumes raw stream bytes. It never fails.
func (p *StreamParser) Write(b []byte) (int, error) {
	data := b
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			p.hold(data)
			break
		}
		if p.skipping {
			p.skipping = false
		} else if len(p.pending) > 0 {
			p.pending = append(p.pending, data[:i]...)
			p.line(p.pending)
			p.pending = p.pending[:0]
		} else {
			p.line(data[:i])
		}
		data = data[i+1:]
	}
	return len(b), nil
}

func (p *StreamParser) hold(partial []byte) {
	if p.skipping {
		return
	}
	if len(p.pending)+len(partial) > maxPendingLine {
		p.pending = p.pending[:0]
		p.skipping = true
		return
	}
	p.pending = append(p.pending, partial...)
}

// Close parses a trailing line that arrived without a newline.
func (p *StreamParser) Close() error {
	if len(p.pending) > 0 && !p.skipping {
		p.line(p.pending)
	}
	p.pending = nil
	return nil
}

func (p *StreamParser) line(raw []byte) {
	if p.done {
		return
	}
	line := bytes.TrimRight(raw, "\r")
	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return
	}
	payload = bytes.TrimSpace(payload)
	if bytes.Equal(payload, []byte("[DONE]")) {
		p.done = true
		return
	}
	if !gjson.ValidBytes(payload) {
		return
	}

	// Providers send "error": null on healthy chunks.
	if e := gjson.GetBytes(payload, "error"); e.IsObject() || (e.Type == gjson.String && e.Str != "") {
		p.errored = true
		p.errMsg = e.Get("message").String()
		if p.errMsg == "" {
			p.errMsg = e.String()
		}
	}

	u := gjson.GetBytes(payload, "usage")
	if !u.IsObject() {
		return
	}
	p.usage = Usage{
		PromptTokens:     u.Get("prompt_tokens").Int(),
		CompletionTokens: u.Get("completion_tokens").Int(),
	}
	p.haveUsage = true
}

// Usage returns the last usage object seen, or zero usage.
func (p *StreamParser) Usage() (Usage, bool) {
	return p.usage, p.haveUsage
}

// Done reports whether the terminal event arrived.
func (p *StreamParser) Done() bool {
	return p.done
}

// Err returns the in-band error message, if the stream carried one.
func (p *StreamParser) Err() (string, bool) {
	return p.errMsg, p.errored
}
