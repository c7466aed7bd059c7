package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is one decoded unit of the agent's stream-json protocol. The
// concrete types are AssistantEvent, ResultEvent, and SystemEvent; lines
// with an unrecognized type never produce an Event, only a Warning.
type Event interface {
	eventType() string
}

// ContentBlock is one entry of an assistant message's content list. Type is
// "text" (Text set) or "tool_use" (Name and Input set).
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// AssistantEvent carries an ordered list of content blocks produced by one
// assistant turn.
type AssistantEvent struct {
	Model      string
	StopReason string
	Content    []ContentBlock
	SessionID  string
}

func (AssistantEvent) eventType() string { return "assistant" }

// ResultEvent is the terminal event of an invocation. Exactly one result
// event ends a normal run; a stream that closes without one is an abnormal
// termination.
type ResultEvent struct {
	Subtype    string // "success" or an error subtype
	IsError    bool
	Result     string
	CostUSD    float64
	DurationMs int64
	NumTurns   int
	SessionID  string
}

func (ResultEvent) eventType() string { return "result" }

// Succeeded reports whether this result event represents a successful run.
func (e ResultEvent) Succeeded() bool {
	return e.Subtype == "success" && !e.IsError
}

// SystemEvent is informational output (init banners, notices).
type SystemEvent struct {
	Subtype   string
	Message   string
	SessionID string
}

func (SystemEvent) eventType() string { return "system" }

// Warning reports a stream line that could not be decoded. Parsing never
// fails on bad input; malformed lines are dropped with a warning.
type Warning struct {
	Reason string // "malformed_json" or "unknown_event_type"
	Line   string
}

// wire shapes for decoding

type rawMessage struct {
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []ContentBlock `json:"content"`
}

type rawEvent struct {
	Type         string      `json:"type"`
	Subtype      string      `json:"subtype"`
	Message      *rawMessage `json:"message"`
	Result       string      `json:"result"`
	IsError      bool        `json:"is_error"`
	TotalCostUSD float64     `json:"total_cost_usd"`
	DurationMs   int64       `json:"duration_ms"`
	NumTurns     int         `json:"num_turns"`
	SessionID    string      `json:"session_id"`
	Data         string      `json:"data"`
}

// decodeEvent decodes one stream line into a typed Event. It returns an
// error for undecodable JSON or an unrecognized type discriminator.
func decodeEvent(line []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	switch raw.Type {
	case "assistant":
		ev := AssistantEvent{SessionID: raw.SessionID}
		if raw.Message != nil {
			ev.Model = raw.Message.Model
			ev.StopReason = raw.Message.StopReason
			ev.Content = raw.Message.Content
		}
		return ev, nil
	case "result":
		return ResultEvent{
			Subtype:    raw.Subtype,
			IsError:    raw.IsError,
			Result:     raw.Result,
			CostUSD:    raw.TotalCostUSD,
			DurationMs: raw.DurationMs,
			NumTurns:   raw.NumTurns,
			SessionID:  raw.SessionID,
		}, nil
	case "system":
		msg := raw.Data
		if msg == "" {
			msg = raw.Result
		}
		return SystemEvent{Subtype: raw.Subtype, Message: msg, SessionID: raw.SessionID}, nil
	default:
		return nil, fmt.Errorf("unknown stream event type %q", raw.Type)
	}
}

// StreamParser incrementally decodes newline-delimited stream events from
// raw byte chunks. Incomplete trailing data is buffered across Write calls,
// so chunk boundaries never affect the decoded event sequence. A parser is
// not safe for concurrent use; the client feeds it from one goroutine.
type StreamParser struct {
	buf       []byte
	onEvent   func(Event)
	onWarning func(Warning)
}

// NewStreamParser returns a parser that delivers decoded events to onEvent
// and dropped lines to onWarning. Either callback may be nil.
func NewStreamParser(onEvent func(Event), onWarning func(Warning)) *StreamParser {
	return &StreamParser{onEvent: onEvent, onWarning: onWarning}
}

// Write consumes one chunk of subprocess stdout. Complete lines are decoded
// and emitted immediately; a trailing partial line is held until the next
// Write or Flush.
func (p *StreamParser) Write(chunk []byte) {
	p.buf = append(p.buf, chunk...)
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			return
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		p.handleLine(line)
	}
}

// Flush processes any buffered trailing line without a terminating newline.
// Call it once, at stream end.
func (p *StreamParser) Flush() {
	if len(bytes.TrimSpace(p.buf)) > 0 {
		p.handleLine(p.buf)
	}
	p.buf = nil
}

func (p *StreamParser) handleLine(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}
	ev, err := decodeEvent(trimmed)
	if err != nil {
		p.warn(Warning{Reason: "malformed_json", Line: string(trimmed)})
		return
	}
	if p.onEvent != nil {
		p.onEvent(ev)
	}
}

func (p *StreamParser) warn(w Warning) {
	if p.onWarning != nil {
		p.onWarning(w)
	}
}
