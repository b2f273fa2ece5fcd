package services

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/or0ji/Association-Website-Template/internal/models"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// MaxEventLineSize bounds the bytes an EventDecoder holds back for an unfinished line. A line that
// grows past it is dropped up to and including its newline.
const MaxEventLineSize = 1 << 20

// EventDecoder turns an incrementally received chat event stream into StreamEvent records. Each record
// is a single line of the form "data: <json>"; a line split across chunks is held back until its
// newline arrives, so the decoded events do not depend on where the transport cut the bytes.
//
// The zero value is ready to use. An EventDecoder must not be shared between streams.
type EventDecoder struct {
	buf     []byte
	discard bool
}

// Feed appends chunk to the pending bytes and returns the events of every line the chunk completed.
// Lines that are not data lines, empty payloads, the [DONE] sentinel and payloads that are not valid
// JSON objects are dropped.
func (d *EventDecoder) Feed(chunk []byte) []models.StreamEvent {
	d.buf = append(d.buf, chunk...)

	var events []models.StreamEvent
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		if d.discard {
			d.discard = false
			continue
		}

		ev, ok := ParseEventLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
	}

	if len(d.buf) > MaxEventLineSize {
		d.buf = nil
		d.discard = true
	}

	// Release the backing array once drained.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}

	return events
}

// Pending returns the number of buffered bytes that don't form a complete line yet.
func (d *EventDecoder) Pending() int {
	return len(d.buf)
}

// ParseEventLine decodes a single line of the chat event stream. It reports false for lines the
// client must ignore.
func ParseEventLine(line string) (models.StreamEvent, bool) {
	line = strings.TrimSpace(strings.ToValidUTF8(line, "�"))
	if !strings.HasPrefix(line, dataPrefix) {
		return models.StreamEvent{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" || payload == doneSentinel {
		return models.StreamEvent{}, false
	}

	var ev models.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return models.StreamEvent{}, false
	}

	return ev, true
}
