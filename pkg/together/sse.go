package together

import (
	"bufio"
	"io"
	"strings"
)

const doneSentinel = "[DONE]"

// sseEvent is a single Server-Sent Event.
type sseEvent struct {
	Event string
	Data  string
}

// sseReader parses an SSE stream.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseReader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream ends. An OpenAI-style
// "data: [DONE]" line is returned as an event whose Data is doneSentinel.
func (r *sseReader) Next() (*sseEvent, error) {
	var event sseEvent
	var dataLines []string

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				event.Data = strings.Join(dataLines, "\n")
				return &event, nil
			}
			continue
		}

		// comment / keep-alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if data == doneSentinel {
				return &sseEvent{Event: event.Event, Data: doneSentinel}, nil
			}
			dataLines = append(dataLines, data)
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if len(dataLines) > 0 {
		event.Data = strings.Join(dataLines, "\n")
		return &event, nil
	}
	return nil, io.EOF
}
