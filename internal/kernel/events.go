// Package kernel is the execution core: it owns the mapping from
// workspaces to live execution contexts, runs wrapper programs inside
// them, and turns their output into records and event streams.
package kernel

import "encoding/json"

// Event types on the NDJSON wire between the streaming wrapper and the
// stream runner, and between the stream runner and its caller.
const (
	EventStdout = "stdout"
	EventStderr = "stderr"
	EventImage  = "image"
	EventResult = "result"
	EventError  = "error"
	EventDone   = "done"
)

// Event is one NDJSON line. Which payload fields are set depends on Type:
// Data for stdout/stderr/image, Format+Content for result, Message for
// error, nothing extra for done.
type Event struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Format  string `json:"format,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// Encode renders the event as one newline-terminated NDJSON line.
func (e Event) Encode() []byte {
	b, _ := json.Marshal(e)
	return append(b, '\n')
}

func stdoutEvent(data string) Event {
	return Event{Type: EventStdout, Data: data}
}

func stderrEvent(data string) Event {
	return Event{Type: EventStderr, Data: data}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

func doneEvent() Event {
	return Event{Type: EventDone}
}
