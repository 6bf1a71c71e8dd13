// internal/domain/chat/stream.go
package chat

// EventType discriminates the payloads of the message stream.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// StopReasonLength is reported when the model hit its output limit.
const StopReasonLength = "length"

// StreamEvent is one decoded server-sent event of an assistant reply.
// Which fields are set depends on Type.
type StreamEvent struct {
	Type           EventType `json:"type"`
	Content        string    `json:"content,omitempty"`
	StopReason     *string   `json:"stopReason,omitempty"`
	SavedMessageID string    `json:"savedMessageId,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// Reply is the finalized assistant message of a completed stream.
type Reply struct {
	MessageID  string
	Content    string
	StopReason string
}

// Truncated reports whether the reply was cut off by the output limit.
func (r Reply) Truncated() bool {
	return r.StopReason == StopReasonLength
}
