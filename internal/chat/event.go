package chat

// EventType represents the type of streaming event emitted during a turn.
type EventType int

const (
	EventTypeChunk EventType = iota
	EventTypeDone
	EventTypeError
)

// Event is emitted by Pipeline.StreamTurn through the event channel.
// A stream carries zero or more chunk events followed by exactly one
// terminal event, either done or error, after which the channel closes.
// The done event carries the full reply, the concatenation of every
// chunk that preceded it.
type Event struct {
	Type      EventType
	TextChunk string
	Reply     string
	Error     error
}

func chunkEvent(text string) Event { return Event{Type: EventTypeChunk, TextChunk: text} }

func doneEvent(reply string) Event { return Event{Type: EventTypeDone, Reply: reply} }

func errorEvent(err error) Event { return Event{Type: EventTypeError, Error: err} }
