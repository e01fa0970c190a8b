package bus

import "time"

// EventKind classifies a source platform event.
type EventKind string

const (
	EventNew     EventKind = "new"
	EventEdited  EventKind = "edited"
	EventDeleted EventKind = "deleted"
)

// ChannelRefKind tags how the source channel identified itself.
type ChannelRefKind string

const (
	ChannelByHandle ChannelRefKind = "handle" // public @username
	ChannelByTitle  ChannelRefKind = "title"  // private channel, title only
	ChannelUnknown  ChannelRefKind = "unknown"
)

// ChannelRef is the channel identity of an event, decided once at ingestion.
// Identifier is already lowercased; handles keep their leading "@".
type ChannelRef struct {
	Kind       ChannelRefKind `json:"kind"`
	Identifier string         `json:"identifier"`
}

// Supported reports whether the event came from a channel the relay can route.
func (r ChannelRef) Supported() bool {
	return r.Kind == ChannelByHandle || r.Kind == ChannelByTitle
}

// SourceEvent is one raw message event emitted by a source session.
type SourceEvent struct {
	Kind       EventKind  `json:"kind"`
	Session    string     `json:"session"`
	Channel    ChannelRef `json:"channel"`
	ChatID     string     `json:"chat_id"`
	MessageID  string     `json:"message_id"`
	Text       string     `json:"text"`
	ReceivedAt time.Time  `json:"received_at"`
}
