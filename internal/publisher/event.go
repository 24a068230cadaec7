// Package publisher holds what the publisher implementations share.
package publisher

// Typed is implemented by payloads that name their event type. Publishers
// copy it into the event_type message attribute.
type Typed interface {
	EventType() string
}

// EventTypeAttribute is the attribute key carrying the event type.
const EventTypeAttribute = "event_type"

// Attributes returns the routing attributes for payload.
func Attributes(payload any) map[string]string {
	attrs := make(map[string]string)
	if t, ok := payload.(Typed); ok && t.EventType() != "" {
		attrs[EventTypeAttribute] = t.EventType()
	}
	return attrs
}
