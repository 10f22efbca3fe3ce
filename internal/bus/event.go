package bus

import "time"

// Event is a named event published on a relay topic.
type Event struct {
	Topic     string
	Name      string
	Timestamp time.Time
	Payload   any
}
