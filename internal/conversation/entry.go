package conversation

import "github.com/matheus3301/workbook/internal/wire"

// Entry is one line of a thread: either a send still in flight or a message
// the server has acknowledged.
type Entry interface {
	// Key identifies the entry within a thread.
	Key() string
	// Message renders the entry.
	Message() wire.Message
	isEntry()
}

// Pending is an optimistic local send awaiting the server.
type Pending struct {
	TempID string
	Msg    wire.Message
}

// Key implements Entry.
func (p Pending) Key() string { return p.TempID }

// Message implements Entry.
func (p Pending) Message() wire.Message {
	m := p.Msg
	m.ID = p.TempID
	m.Status = wire.StatusSending
	return m
}

func (Pending) isEntry() {}

// Confirmed is a message carrying its server id.
type Confirmed struct {
	Msg wire.Message
}

// Key implements Entry.
func (c Confirmed) Key() string { return c.Msg.ID }

// Message implements Entry.
func (c Confirmed) Message() wire.Message { return c.Msg }

func (Confirmed) isEntry() {}
