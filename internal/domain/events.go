package domain

// TransportEvent is the closed set of events a transport session delivers.
// Consumers switch over the concrete types below.
type TransportEvent interface {
	transportEvent()
}

// TurnStarted marks the beginning of a speaker's turn.
type TurnStarted struct {
	Speaker Speaker
}

// TurnText carries interim or final text for the current turn.
// EntryHint is a transport-side item id that groups updates of one turn.
type TurnText struct {
	Speaker   Speaker
	EntryHint string
	Text      string
	IsFinal   bool
}

// TurnEnded marks the end of a turn with the complete text, if known.
type TurnEnded struct {
	Speaker  Speaker
	FullText string
}

// Interrupted reports that a speaker's turn was cut short.
type Interrupted struct {
	Speaker Speaker
}

// TransportFailure is a fatal, connection-level error.
type TransportFailure struct {
	Reason string
}

func (TurnStarted) transportEvent()      {}
func (TurnText) transportEvent()         {}
func (TurnEnded) transportEvent()        {}
func (Interrupted) transportEvent()      {}
func (TransportFailure) transportEvent() {}
