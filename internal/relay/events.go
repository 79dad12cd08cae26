package relay

// Event is the variant type delivered on a Node's event stream.
type Event interface {
	event()
}

// Ready fires when a relay connection has completed its subscription.
type Ready struct {
	Relay string
}

// Closed fires when a relay connection goes away. The node keeps redialing
// in the background; Closed is informational.
type Closed struct {
	Relay string
	Err   error
}

// Message is an inbound published envelope addressed to our key.
type Message struct {
	From     string
	Envelope Envelope
}

// Request is an inbound point-to-point envelope that expects a reply on
// Inbox via Node.Reply.
type Request struct {
	From     string
	Inbox    string
	Envelope Envelope
}

func (Ready) event()   {}
func (Closed) event()  {}
func (Message) event() {}
func (Request) event() {}
