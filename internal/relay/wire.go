package relay

// Wire frames exchanged with a relay, one JSON object per WebSocket text
// message.
//
// Client to relay:
//
//	{"type":"subscribe","key":<pubkey>}          deliver frames addressed to key
//	{"type":"publish","to":..,"from":..,"envelope":{..}}   fan-out to all subscribers of "to"
//	{"type":"request","to":..,"from":..,"inbox":..,"envelope":{..}}   point-to-point, reply expected
//	{"type":"reply","to":..,"inbox":..,"envelope":{..}}
//	{"type":"ping","to":..,"from":..,"inbox":..}
//	{"type":"pong","to":..,"inbox":..}
//
// Relay to client:
//
//	{"type":"message","from":..,"envelope":{..}}   a published envelope
//	{"type":"request","from":..,"inbox":..,"envelope":{..}}
//	{"type":"inbox","inbox":..,"envelope":{..}}    a reply to an outstanding request
//	{"type":"ping","from":..,"inbox":..}
//	{"type":"pong","inbox":..}
//
// The asymmetry matters: publish fans out to every subscriber of the
// recipient key (other devices holding the same key share included), while
// request/reply is routed to a single inbox and never fans out.
type frame struct {
	Type     string    `json:"type"`
	Key      string    `json:"key,omitempty"`
	To       string    `json:"to,omitempty"`
	From     string    `json:"from,omitempty"`
	Inbox    string    `json:"inbox,omitempty"`
	Envelope *Envelope `json:"envelope,omitempty"`
}

const (
	frameSubscribe = "subscribe"
	framePublish   = "publish"
	frameRequest   = "request"
	frameReply     = "reply"
	frameMessage   = "message"
	frameInbox     = "inbox"
	framePing      = "ping"
	framePong      = "pong"
)
