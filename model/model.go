package model

// Event types understood by the signaling router. Join, signal and chat
// events come in two spellings for client compatibility.
const (
	EventTypeConnected = "connected"

	EventTypeJoinRoom = "join-room"
	EventTypeJoinCall = "join-call"

	EventTypeSetAdmin   = "set-admin"
	EventTypeUserJoined = "user-joined"
	EventTypeUserLeft   = "user-left"

	EventTypeOffer        = "offer"
	EventTypeAnswer       = "answer"
	EventTypeICECandidate = "ice-candidate"
	EventTypeSignal       = "signal"

	EventTypeChatMessage = "chat-message"
	EventTypeSendMessage = "send-message"
)

// Event is the wire envelope for everything passing through a signaling
// session. SRC is always re-assigned by the server based on the websocket
// session; negotiation payloads are forwarded opaque, never inspected.
type Event struct {
	Type    string   `json:"type"`
	SRC     string   `json:"src,omitempty"`
	DST     string   `json:"dst,omitempty"`
	Room    string   `json:"room,omitempty"`
	Sender  string   `json:"sender,omitempty"`
	Body    string   `json:"body,omitempty"`
	Members []string `json:"members,omitempty"`
	Payload any      `json:"payload,omitempty"`
}

// ChatMessage is an immutable backlog entry. Sender and Body are stored
// already sanitized.
type ChatMessage struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
	From   string `json:"from"` // originating connection id
}

// Room holds one live room's state. Members keeps arrival order; the
// first arrival is recorded as Admin. Owned by the memory store, only
// ever touched under its lock.
type Room struct {
	ID       string
	Admin    string
	Members  []string
	Messages []ChatMessage
}

// JoinResult is the atomic outcome of a directory join: admin flag,
// post-join member snapshot and backlog snapshot taken in the same
// critical section.
type JoinResult struct {
	IsAdmin       bool
	AlreadyMember bool
	Members       []string
	Backlog       []ChatMessage
}

// LeaveResult reports a departure. Remaining is the member snapshot
// after removal; Destroyed means the room, its password entry and its
// backlog are already gone.
type LeaveResult struct {
	RoomID    string
	Remaining []string
	Destroyed bool
}

// ChatBroadcast is the atomic outcome of appending a chat message:
// the resolved room and the member snapshot to fan the message out to.
type ChatBroadcast struct {
	RoomID  string
	Members []string
}

const defaultWireTXBuffer = 256

// Wire is one connection's channel pair. RX carries inbound events in
// arrival order; TX is buffered so outbound delivery never blocks the
// router.
type Wire struct {
	RX chan Event
	TX chan Event
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Event, defaultWireTXBuffer),
	}
}
