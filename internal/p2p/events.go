package p2p

type EventType string

const (
	EventPeerConnected    EventType = "peer_connected"
	EventPeerDisconnected EventType = "peer_disconnected"
	EventObjectReceived   EventType = "object_received"
)

type Event struct {
	Type     EventType
	PeerID   string
	PeerAddr string
	Inbound  bool
	Command  string
	Vector   string
	Err      string
}
