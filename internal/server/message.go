// Package server defines the signaling message schema shared by the hub,
// clients, and tests. Every frame on the wire is one JSON-encoded Message.
package server

import (
	"encoding/json"
	"strings"
)

// Message type tags. The set is closed; frames with an unrecognized type
// are ignored by the dispatcher.
const (
	TypeInit              = "init"
	TypeJoin              = "join"
	TypeJoined            = "joined"
	TypeSignal            = "signal"
	TypePing              = "ping"
	TypeHandshakeBegin    = "handshake-begin"
	TypeHandshakeResponse = "handshake-response"
	TypeHandshakeJoin     = "handshake-join"
	TypeHandshakeComplete = "handshake-complete"
)

// Message is the tagged union exchanged over the WebSocket connection.
// Type discriminates; all other fields are populated per type as described
// in the protocol table. Code is a pointer because 0 is a valid pairing
// code and must survive serialization.
type Message struct {
	Type           string   `json:"type"`
	Room           string   `json:"room,omitempty"`
	YourPeerID     string   `json:"yourPeerId,omitempty"`
	OtherPeerIDs   []string `json:"otherPeerIds,omitempty"`
	SenderPeerID   string   `json:"senderPeerId,omitempty"`
	ReceiverPeerID string   `json:"receiverPeerId,omitempty"`
	Data           string   `json:"data,omitempty"`
	YourID         string   `json:"yourId,omitempty"`
	OtherID        string   `json:"otherId,omitempty"`
	Code           *int     `json:"code,omitempty"`
}

// decodeMessage parses a raw frame into a Message. An error here means the
// frame is malformed and the offending connection must be closed.
func decodeMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Message) encode() ([]byte, error) {
	return json.Marshal(m)
}

func newInitMessage(peerID string) *Message {
	return &Message{Type: TypeInit, YourPeerID: peerID}
}

func newJoinedMessage(roster []string) *Message {
	return &Message{Type: TypeJoined, OtherPeerIDs: roster}
}

func newHandshakeResponseMessage(peerID string, code int) *Message {
	return &Message{Type: TypeHandshakeResponse, YourID: peerID, Code: &code}
}

func newHandshakeCompleteMessage(yourID, otherID string) *Message {
	return &Message{Type: TypeHandshakeComplete, YourID: yourID, OtherID: otherID}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
