// Package p2p implements the peer transport: one TCP connection per peer
// carrying newline-delimited JSON messages, with an independent send queue
// and receive loop per peer so a slow peer never blocks the others.
package p2p

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the five protocol message kinds.
type MessageType string

// Set of message kinds that move between nodes.
const (
	TypePeerAnnounce   MessageType = "peer_announce"
	TypeNewBlock       MessageType = "new_block"
	TypeNewTransaction MessageType = "new_transaction"
	TypeRequestChain   MessageType = "request_chain"
	TypeChainResponse  MessageType = "chain_response"
)

// Message is the wire frame exchanged between nodes, one JSON document
// per line.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Sender  string          `json:"sender"`
}

// NewMessage constructs a wire frame carrying the specified payload.
func NewMessage(msgType MessageType, payload any, sender string) (Message, error) {
	msg := Message{
		Type:   msgType,
		Sender: sender,
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}

	return msg, nil
}

// announcePayload is exchanged on connect so a peer is known by the address
// it listens on, not the ephemeral port it dialed from.
type announcePayload struct {
	Host string `json:"host"`
}
