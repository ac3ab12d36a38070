package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeAck     = "ACK"
	TypeEvent   = "EVENT"
	TypePing    = "PING"
	TypePong    = "PONG"
)

// Command ops carried by CMD messages.
const (
	OpFarmStart   = "farm-start"
	OpFarmStop    = "farm-stop"
	OpCraftStart  = "craft-start"
	OpCraftStop   = "craft-stop"
	OpBreedStart  = "breed-start"
	OpBreedStop   = "breed-stop"
	OpCombatStart = "combat-start"
	OpCombatStop  = "combat-stop"
	OpLogout      = "logout"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
