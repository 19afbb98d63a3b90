package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Engine.IO v4 packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types.
const (
	packetConnect      byte = '0'
	packetDisconnect   byte = '1'
	packetEvent        byte = '2'
	packetAck          byte = '3'
	packetConnectError byte = '4'
	packetBinaryEvent  byte = '5'
	packetBinaryAck    byte = '6'
)

var errEmptyPacket = errors.New("socketio: empty packet")

// openPayload is the body of the Engine.IO open packet.
type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// packet is a decoded Socket.IO packet.
type packet struct {
	Type      byte
	Namespace string
	AckID     int64
	HasAck    bool
	Data      json.RawMessage
}

// encodePacket renders p as a complete Engine.IO message frame.
func encodePacket(p packet) []byte {
	var buf bytes.Buffer
	buf.WriteByte(engineMessage)
	buf.WriteByte(p.Type)
	if p.Namespace != "" && p.Namespace != "/" {
		buf.WriteString(p.Namespace)
		buf.WriteByte(',')
	}
	if p.HasAck {
		buf.WriteString(strconv.FormatInt(p.AckID, 10))
	}
	buf.Write(p.Data)
	return buf.Bytes()
}

// decodePacket parses a Socket.IO packet (the Engine.IO message body without
// its leading type byte).
func decodePacket(b []byte) (packet, error) {
	if len(b) == 0 {
		return packet{}, errEmptyPacket
	}
	p := packet{Type: b[0], Namespace: "/"}
	rest := b[1:]

	if p.Type == packetBinaryEvent || p.Type == packetBinaryAck {
		return packet{}, fmt.Errorf("socketio: binary packets are not supported")
	}

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			return p, nil
		}
		p.Namespace = string(rest[:end])
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseInt(string(rest[:digits]), 10, 64)
		if err != nil {
			return packet{}, fmt.Errorf("socketio: ack id: %w", err)
		}
		p.AckID = id
		p.HasAck = true
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// encodeEvent builds an EVENT packet for namespace.
func encodeEvent(namespace, name string, payload any) ([]byte, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("socketio: marshal event %s: %w", name, err)
	}
	return encodePacket(packet{Type: packetEvent, Namespace: namespace, Data: data}), nil
}

// decodeEvent splits an EVENT payload into its name and first argument.
func decodeEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return "", nil, fmt.Errorf("socketio: decode event: %w", err)
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("socketio: event without name")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("socketio: event name: %w", err)
	}
	if len(args) == 1 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// connectError is the body of a CONNECT_ERROR packet.
type connectError struct {
	Message string `json:"message"`
}
