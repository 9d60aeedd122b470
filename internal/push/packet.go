package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO v5 packet types (carried inside Engine.IO messages).
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

var errEmptyPacket = errors.New("empty packet")

type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

type socketPacket struct {
	Type      byte
	Namespace string
	AckID     *int
	Data      json.RawMessage
}

func splitEngine(frame string) (byte, string, error) {
	if frame == "" {
		return 0, "", errEmptyPacket
	}
	return frame[0], frame[1:], nil
}

func decodeSocket(s string) (socketPacket, error) {
	if s == "" {
		return socketPacket{}, errEmptyPacket
	}
	p := socketPacket{Type: s[0], Namespace: "/"}
	rest := s[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(rest[:i])
		if err != nil {
			return p, fmt.Errorf("ack id: %w", err)
		}
		p.AckID = &id
		rest = rest[i:]
	}
	if rest != "" {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// eventArgs splits an EVENT payload ["name", arg, ...] into the name and the
// first argument.
func eventArgs(data json.RawMessage) (string, json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return "", nil, fmt.Errorf("event payload: %w", err)
	}
	if len(arr) == 0 {
		return "", nil, errors.New("event payload: missing name")
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name: %w", err)
	}
	if len(arr) < 2 {
		return name, json.RawMessage("null"), nil
	}
	return name, arr[1], nil
}

func encodeEvent(event string, payload any) (string, error) {
	b, err := json.Marshal([]any{event, payload})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", event, err)
	}
	return string([]byte{eioMessage, sioEvent}) + string(b), nil
}

func encodeConnect(auth any) (string, error) {
	prefix := string([]byte{eioMessage, sioConnect})
	if auth == nil {
		return prefix, nil
	}
	b, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("encode connect: %w", err)
	}
	return prefix + string(b), nil
}
