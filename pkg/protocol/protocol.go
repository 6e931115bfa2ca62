package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Message is one JSON text frame: a type token plus an optional payload
// whose shape depends on the type.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes v as the payload of a typ frame. A nil v leaves the
// payload out.
func NewMessage(typ string, v any) (Message, error) {
	if !isToken(typ) {
		return Message{}, fmt.Errorf("invalid type token: %q", typ)
	}
	m := Message{Type: typ}
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s: %w", typ, err)
		}
		m.Data = b
	}
	return m, nil
}

func (m Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

func (m Message) String() string {
	b, err := m.Bytes()
	if err != nil {
		return m.Type
	}
	return string(b)
}

// Decode unmarshals the payload into v. A frame without payload leaves v
// untouched.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

func Parse(frame []byte) (Message, error) {
	if len(strings.TrimSpace(string(frame))) == 0 {
		return Message{}, errors.New("empty message")
	}
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("malformed frame: %w", err)
	}
	if !isToken(m.Type) {
		return Message{}, fmt.Errorf("invalid type token: %q", m.Type)
	}
	return m, nil
}

var tokenRe = regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}
