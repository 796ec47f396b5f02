// Package protocol defines the JSON envelope exchanged with the push server on
// /startport and the payload shapes the status screens consume.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message kinds. register and update drive the live screens; the rest belong to
// the template-management screen and are only modelled here.
const (
	KindRegister      = "register"
	KindUpdate        = "update"
	KindGetData       = "get_data"
	KindSaveData      = "saveData"
	KindDelete        = "delete"
	KindRefresh       = "refresh"
	KindGameTemplates = "gameTemplates"
	KindProcesses     = "processes"
	KindInfoProcess   = "infoProcess"
)

// Data types carried by get_data / saveData / delete requests.
const (
	DataGameTemplates      = "gameTemplates"
	DataProcesses          = "processes"
	DataInfoProcess        = "infoProcess"
	DataSaveFile           = "saveFile"
	DataSaveProcess        = "saveProcess"
	DataDeleteGameTemplate = "deleteGameTemplate"
)

// ErrMalformed is returned by Decode when a frame is not a JSON object.
var ErrMalformed = errors.New("protocol: malformed message")

// Envelope is the common frame shape. Payload stays raw until the handler for
// Type decides how to read it.
type Envelope struct {
	Type    string              `json:"type"`
	Screen  string              `json:"screen,omitempty"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// Decode parses one frame. Any error means the frame should be dropped.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

// Encode serializes an outbound message.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return data, nil
}

// Update is the payload of an update message. Pointer fields distinguish
// "not carried by this message" from "carried and empty".
type Update struct {
	Game    *string   `json:"game,omitempty"`
	Console *string   `json:"console,omitempty"`
	Icon    *string   `json:"icon,omitempty"`
	Paths   []string  `json:"paths,omitempty"`
	Width   Dimension `json:"width,omitempty"`
	Height  Dimension `json:"height,omitempty"`
}

// DecodeUpdate reads the payload of an update envelope.
func DecodeUpdate(env Envelope) (Update, error) {
	var u Update
	if len(env.Payload) == 0 {
		return u, nil
	}
	if err := json.Unmarshal(env.Payload, &u); err != nil {
		return Update{}, fmt.Errorf("%w: update payload: %v", ErrMalformed, err)
	}
	return u, nil
}

// Dimension is a pixel size hint. The server has sent both bare numbers and
// CSS strings ("200px"); anything unparseable or non-positive reads as unset.
type Dimension int

func (d *Dimension) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	*d = 0
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		if v, ok := ParseDimension(str); ok {
			*d = v
		}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) {
		return nil
	}
	*d = Dimension(math.Round(f))
	return nil
}

// ParseDimension accepts "200", "200px" and surrounding whitespace.
func ParseDimension(s string) (Dimension, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.ToLower(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, false
	}
	return Dimension(v), true
}

// Register announces the screen identity right after the connection opens.
type Register struct {
	Type   string `json:"type"`
	Screen string `json:"screen"`
}

func NewRegister(screen string) Register {
	return Register{Type: KindRegister, Screen: screen}
}

// UpdateMessage is the server-side shape of an update; used by tests and tools
// that impersonate the server.
type UpdateMessage struct {
	Type    string `json:"type"`
	Screen  string `json:"screen"`
	Payload any    `json:"payload"`
}

func NewUpdate(screen string, payload any) UpdateMessage {
	return UpdateMessage{Type: KindUpdate, Screen: screen, Payload: payload}
}
