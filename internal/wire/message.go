package wire

import (
	"encoding/json"
	"fmt"
)

// Device -> server message kinds.
const (
	TypeAuth       = "auth"
	TypeScreen     = "screen"
	TypeResult     = "result"
	TypePong       = "pong"
	TypeHeartbeat  = "heartbeat"
	TypeApps       = "apps"
	TypeVoiceStart = "voice_start"
	TypeVoiceChunk = "voice_chunk"
	TypeVoiceStop  = "voice_stop"
)

// Server -> device message kinds.
const (
	TypeAuthOK    = "auth_ok"
	TypeGoal      = "goal"
	TypeStopGoal  = "stop_goal"
	TypeGetScreen = "get_screen"
	TypeAction    = "action"
	TypePing      = "ping"
)

// Message is one decoded inbound envelope. Exactly one of the concrete payload
// types below implements it.
type Message interface {
	// Kind returns the wire `type` discriminator.
	Kind() string
}

// AuthMessage opens a device connection. It must be the first message on the
// transport; a malformed auth is fatal to the handshake.
type AuthMessage struct {
	// APIKey is the device credential.
	APIKey string
	// DeviceInfo describes the authenticating device.
	DeviceInfo DeviceInfo
}

// DeviceInfo carries the capabilities a device negotiates at auth time.
type DeviceInfo struct {
	// DeviceID is the stable device identity surviving reconnects.
	DeviceID string `json:"deviceId"`
	// Model is the device model name (optional).
	Model string `json:"model,omitempty"`
	// Manufacturer is the device manufacturer (optional).
	Manufacturer string `json:"manufacturer,omitempty"`
	// ScreenWidth is the device screen width in pixels.
	ScreenWidth int `json:"screenWidth,omitempty"`
	// ScreenHeight is the device screen height in pixels.
	ScreenHeight int `json:"screenHeight,omitempty"`
}

// ScreenMessage is the device response to a get_screen request.
type ScreenMessage struct {
	// RequestID correlates the response to the outbound request.
	RequestID string
	// Elements is the extracted UI element list (opaque to the server).
	Elements json.RawMessage
	// ScreenHash is a content fingerprint of the current screen.
	ScreenHash string
	// Screenshot is an optional base64 screenshot.
	Screenshot string
	// PackageName is the foreground app package (optional).
	PackageName string
}

// ResultMessage is the device response to a dispatched action.
type ResultMessage struct {
	// RequestID correlates the response to the outbound request.
	RequestID string
	// Success reports whether the action executed.
	Success bool
	// Error is the device-reported failure annotation.
	Error string
	// Data is an optional action-specific payload.
	Data json.RawMessage
}

// PongMessage is the reply to a server ping.
type PongMessage struct{}

// HeartbeatMessage carries periodic device telemetry.
type HeartbeatMessage struct {
	// BatteryLevel is the battery percentage (0-100).
	BatteryLevel int
	// IsCharging reports whether the device is on power.
	IsCharging bool
}

// AppsMessage is the installed-app inventory, cached on the connection.
type AppsMessage struct {
	Apps []AppInfo
}

// AppInfo describes one installed application.
type AppInfo struct {
	// PackageName is the Android package identifier.
	PackageName string `json:"packageName"`
	// Label is the human-readable app name.
	Label string `json:"label,omitempty"`
	// Intents lists intent actions the app advertises.
	Intents []string `json:"intents,omitempty"`
}

// VoiceStartMessage opens the audio side channel.
type VoiceStartMessage struct{}

// VoiceChunkMessage carries one base64 chunk of 16 kHz mono 16-bit PCM.
type VoiceChunkMessage struct {
	Data string
}

// VoiceStopMessage closes the audio side channel.
type VoiceStopMessage struct {
	// Action selects what to do with the accumulated transcript
	// (e.g. "goal" to synthesize a goal request, "discard").
	Action string
}

func (AuthMessage) Kind() string       { return TypeAuth }
func (ScreenMessage) Kind() string     { return TypeScreen }
func (ResultMessage) Kind() string     { return TypeResult }
func (PongMessage) Kind() string       { return TypePong }
func (HeartbeatMessage) Kind() string  { return TypeHeartbeat }
func (AppsMessage) Kind() string       { return TypeApps }
func (VoiceStartMessage) Kind() string { return TypeVoiceStart }
func (VoiceChunkMessage) Kind() string { return TypeVoiceChunk }
func (VoiceStopMessage) Kind() string  { return TypeVoiceStop }

// envelope is the loosely-typed wire shape. It is decoded exactly once, here,
// and converted into one of the tagged Message variants.
type envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	APIKey    string          `json:"apiKey,omitempty"`
	Device    *DeviceInfo     `json:"deviceInfo,omitempty"`
	Elements  json.RawMessage `json:"elements,omitempty"`
	Hash      string          `json:"screenHash,omitempty"`
	Shot      string          `json:"screenshot,omitempty"`
	Package   string          `json:"packageName,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Battery   *int            `json:"batteryLevel,omitempty"`
	Charging  bool            `json:"isCharging,omitempty"`
	Apps      []AppInfo       `json:"apps,omitempty"`
	Action    string          `json:"action,omitempty"`
}

// Decode parses one inbound frame into a tagged Message.
//
// An unknown or malformed `type` yields a *ProtocolError; the caller treats it
// as non-fatal (log and drop) except during the auth handshake.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed envelope: %v", err)}
	}

	switch env.Type {
	case TypeAuth:
		if env.APIKey == "" {
			return nil, &ProtocolError{Type: TypeAuth, Reason: "missing apiKey"}
		}
		msg := AuthMessage{APIKey: env.APIKey}
		if env.Device != nil {
			if env.Device.ScreenWidth < 0 || env.Device.ScreenHeight < 0 {
				return nil, &ProtocolError{Type: TypeAuth, Reason: "negative screen dimensions"}
			}
			msg.DeviceInfo = *env.Device
		}
		return msg, nil

	case TypeScreen:
		if env.RequestID == "" {
			return nil, &ProtocolError{Type: TypeScreen, Reason: "missing requestId"}
		}
		return ScreenMessage{
			RequestID:   env.RequestID,
			Elements:    env.Elements,
			ScreenHash:  env.Hash,
			Screenshot:  env.Shot,
			PackageName: env.Package,
		}, nil

	case TypeResult:
		if env.RequestID == "" {
			return nil, &ProtocolError{Type: TypeResult, Reason: "missing requestId"}
		}
		success := env.Success != nil && *env.Success
		return ResultMessage{
			RequestID: env.RequestID,
			Success:   success,
			Error:     env.Error,
			Data:      env.Data,
		}, nil

	case TypePong:
		return PongMessage{}, nil

	case TypeHeartbeat:
		battery := -1
		if env.Battery != nil {
			if *env.Battery < 0 {
				return nil, &ProtocolError{Type: TypeHeartbeat, Reason: "negative batteryLevel"}
			}
			battery = *env.Battery
		}
		return HeartbeatMessage{BatteryLevel: battery, IsCharging: env.Charging}, nil

	case TypeApps:
		return AppsMessage{Apps: env.Apps}, nil

	case TypeVoiceStart:
		return VoiceStartMessage{}, nil

	case TypeVoiceChunk:
		// The chunk shares the "data" field with result payloads; here it is
		// always a base64 string.
		var chunk string
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &chunk); err != nil {
				return nil, &ProtocolError{Type: TypeVoiceChunk, Reason: "data is not a string"}
			}
		}
		if chunk == "" {
			return nil, &ProtocolError{Type: TypeVoiceChunk, Reason: "missing data"}
		}
		return VoiceChunkMessage{Data: chunk}, nil

	case TypeVoiceStop:
		return VoiceStopMessage{Action: env.Action}, nil

	case "":
		return nil, &ProtocolError{Reason: "missing type"}

	default:
		return nil, &ProtocolError{Type: env.Type, Reason: "unknown type"}
	}
}
