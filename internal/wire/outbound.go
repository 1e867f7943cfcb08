package wire

import "encoding/json"

// Server -> device frames. Each encoder returns a complete JSON envelope.

type authOKFrame struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// EncodeAuthOK acknowledges a successful auth handshake.
func EncodeAuthOK(deviceID string) ([]byte, error) {
	return json.Marshal(authOKFrame{Type: TypeAuthOK, DeviceID: deviceID})
}

type goalFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EncodeGoal notifies the device that a goal session started.
func EncodeGoal(text string) ([]byte, error) {
	return json.Marshal(goalFrame{Type: TypeGoal, Text: text})
}

type stopGoalFrame struct {
	Type string `json:"type"`
}

// EncodeStopGoal notifies the device that the running goal session ended.
func EncodeStopGoal() ([]byte, error) {
	return json.Marshal(stopGoalFrame{Type: TypeStopGoal})
}

type getScreenFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	// Screenshot requests an optional base64 screenshot alongside elements.
	Screenshot bool `json:"screenshot,omitempty"`
}

// EncodeGetScreen requests the current screen state from the device.
func EncodeGetScreen(requestID string, screenshot bool) ([]byte, error) {
	return json.Marshal(getScreenFrame{Type: TypeGetScreen, RequestID: requestID, Screenshot: screenshot})
}

type actionFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Step      int    `json:"step"`
	actionEnvelope
	Reasoning  string `json:"reasoning,omitempty"`
	ScreenHash string `json:"screenHash,omitempty"`
}

// EncodeAction dispatches one planner-chosen action to the device, flattening
// the tagged variant back into the wire union.
func EncodeAction(requestID string, step int, a Action, reasoning, screenHash string) ([]byte, error) {
	return json.Marshal(actionFrame{
		Type:           TypeAction,
		RequestID:      requestID,
		Step:           step,
		actionEnvelope: envelopeFromAction(a),
		Reasoning:      reasoning,
		ScreenHash:     screenHash,
	})
}

type pingFrame struct {
	Type string `json:"type"`
}

// EncodePing sends a heartbeat expectation.
func EncodePing() ([]byte, error) {
	return json.Marshal(pingFrame{Type: TypePing})
}
