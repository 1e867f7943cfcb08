package wire

import (
	"encoding/json"
	"fmt"
)

// Action kind names as they appear on the wire.
const (
	ActionTap        = "tap"
	ActionSwipe      = "swipe"
	ActionTypeText   = "type"
	ActionKey        = "key"
	ActionLaunchApp  = "launch_app"
	ActionOpenURL    = "open_url"
	ActionSetSetting = "set_setting"
	ActionSendIntent = "send_intent"
	ActionWait       = "wait"
)

// Action is one concrete UI action chosen by the planner, as a tagged variant.
// The all-optional wire envelope is flattened to/from these types at the
// boundary so the control loop never sees the union shape.
type Action interface {
	// ActionKind returns the wire action name.
	ActionKind() string
}

// Tap taps at a screen coordinate.
type Tap struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Swipe drags from one coordinate to another over a duration.
type Swipe struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
	// DurationMS is the gesture duration in milliseconds (0 = device default).
	DurationMS int `json:"duration"`
}

// TypeText types text into the focused field.
type TypeText struct {
	Text string `json:"text"`
}

// Key presses a key code (e.g. back, home).
type Key struct {
	Code int `json:"code"`
}

// LaunchApp launches an application by package name.
type LaunchApp struct {
	PackageName string `json:"packageName"`
}

// OpenURL opens a URL in the default handler.
type OpenURL struct {
	URL string `json:"url"`
}

// SetSetting changes a device setting.
type SetSetting struct {
	Setting string `json:"setting"`
	Value   string `json:"value,omitempty"`
}

// SendIntent broadcasts or starts an Android intent.
type SendIntent struct {
	IntentAction string            `json:"intentAction"`
	IntentURI    string            `json:"intentUri,omitempty"`
	IntentType   string            `json:"intentType,omitempty"`
	IntentExtras map[string]string `json:"intentExtras,omitempty"`
}

// Wait pauses before the next observation.
type Wait struct {
	// DurationMS is the pause duration in milliseconds.
	DurationMS int `json:"duration"`
}

func (Tap) ActionKind() string        { return ActionTap }
func (Swipe) ActionKind() string      { return ActionSwipe }
func (TypeText) ActionKind() string   { return ActionTypeText }
func (Key) ActionKind() string        { return ActionKey }
func (LaunchApp) ActionKind() string  { return ActionLaunchApp }
func (OpenURL) ActionKind() string    { return ActionOpenURL }
func (SetSetting) ActionKind() string { return ActionSetSetting }
func (SendIntent) ActionKind() string { return ActionSendIntent }
func (Wait) ActionKind() string       { return ActionWait }

// actionEnvelope is the union wire shape for actions: every parameterization
// the planner may produce, flattened into one set of optional fields.
type actionEnvelope struct {
	Action       string            `json:"action"`
	X            *int              `json:"x,omitempty"`
	Y            *int              `json:"y,omitempty"`
	X1           *int              `json:"x1,omitempty"`
	Y1           *int              `json:"y1,omitempty"`
	X2           *int              `json:"x2,omitempty"`
	Y2           *int              `json:"y2,omitempty"`
	Duration     *int              `json:"duration,omitempty"`
	Text         string            `json:"text,omitempty"`
	Code         *int              `json:"code,omitempty"`
	PackageName  string            `json:"packageName,omitempty"`
	URL          string            `json:"url,omitempty"`
	Setting      string            `json:"setting,omitempty"`
	Value        string            `json:"value,omitempty"`
	IntentAction string            `json:"intentAction,omitempty"`
	IntentURI    string            `json:"intentUri,omitempty"`
	IntentType   string            `json:"intentType,omitempty"`
	IntentExtras map[string]string `json:"intentExtras,omitempty"`
}

// ParseAction decodes the flat action union into a tagged variant, validating
// required fields and rejecting negative coordinates and durations.
func ParseAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Type: TypeAction, Reason: fmt.Sprintf("malformed action: %v", err)}
	}
	return actionFromEnvelope(env)
}

func actionFromEnvelope(env actionEnvelope) (Action, error) {
	switch env.Action {
	case ActionTap:
		x, err := requireCoord("x", env.X)
		if err != nil {
			return nil, err
		}
		y, err := requireCoord("y", env.Y)
		if err != nil {
			return nil, err
		}
		return Tap{X: x, Y: y}, nil

	case ActionSwipe:
		coords := [4]*int{env.X1, env.Y1, env.X2, env.Y2}
		names := [4]string{"x1", "y1", "x2", "y2"}
		var vals [4]int
		for i, c := range coords {
			v, err := requireCoord(names[i], c)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		dur := 0
		if env.Duration != nil {
			if *env.Duration < 0 {
				return nil, &ProtocolError{Type: TypeAction, Reason: "negative duration"}
			}
			dur = *env.Duration
		}
		return Swipe{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3], DurationMS: dur}, nil

	case ActionTypeText:
		if env.Text == "" {
			return nil, &ProtocolError{Type: TypeAction, Reason: "type action requires text"}
		}
		return TypeText{Text: env.Text}, nil

	case ActionKey:
		if env.Code == nil || *env.Code < 0 {
			return nil, &ProtocolError{Type: TypeAction, Reason: "key action requires non-negative code"}
		}
		return Key{Code: *env.Code}, nil

	case ActionLaunchApp:
		if env.PackageName == "" {
			return nil, &ProtocolError{Type: TypeAction, Reason: "launch_app requires packageName"}
		}
		return LaunchApp{PackageName: env.PackageName}, nil

	case ActionOpenURL:
		if env.URL == "" {
			return nil, &ProtocolError{Type: TypeAction, Reason: "open_url requires url"}
		}
		return OpenURL{URL: env.URL}, nil

	case ActionSetSetting:
		if env.Setting == "" {
			return nil, &ProtocolError{Type: TypeAction, Reason: "set_setting requires setting"}
		}
		return SetSetting{Setting: env.Setting, Value: env.Value}, nil

	case ActionSendIntent:
		if env.IntentAction == "" {
			return nil, &ProtocolError{Type: TypeAction, Reason: "send_intent requires intentAction"}
		}
		return SendIntent{
			IntentAction: env.IntentAction,
			IntentURI:    env.IntentURI,
			IntentType:   env.IntentType,
			IntentExtras: env.IntentExtras,
		}, nil

	case ActionWait:
		if env.Duration == nil || *env.Duration < 0 {
			return nil, &ProtocolError{Type: TypeAction, Reason: "wait requires non-negative duration"}
		}
		return Wait{DurationMS: *env.Duration}, nil

	case "":
		return nil, &ProtocolError{Type: TypeAction, Reason: "missing action"}

	default:
		return nil, &ProtocolError{Type: TypeAction, Reason: fmt.Sprintf("unknown action %q", env.Action)}
	}
}

// MarshalAction encodes a tagged variant back into the flat union, including
// the "action" discriminator.
func MarshalAction(a Action) ([]byte, error) {
	return json.Marshal(envelopeFromAction(a))
}

func requireCoord(name string, v *int) (int, error) {
	if v == nil {
		return 0, &ProtocolError{Type: TypeAction, Reason: "missing " + name}
	}
	if *v < 0 {
		return 0, &ProtocolError{Type: TypeAction, Reason: "negative " + name}
	}
	return *v, nil
}

func envelopeFromAction(a Action) actionEnvelope {
	env := actionEnvelope{Action: a.ActionKind()}
	switch t := a.(type) {
	case Tap:
		env.X, env.Y = &t.X, &t.Y
	case Swipe:
		env.X1, env.Y1, env.X2, env.Y2 = &t.X1, &t.Y1, &t.X2, &t.Y2
		if t.DurationMS > 0 {
			env.Duration = &t.DurationMS
		}
	case TypeText:
		env.Text = t.Text
	case Key:
		env.Code = &t.Code
	case LaunchApp:
		env.PackageName = t.PackageName
	case OpenURL:
		env.URL = t.URL
	case SetSetting:
		env.Setting = t.Setting
		env.Value = t.Value
	case SendIntent:
		env.IntentAction = t.IntentAction
		env.IntentURI = t.IntentURI
		env.IntentType = t.IntentType
		env.IntentExtras = t.IntentExtras
	case Wait:
		env.Duration = &t.DurationMS
	}
	return env
}
