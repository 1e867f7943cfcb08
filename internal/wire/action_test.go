package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Action
		wantErr bool
	}{
		{
			name:  "tap",
			input: `{"action":"tap","x":120,"y":640}`,
			want:  Tap{X: 120, Y: 640},
		},
		{
			name:    "tap negative coordinate",
			input:   `{"action":"tap","x":-5,"y":10}`,
			wantErr: true,
		},
		{
			name:    "tap missing y",
			input:   `{"action":"tap","x":5}`,
			wantErr: true,
		},
		{
			name:  "swipe with duration",
			input: `{"action":"swipe","x1":100,"y1":900,"x2":100,"y2":200,"duration":300}`,
			want:  Swipe{X1: 100, Y1: 900, X2: 100, Y2: 200, DurationMS: 300},
		},
		{
			name:    "swipe negative duration",
			input:   `{"action":"swipe","x1":0,"y1":0,"x2":1,"y2":1,"duration":-1}`,
			wantErr: true,
		},
		{
			name:  "type text",
			input: `{"action":"type","text":"hello"}`,
			want:  TypeText{Text: "hello"},
		},
		{
			name:  "key code",
			input: `{"action":"key","code":4}`,
			want:  Key{Code: 4},
		},
		{
			name:  "launch app",
			input: `{"action":"launch_app","packageName":"com.android.settings"}`,
			want:  LaunchApp{PackageName: "com.android.settings"},
		},
		{
			name:  "open url",
			input: `{"action":"open_url","url":"https://example.com"}`,
			want:  OpenURL{URL: "https://example.com"},
		},
		{
			name:  "set setting",
			input: `{"action":"set_setting","setting":"wifi","value":"on"}`,
			want:  SetSetting{Setting: "wifi", Value: "on"},
		},
		{
			name:  "send intent",
			input: `{"action":"send_intent","intentAction":"android.intent.action.VIEW","intentUri":"geo:0,0","intentExtras":{"q":"pizza"}}`,
			want: SendIntent{
				IntentAction: "android.intent.action.VIEW",
				IntentURI:    "geo:0,0",
				IntentExtras: map[string]string{"q": "pizza"},
			},
		},
		{
			name:  "wait",
			input: `{"action":"wait","duration":1000}`,
			want:  Wait{DurationMS: 1000},
		},
		{
			name:    "wait missing duration",
			input:   `{"action":"wait"}`,
			wantErr: true,
		},
		{
			name:    "unknown action",
			input:   `{"action":"teleport"}`,
			wantErr: true,
		},
		{
			name:    "missing action",
			input:   `{"x":1,"y":2}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAction([]byte(tc.input))
			if tc.wantErr {
				require.Error(t, err)
				var perr *ProtocolError
				require.ErrorAs(t, err, &perr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeActionRoundTrip(t *testing.T) {
	frame, err := EncodeAction("req-9", 3, Swipe{X1: 10, Y1: 20, X2: 30, Y2: 40, DurationMS: 250}, "scroll down to reveal the toggle", "hash-3")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Equal(t, TypeAction, decoded["type"])
	require.Equal(t, "req-9", decoded["requestId"])
	require.Equal(t, float64(3), decoded["step"])
	require.Equal(t, ActionSwipe, decoded["action"])
	require.Equal(t, float64(250), decoded["duration"])
	require.Equal(t, "scroll down to reveal the toggle", decoded["reasoning"])
	require.Equal(t, "hash-3", decoded["screenHash"])

	parsed, err := ParseAction(frame)
	require.NoError(t, err)
	require.Equal(t, Swipe{X1: 10, Y1: 20, X2: 30, Y2: 40, DurationMS: 250}, parsed)
}

func TestEncodeGetScreen(t *testing.T) {
	frame, err := EncodeGetScreen("req-1", true)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Equal(t, TypeGetScreen, decoded["type"])
	require.Equal(t, "req-1", decoded["requestId"])
	require.Equal(t, true, decoded["screenshot"])
}
