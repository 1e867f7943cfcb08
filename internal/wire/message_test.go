package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Message
		wantErr bool
	}{
		{
			name:  "auth with device info",
			input: `{"type":"auth","apiKey":"dk_1_s3cret","deviceInfo":{"deviceId":"pixel-7","model":"Pixel 7","screenWidth":1080,"screenHeight":2400}}`,
			want: AuthMessage{
				APIKey: "dk_1_s3cret",
				DeviceInfo: DeviceInfo{
					DeviceID:     "pixel-7",
					Model:        "Pixel 7",
					ScreenWidth:  1080,
					ScreenHeight: 2400,
				},
			},
		},
		{
			name:    "auth missing apiKey",
			input:   `{"type":"auth"}`,
			wantErr: true,
		},
		{
			name:  "screen response",
			input: `{"type":"screen","requestId":"r1","elements":[{"text":"Settings"}],"screenHash":"h1","packageName":"com.android.settings"}`,
			want: ScreenMessage{
				RequestID:   "r1",
				Elements:    json.RawMessage(`[{"text":"Settings"}]`),
				ScreenHash:  "h1",
				PackageName: "com.android.settings",
			},
		},
		{
			name:    "screen missing requestId",
			input:   `{"type":"screen","elements":[]}`,
			wantErr: true,
		},
		{
			name:  "result success",
			input: `{"type":"result","requestId":"r2","success":true}`,
			want:  ResultMessage{RequestID: "r2", Success: true},
		},
		{
			name:  "result error",
			input: `{"type":"result","requestId":"r3","success":false,"error":"element not found"}`,
			want:  ResultMessage{RequestID: "r3", Error: "element not found"},
		},
		{
			name:  "pong",
			input: `{"type":"pong"}`,
			want:  PongMessage{},
		},
		{
			name:  "heartbeat telemetry",
			input: `{"type":"heartbeat","batteryLevel":73,"isCharging":true}`,
			want:  HeartbeatMessage{BatteryLevel: 73, IsCharging: true},
		},
		{
			name:    "heartbeat negative battery",
			input:   `{"type":"heartbeat","batteryLevel":-1}`,
			wantErr: true,
		},
		{
			name:  "apps inventory",
			input: `{"type":"apps","apps":[{"packageName":"com.spotify.music","label":"Spotify"}]}`,
			want:  AppsMessage{Apps: []AppInfo{{PackageName: "com.spotify.music", Label: "Spotify"}}},
		},
		{
			name:  "voice chunk",
			input: `{"type":"voice_chunk","data":"UEND"}`,
			want:  VoiceChunkMessage{Data: "UEND"},
		},
		{
			name:    "voice chunk missing data",
			input:   `{"type":"voice_chunk"}`,
			wantErr: true,
		},
		{
			name:  "voice stop with action",
			input: `{"type":"voice_stop","action":"goal"}`,
			want:  VoiceStopMessage{Action: "goal"},
		},
		{
			name:    "unknown type",
			input:   `{"type":"selfie"}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   `{"requestId":"r1"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `{`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.input))
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

func TestDecodeVoiceStartIsEmpty(t *testing.T) {
	got, err := Decode([]byte(`{"type":"voice_start"}`))
	require.NoError(t, err)
	require.Equal(t, VoiceStartMessage{}, got)
	require.Equal(t, TypeVoiceStart, got.Kind())
}
