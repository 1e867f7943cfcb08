package agent

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPTranscriberRoundTrip(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transcribe", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"transcript":" open settings "}`))
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, time.Second)
	tr.VoiceStarted("device-1")
	require.NoError(t, tr.VoiceChunk("device-1", []byte{1, 2}))
	require.NoError(t, tr.VoiceChunk("device-1", []byte{3, 4}))

	transcript, err := tr.VoiceStopped("device-1")
	require.NoError(t, err)
	require.Equal(t, "open settings", transcript)
	require.Equal(t, []byte{1, 2, 3, 4}, body)

	// The recording is gone after stop.
	_, err = tr.VoiceStopped("device-1")
	require.Error(t, err)
}

func TestHTTPTranscriberChunkWithoutStart(t *testing.T) {
	tr := NewHTTPTranscriber("http://planner.invalid", time.Second)
	require.Error(t, tr.VoiceChunk("device-1", []byte{1}))
}

func TestHTTPTranscriberEmptyRecording(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty recording")
	}))
	defer srv.Close()

	tr := NewHTTPTranscriber(srv.URL, time.Second)
	tr.VoiceStarted("device-1")
	transcript, err := tr.VoiceStopped("device-1")
	require.NoError(t, err)
	require.Empty(t, transcript)
}

func TestHTTPTranscriberCapsRecording(t *testing.T) {
	tr := NewHTTPTranscriber("http://planner.invalid", time.Second)
	tr.maxPCM = 8
	tr.VoiceStarted("device-1")
	require.NoError(t, tr.VoiceChunk("device-1", make([]byte, 8)))
	require.Error(t, tr.VoiceChunk("device-1", []byte{1}))
}
