package device

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSink accumulates decoded chunks as a fake transcription service.
type fakeSink struct {
	started []string
	chunks  map[string][][]byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{chunks: make(map[string][][]byte)}
}

func (f *fakeSink) VoiceStarted(deviceID string) {
	f.started = append(f.started, deviceID)
}

func (f *fakeSink) VoiceChunk(deviceID string, pcm []byte) error {
	f.chunks[deviceID] = append(f.chunks[deviceID], pcm)
	return nil
}

func (f *fakeSink) VoiceStopped(deviceID string) (string, error) {
	var parts []string
	for _, pcm := range f.chunks[deviceID] {
		parts = append(parts, string(pcm))
	}
	return strings.Join(parts, " "), nil
}

func TestRelayForwardsChunksInOrder(t *testing.T) {
	sink := newFakeSink()
	relay := NewRelay(sink)

	r := NewRegistry(nil, nil, sequentialIDs("req"))
	conn := r.Register(newFakeTransport("c1"), testClaims("d1"))

	relay.StartVoice(conn)
	require.Equal(t, []string{"d1"}, sink.started)

	for _, word := range []string{"open", "settings", "enable", "wifi"} {
		data := base64.StdEncoding.EncodeToString([]byte(word))
		require.NoError(t, relay.Chunk("c1", data))
	}

	deviceID, transcript, err := relay.StopVoice("c1")
	require.NoError(t, err)
	require.Equal(t, "d1", deviceID)
	require.Equal(t, "open settings enable wifi", transcript)

	// The stream is gone after stop.
	_, _, err = relay.StopVoice("c1")
	require.ErrorIs(t, err, ErrNoVoiceStream)
}

func TestRelayChunkWithoutStart(t *testing.T) {
	relay := NewRelay(newFakeSink())
	err := relay.Chunk("c1", base64.StdEncoding.EncodeToString([]byte("x")))
	require.ErrorIs(t, err, ErrNoVoiceStream)
}

func TestRelayRejectsBadBase64(t *testing.T) {
	sink := newFakeSink()
	relay := NewRelay(sink)

	r := NewRegistry(nil, nil, sequentialIDs("req"))
	conn := r.Register(newFakeTransport("c1"), testClaims("d1"))
	relay.StartVoice(conn)

	require.Error(t, relay.Chunk("c1", "%%%not-base64%%%"))
	require.Empty(t, sink.chunks["d1"])
}

func TestRelayDrop(t *testing.T) {
	sink := newFakeSink()
	relay := NewRelay(sink)

	r := NewRegistry(nil, nil, sequentialIDs("req"))
	conn := r.Register(newFakeTransport("c1"), testClaims("d1"))
	relay.StartVoice(conn)

	relay.Drop("c1")
	_, _, err := relay.StopVoice("c1")
	require.ErrorIs(t, err, ErrNoVoiceStream)
}
