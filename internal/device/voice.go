package device

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/unitedbyai/droidclaw/internal/logger"
)

// TranscriptionSink consumes the audio side channel. Chunks arrive in wire
// order per connection; lost chunks are not recovered.
type TranscriptionSink interface {
	// VoiceStarted opens a transcription stream for a device.
	VoiceStarted(deviceID string)
	// VoiceChunk delivers one decoded chunk of 16 kHz mono 16-bit PCM.
	VoiceChunk(deviceID string, pcm []byte) error
	// VoiceStopped closes the stream and returns the accumulated transcript.
	VoiceStopped(deviceID string) (transcript string, err error)
}

// ErrNoVoiceStream reports a chunk or stop without a preceding voice_start.
var ErrNoVoiceStream = errors.New("no active voice stream")

// VoiceStream is one active audio side channel on a device connection.
type VoiceStream struct {
	connID   string
	deviceID string
	chunks   int
}

// Chunks returns the number of chunks forwarded so far.
func (s *VoiceStream) Chunks() int { return s.chunks }

// Relay forwards voice chunks between device connections and the
// transcription sink. A relay entry is independent of any agent session
// running on the same connection.
type Relay struct {
	sink TranscriptionSink

	mu     sync.Mutex
	active map[string]*VoiceStream
}

// NewRelay creates a relay over the given sink.
func NewRelay(sink TranscriptionSink) *Relay {
	return &Relay{
		sink:   sink,
		active: make(map[string]*VoiceStream),
	}
}

// StartVoice opens a stream for the connection. Starting while a stream is
// already active restarts it.
func (r *Relay) StartVoice(conn *Connection) *VoiceStream {
	stream := &VoiceStream{connID: conn.ConnID(), deviceID: conn.DeviceID()}
	r.mu.Lock()
	r.active[conn.ConnID()] = stream
	r.mu.Unlock()

	if r.sink != nil {
		r.sink.VoiceStarted(conn.DeviceID())
	}
	logger.Debugf("[voice] stream started device=%s conn=%s", conn.DeviceID(), conn.ConnID())
	return stream
}

// Chunk forwards one base64 PCM chunk in arrival order. Callers invoke it
// from the connection's read loop, which preserves ordering per connection.
func (r *Relay) Chunk(connID, data string) error {
	r.mu.Lock()
	stream, ok := r.active[connID]
	if ok {
		stream.chunks++
	}
	r.mu.Unlock()
	if !ok {
		return ErrNoVoiceStream
	}

	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode voice chunk: %w", err)
	}
	if r.sink == nil {
		return nil
	}
	return r.sink.VoiceChunk(stream.deviceID, pcm)
}

// StopVoice ends the stream and returns the transcript from the sink. The
// caller decides what the stop action means (e.g. synthesizing a goal).
func (r *Relay) StopVoice(connID string) (deviceID, transcript string, err error) {
	r.mu.Lock()
	stream, ok := r.active[connID]
	if ok {
		delete(r.active, connID)
	}
	r.mu.Unlock()
	if !ok {
		return "", "", ErrNoVoiceStream
	}

	logger.Debugf("[voice] stream stopped device=%s conn=%s chunks=%d", stream.deviceID, connID, stream.chunks)
	if r.sink == nil {
		return stream.deviceID, "", nil
	}
	transcript, err = r.sink.VoiceStopped(stream.deviceID)
	return stream.deviceID, transcript, err
}

// Drop discards an active stream without consulting the sink, for transport
// close.
func (r *Relay) Drop(connID string) {
	r.mu.Lock()
	delete(r.active, connID)
	r.mu.Unlock()
}
