package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPTranscriber buffers PCM audio per device and posts the complete
// recording to the planning service's transcription endpoint when the stream
// stops. Recordings are capped so a device cannot grow the buffer without
// bound.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
	maxPCM  int

	mu      sync.Mutex
	buffers map[string]*bytes.Buffer
}

// maxRecordingBytes caps one recording at ~60s of 16 kHz mono 16-bit PCM.
const maxRecordingBytes = 16000 * 2 * 60

// NewHTTPTranscriber creates a transcriber client for the given base URL.
func NewHTTPTranscriber(baseURL string, timeout time.Duration) *HTTPTranscriber {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTranscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		maxPCM:  maxRecordingBytes,
		buffers: make(map[string]*bytes.Buffer),
	}
}

func (t *HTTPTranscriber) VoiceStarted(deviceID string) {
	t.mu.Lock()
	t.buffers[deviceID] = &bytes.Buffer{}
	t.mu.Unlock()
}

func (t *HTTPTranscriber) VoiceChunk(deviceID string, pcm []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf, ok := t.buffers[deviceID]
	if !ok {
		return fmt.Errorf("no recording open for device %s", deviceID)
	}
	if buf.Len()+len(pcm) > t.maxPCM {
		return fmt.Errorf("recording for device %s exceeds %d bytes", deviceID, t.maxPCM)
	}
	buf.Write(pcm)
	return nil
}

func (t *HTTPTranscriber) VoiceStopped(deviceID string) (string, error) {
	t.mu.Lock()
	buf, ok := t.buffers[deviceID]
	delete(t.buffers, deviceID)
	t.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no recording open for device %s", deviceID)
	}
	if buf.Len() == 0 {
		return "", nil
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		t.baseURL+"/v1/transcribe", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "audio/l16")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcriber returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return strings.TrimSpace(out.Transcript), nil
}
