package wire

import "fmt"

// ProtocolError reports an unknown or malformed wire message. It is non-fatal
// to the connection (log and drop) except when it occurs during the auth
// handshake.
type ProtocolError struct {
	// Type is the offending `type` discriminator, when one was present.
	Type string
	// Reason describes the validation failure.
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error in %q message: %s", e.Type, e.Reason)
}
