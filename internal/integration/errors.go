package integration

import "fmt"

// UnsupportedMessageTypeError is returned when a message event arrives with
// a type no parser is registered for.
type UnsupportedMessageTypeError struct {
	MessageType string
}

func (e *UnsupportedMessageTypeError) Error() string {
	return fmt.Sprintf("unsupported message type: %s", e.MessageType)
}
