package bus

import "github.com/arloliu/go-serbridge/identity"

// Message is one chunk of bytes read by an endpoint, tagged with the ID of
// that endpoint.
//
// A published message is shared by every subscription; receivers must treat
// Payload as read-only.
type Message struct {
	Payload []byte
	Origin  identity.ID
}

// Len returns the payload size in bytes.
func (m Message) Len() int {
	return len(m.Payload)
}
