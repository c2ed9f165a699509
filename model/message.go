package model

import "time"

// Envelope is the metadata projection fetched for every message during the
// scan phase.
type Envelope struct {
	UID       uint32
	Date      time.Time
	From      string
	MessageID string
}

// MessageRecord is a remote message together with its raw RFC 822 octets.
type MessageRecord struct {
	Envelope
	Body []byte
}
