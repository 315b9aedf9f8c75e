// Package domain contains core domain types for the Quarrel Labs service.
package domain

import (
	"encoding/json"
	"time"
)

// UserSpeaker tags messages written by the person asking for help.
const UserSpeaker = "USER"

// Attachment is a media blob carried by a message.
type Attachment struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Message is one entry in a battle's ordered log.
type Message struct {
	ID         string      `json:"id"`
	Speaker    string      `json:"speaker"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"-"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type wireMessage struct {
	ID         string      `json:"id"`
	Speaker    string      `json:"speaker"`
	Body       string      `json:"body"`
	CreatedAt  int64       `json:"createdAt"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// MarshalJSON encodes CreatedAt as epoch milliseconds.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		ID:         m.ID,
		Speaker:    m.Speaker,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt.UnixMilli(),
		Attachment: m.Attachment,
	})
}

// UnmarshalJSON decodes the epoch-millisecond layout written by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:         w.ID,
		Speaker:    w.Speaker,
		Body:       w.Body,
		CreatedAt:  time.UnixMilli(w.CreatedAt),
		Attachment: w.Attachment,
	}
	return nil
}

// Timestamp normalizes t to millisecond precision, the resolution messages
// are persisted and shared at.
func Timestamp(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// IsUser returns true if the message was written by the user.
func (m Message) IsUser() bool {
	return m.Speaker == UserSpeaker
}

// Clone returns a deep copy of the message, including attachment bytes.
func (m Message) Clone() Message {
	if m.Attachment != nil {
		att := *m.Attachment
		att.Data = append([]byte(nil), m.Attachment.Data...)
		m.Attachment = &att
	}
	return m
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
