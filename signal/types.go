package signal

import (
	"strings"
	"time"
)

// Envelope mirrors the envelope object signal-cli emits on receive
// notifications.
type Envelope struct {
	Source       string       `json:"source"`
	SourceNumber string       `json:"sourceNumber"`
	SourceName   string       `json:"sourceName,omitempty"`
	Timestamp    int64        `json:"timestamp"`
	DataMessage  *DataMessage `json:"dataMessage,omitempty"`
}

// DataMessage carries the user-visible content of an envelope
type DataMessage struct {
	Message   string     `json:"message"`
	Timestamp int64      `json:"timestamp"`
	GroupInfo *GroupInfo `json:"groupInfo,omitempty"`
}

// GroupInfo identifies the group a message was posted in
type GroupInfo struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type,omitempty"`
}

// Sender returns the best available sender identity
func (e *Envelope) Sender() string {
	if e.SourceNumber != "" {
		return e.SourceNumber
	}
	return e.Source
}

// Message is the transport-neutral inbound message handed to the bot
type Message struct {
	Sender     string
	SenderName string
	Text       string
	GroupID    string
	Timestamp  time.Time
}

// IsGroup reports whether the message arrived via a group chat
func (m Message) IsGroup() bool {
	return m.GroupID != ""
}

// messageFromEnvelope converts an envelope into a Message. Receipts,
// typing indicators, and empty bodies yield false.
func messageFromEnvelope(e *Envelope) (Message, bool) {
	if e == nil || e.DataMessage == nil {
		return Message{}, false
	}
	text := strings.TrimSpace(e.DataMessage.Message)
	if text == "" {
		return Message{}, false
	}

	msg := Message{
		Sender:     e.Sender(),
		SenderName: e.SourceName,
		Text:       text,
		Timestamp:  time.UnixMilli(e.Timestamp),
	}
	if e.DataMessage.GroupInfo != nil {
		msg.GroupID = e.DataMessage.GroupInfo.GroupID
	}

	return msg, true
}
