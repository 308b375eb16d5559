// Package wire defines the JSON frame vocabulary spoken on a messaging
// connection: the client commands accepted by the router and the server
// frames produced by the delivery engine. Frames are flat JSON objects
// discriminated by a "type" field.
package wire

import (
	"encoding/json"
	"time"
)

// Client command types.
const (
	TypeMessageSend      = "message.send"
	TypeGroupMessageSend = "message.group.send"
	TypeMessageRead      = "message.read"
	TypeTyping           = "typing"
	TypePing             = "ping"
)

// Server frame types.
const (
	TypeMessageNew      = "message.new"
	TypeGroupMessageNew = "message.group.new"
	TypeOfflineBatch    = "messages.offline"
	TypeAck             = "message.ack"
	TypeReadReceipt     = "message.read.receipt"
	TypePong            = "pong"
	TypeError           = "error"
)

// Error codes carried by Error frames.
const (
	CodeUnknownType      = "UNKNOWN_TYPE"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMissingRecipient = "MISSING_RECIPIENT"
	CodeMissingGroup     = "MISSING_GROUP"
	CodeEmptyContent     = "EMPTY_CONTENT"
	CodeNotMember        = "NOT_MEMBER"
	CodeMissingMessageID = "MISSING_MESSAGE_ID"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Envelope is the decoded form of any client command. Field relevance
// depends on Type; handlers validate what they need.
type Envelope struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	IsTyping    *bool  `json:"is_typing,omitempty"`
}

// Typing reports whether the envelope asks for a typing-start or
// typing-stop relay; absent means start.
func (e Envelope) Typing() bool {
	return e.IsTyping == nil || *e.IsTyping
}

type MessageNew struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	CreatedAt      string `json:"created_at"`
}

type GroupMessageNew struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	GroupID     string `json:"group_id"`
	SenderID    string `json:"sender_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	CreatedAt   string `json:"created_at"`
}

// OfflineBatch carries every message queued while the user was offline.
// Sent at most once per connection, right after the handshake. Entries are
// complete MessageNew / GroupMessageNew frames.
type OfflineBatch struct {
	Type     string `json:"type"`
	Messages []any  `json:"messages"`
	Count    int    `json:"count"`
}

// Ack reports the outcome of a send back to its author. DeliveredCount is
// present on group acks only.
type Ack struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	Delivered      bool   `json:"delivered"`
	Queued         bool   `json:"queued"`
	DeliveredCount *int   `json:"delivered_count,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type ReadReceipt struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	ReaderID  string `json:"reader_id"`
	ReadAt    string `json:"read_at"`
}

type TypingEvent struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id"`
	IsTyping    bool   `json:"is_typing"`
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
}

type Pong struct {
	Type string `json:"type"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}

func NewAck(messageID string, delivered, queued bool, at time.Time) Ack {
	return Ack{
		Type:      TypeAck,
		MessageID: messageID,
		Delivered: delivered,
		Queued:    queued,
		Timestamp: Stamp(at),
	}
}

func NewGroupAck(messageID string, deliveredCount int, at time.Time) Ack {
	ack := NewAck(messageID, deliveredCount > 0, false, at)
	ack.DeliveredCount = &deliveredCount
	return ack
}

// Stamp renders t as UTC ISO-8601 with millisecond precision, the format of
// every timestamp on the wire.
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Encode marshals one frame for the socket. Frames are marshaled once and
// the resulting bytes fanned out to every target socket.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

// MustEncode is Encode for frames built from plain struct literals, where a
// marshal failure is a programming error.
func MustEncode(frame any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	return data
}
