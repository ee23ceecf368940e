package relay

import (
	"time"
)

// User identifies a message sender. Any field other than ID may be empty.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Chat is the conversation a message arrived in. Title is empty for
// one-to-one chats, which carry the peer's first name instead.
type Chat struct {
	ID        int64
	Title     string
	FirstName string
}

// Media describes an attachment by remote reference; the bytes are only
// materialized when the event is staged for webhook delivery.
type Media struct {
	Kind   string
	FileID string
	Size   int64
	MIME   string
}

// InboundEvent is one message as delivered by the Telegram source.
// Service events (joins, pins) are filtered out upstream and never reach
// the pipeline. Immutable once delivered.
type InboundEvent struct {
	Chat            Chat
	MessageID       int64
	Outgoing        bool
	From            *User
	ForwardFrom     *User
	ForwardFromChat *Chat
	Text            string
	Caption         string
	Media           *Media
	Date            time.Time
}

// LogRecord is the flattened projection of an InboundEvent handed to both
// sinks. Pointer fields distinguish "absent" (null) from "present but empty".
// (chat_id, message_id) uniquely identifies a record for deduplication.
type LogRecord struct {
	ChatID     int64      `json:"chat_id" bson:"chat_id"`
	MessageID  int64      `json:"message_id" bson:"message_id"`
	ChatTitle  *string    `json:"chat_title" bson:"chat_title"`
	FromUserID *int64     `json:"from_user_id" bson:"from_user_id"`
	Username   *string    `json:"username" bson:"username"`
	FirstName  *string    `json:"first_name" bson:"first_name"`
	Text       string     `json:"text" bson:"text"`
	HasMedia   bool       `json:"has_media" bson:"has_media"`
	MediaType  *string    `json:"media_type" bson:"media_type"`
	Date       *time.Time `json:"date" bson:"date"`
}

// NewLogRecord builds the canonical record for an event. It must succeed
// for any event shape: missing sender, missing chat title and missing media
// all map to null fields.
func NewLogRecord(ev *InboundEvent) *LogRecord {
	rec := &LogRecord{
		ChatID:    ev.Chat.ID,
		MessageID: ev.MessageID,
		Text:      ev.ContentText(),
		HasMedia:  ev.Media != nil,
	}

	if ev.Chat.Title != "" {
		title := ev.Chat.Title
		rec.ChatTitle = &title
	} else if ev.Chat.FirstName != "" {
		title := ev.Chat.FirstName
		rec.ChatTitle = &title
	}

	if sender := ev.Sender(); sender != nil {
		id := sender.ID
		rec.FromUserID = &id
		if sender.Username != "" {
			username := sender.Username
			rec.Username = &username
		}
		if sender.FirstName != "" {
			firstName := sender.FirstName
			rec.FirstName = &firstName
		}
	}

	if ev.Media != nil && ev.Media.Kind != "" {
		kind := ev.Media.Kind
		rec.MediaType = &kind
	}

	if !ev.Date.IsZero() {
		date := ev.Date
		rec.Date = &date
	}

	return rec
}

// ContentText returns the canonical text: text if present, else caption,
// else empty.
func (ev *InboundEvent) ContentText() string {
	if ev.Text != "" {
		return ev.Text
	}
	return ev.Caption
}

// Sender resolves the identity to attribute the message to, falling back
// direct sender, forwarded-from user, forwarded-from channel. Returns nil
// when none is known (e.g. anonymous channel posts).
func (ev *InboundEvent) Sender() *User {
	if ev.From != nil {
		return ev.From
	}
	if ev.ForwardFrom != nil {
		return ev.ForwardFrom
	}
	if ev.ForwardFromChat != nil {
		return &User{
			ID:        ev.ForwardFromChat.ID,
			FirstName: ev.ForwardFromChat.Title,
		}
	}
	return nil
}
