// Package line implements the LINE Messaging API surface this service
// needs: webhook parsing and signature verification, a tagged inbound
// event model, and a client for replies and message content downloads.
package line

// EventType tags an inbound webhook event.
type EventType string

const (
	EventTypeMessage  EventType = "message"
	EventTypeFollow   EventType = "follow"
	EventTypeUnfollow EventType = "unfollow"
	EventTypePostback EventType = "postback"
	EventTypeJoin     EventType = "join"
)

// MessageType tags the message payload of a message event.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeLocation MessageType = "location"
)

// Source identifies who sent an event and from where.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Message is the message payload of a message event. Fields are populated
// per Type; the zero values of the others are meaningless.
type Message struct {
	ID   string      `json:"id"`
	Type MessageType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// sticker
	PackageID string   `json:"packageId,omitempty"`
	StickerID string   `json:"stickerId,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`

	// location
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	// image
	ContentProvider *ContentProvider `json:"contentProvider,omitempty"`
}

// ContentProvider describes where image/video content lives. Content with
// type "line" is fetched through the data API.
type ContentProvider struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
}

// Postback carries the payload of a postback event.
type Postback struct {
	Data   string            `json:"data"`
	Params map[string]string `json:"params,omitempty"`
}

// Event is one webhook event. Message and Postback are nil unless Type
// says otherwise.
type Event struct {
	Type           EventType `json:"type"`
	WebhookEventID string    `json:"webhookEventId"`
	Timestamp      int64     `json:"timestamp"`
	ReplyToken     string    `json:"replyToken,omitempty"`
	Source         Source    `json:"source"`
	Message        *Message  `json:"message,omitempty"`
	Postback       *Postback `json:"postback,omitempty"`
}
