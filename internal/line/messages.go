package line

import "encoding/json"

// SendMessage is an outbound message in the reply API's wire shape. The
// pipeline treats values as opaque; only the reply client serializes them.
type SendMessage interface {
	messageType() string
}

// TextMessage is a plain text reply.
type TextMessage struct {
	Text string `json:"text"`
}

func NewTextMessage(text string) TextMessage {
	return TextMessage{Text: text}
}

func (TextMessage) messageType() string { return "text" }

func (m TextMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: m.messageType(), Text: m.Text})
}

// StickerMessage is a sticker reply.
type StickerMessage struct {
	PackageID string `json:"packageId"`
	StickerID string `json:"stickerId"`
}

func (StickerMessage) messageType() string { return "sticker" }

func (m StickerMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		PackageID string `json:"packageId"`
		StickerID string `json:"stickerId"`
	}{Type: m.messageType(), PackageID: m.PackageID, StickerID: m.StickerID})
}

// RawMessage lets extensions send message types this package has no struct
// for. The map must include a "type" key.
type RawMessage map[string]any

func (m RawMessage) messageType() string {
	t, _ := m["type"].(string)
	return t
}
