package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type webhookBody struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// ValidateSignature reports whether signature is the base64-encoded
// HMAC-SHA256 of body under the channel secret, using a constant-time
// compare.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook decodes a webhook delivery body into its events, preserving
// delivery order.
func ParseWebhook(body []byte) ([]Event, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	return wb.Events, nil
}
