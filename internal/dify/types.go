// Package dify is a client for the Dify chat-messages API. Agent apps are
// consumed over SSE streaming, chatbot apps over blocking JSON.
package dify

// AppType selects the Dify application kind the API key belongs to. It
// determines the response mode and how the response is decoded.
type AppType string

const (
	AppTypeAgent         AppType = "agent"
	AppTypeChatbot       AppType = "chatbot"
	AppTypeTextGenerator AppType = "text-generator"
	AppTypeWorkflow      AppType = "workflow"
)

func (t AppType) responseMode() string {
	if t == AppTypeAgent {
		return "streaming"
	}
	return "blocking"
}

// InvokeRequest is one conversation turn. Image, Inputs and ConversationID
// may be empty; StartAsNew forces a fresh conversation even when a
// ConversationID is present.
type InvokeRequest struct {
	ConversationID string
	Text           string
	Image          []byte
	Inputs         map[string]any
	StartAsNew     bool
}

// Result is the backend's answer for one turn. Data carries side-channel
// payloads (tool name/input, retriever resources) keyed by name.
type Result struct {
	ConversationID string
	Text           string
	Data           map[string]any
}

type chatRequest struct {
	Inputs           map[string]any `json:"inputs"`
	Query            string         `json:"query"`
	ResponseMode     string         `json:"response_mode"`
	User             string         `json:"user"`
	AutoGenerateName bool           `json:"auto_generate_name"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	Files            []fileRef      `json:"files,omitempty"`
}

type fileRef struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

type blockingResponse struct {
	ConversationID string         `json:"conversation_id"`
	Answer         string         `json:"answer"`
	Metadata       map[string]any `json:"metadata"`
}
