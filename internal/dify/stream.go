package dify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type streamChunk struct {
	Event          string         `json:"event"`
	ConversationID string         `json:"conversation_id"`
	Answer         string         `json:"answer"`
	Tool           string         `json:"tool"`
	ToolInput      string         `json:"tool_input"`
	Metadata       map[string]any `json:"metadata"`
}

// decodeAgentStream folds an agent-mode SSE stream into one Result. Answer
// text accumulates across agent_message events, the conversation id comes
// from the first event that carries one, and the last non-empty tool
// invocation plus the message_end retriever resources land in Data.
func (c *Client) decodeAgentStream(body io.Reader) (Result, error) {
	var (
		sb   strings.Builder
		res  Result
		data = map[string]any{}
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream chunk",
				slog.String("payload", truncate(payload, 200)))
			continue
		}
		if c.verbose {
			c.logger.Debug("stream chunk", slog.String("payload", truncate(payload, 500)))
		}

		switch chunk.Event {
		case "agent_message", "message":
			// The conversation id comes from the first message event
			// that carries one.
			if res.ConversationID == "" && chunk.ConversationID != "" {
				res.ConversationID = chunk.ConversationID
			}
			sb.WriteString(chunk.Answer)
		case "agent_thought":
			if chunk.Tool != "" {
				data["tool"] = chunk.Tool
			}
			if chunk.ToolInput != "" {
				data["tool_input"] = chunk.ToolInput
			}
		case "message_end":
			if rr, ok := chunk.Metadata["retriever_resources"]; ok {
				data["retriever_resources"] = rr
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read stream: %w", err)
	}

	res.Text = sb.String()
	res.Data = data
	return res, nil
}
