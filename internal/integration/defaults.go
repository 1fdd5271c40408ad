package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linedify/linedify/internal/line"
	"github.com/linedify/linedify/internal/session"
)

const defaultErrorMessage = "Error \U0001F972"

// installDefaults fills every extension slot with its built-in behavior.
// Called once from New, before any registration can happen.
func (i *Integrator) installDefaults() {
	i.parsers[line.MessageTypeText] = i.parseText
	i.parsers[line.MessageTypeImage] = i.parseImage
	i.parsers[line.MessageTypeSticker] = i.parseSticker
	i.parsers[line.MessageTypeLocation] = i.parseLocation

	i.inputsBuilder = func(context.Context, line.Event, session.ConversationSession) (map[string]any, error) {
		return map[string]any{}, nil
	}
	i.replyShaper = func(_ context.Context, text string, _ map[string]any, _ session.ConversationSession) ([]line.SendMessage, error) {
		return []line.SendMessage{line.NewTextMessage(text)}, nil
	}
	i.errorShaper = func(context.Context, line.Event, error, *session.ConversationSession) ([]line.SendMessage, error) {
		return []line.SendMessage{line.NewTextMessage(i.errorMessage)}, nil
	}
	i.defaultHandler = func(_ context.Context, event line.Event) ([]line.SendMessage, error) {
		i.logger.Info("unhandled event", slog.String("event_type", string(event.Type)))
		return nil, nil
	}
}

func (i *Integrator) parseText(_ context.Context, message line.Message) (string, []byte, error) {
	return message.Text, nil, nil
}

func (i *Integrator) parseImage(ctx context.Context, message line.Message) (string, []byte, error) {
	image, err := i.content.GetMessageContent(ctx, message.ID)
	if err != nil {
		return "", nil, fmt.Errorf("fetch image content: %w", err)
	}
	return "", image, nil
}

func (i *Integrator) parseSticker(_ context.Context, message line.Message) (string, []byte, error) {
	keywords := strings.Join(message.Keywords, ", ")
	return fmt.Sprintf("You received a sticker from user in messenger app: %s", keywords), nil, nil
}

func (i *Integrator) parseLocation(_ context.Context, message line.Message) (string, []byte, error) {
	text := fmt.Sprintf(
		"You received a location info from user in messenger app:\n    - address: %s\n    - latitude: %v\n    - longitude: %v",
		message.Address, message.Latitude, message.Longitude)
	return text, nil, nil
}
