// Package integration is the core pipeline: it resolves one inbound LINE
// event to outbound reply messages through the session store and the Dify
// backend, with overridable extension slots at every stage.
package integration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/linedify/linedify/internal/dify"
	"github.com/linedify/linedify/internal/line"
	"github.com/linedify/linedify/internal/session"
)

// SessionStore is the session surface the pipeline needs.
type SessionStore interface {
	GetSession(ctx context.Context, userID string) (session.ConversationSession, error)
	SetSession(ctx context.Context, s session.ConversationSession) error
}

// Backend runs one conversation turn.
type Backend interface {
	Invoke(ctx context.Context, req dify.InvokeRequest) (dify.Result, error)
}

// ContentFetcher downloads message attachments from the platform.
type ContentFetcher interface {
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
}

// ValidatorFunc inspects an event before any processing. A non-nil return
// short-circuits the pipeline: the messages are the reply, the session is
// untouched and the backend is not called.
type ValidatorFunc func(ctx context.Context, event line.Event) []line.SendMessage

// EventHandlerFunc handles one event type end to end.
type EventHandlerFunc func(ctx context.Context, event line.Event) ([]line.SendMessage, error)

// MessageParserFunc extracts the backend query text and optional image
// bytes from one message variant.
type MessageParserFunc func(ctx context.Context, message line.Message) (string, []byte, error)

// InputsBuilderFunc produces the Dify inputs map for a turn.
type InputsBuilderFunc func(ctx context.Context, event line.Event, sess session.ConversationSession) (map[string]any, error)

// ReplyShaperFunc converts a backend result into outbound messages.
type ReplyShaperFunc func(ctx context.Context, text string, data map[string]any, sess session.ConversationSession) ([]line.SendMessage, error)

// ErrorShaperFunc converts a processing failure into outbound messages.
// sess is the last session resolved before the failure, nil when none was.
type ErrorShaperFunc func(ctx context.Context, event line.Event, cause error, sess *session.ConversationSession) ([]line.SendMessage, error)

// Integrator dispatches inbound events. Registration methods may be called
// at any time; dispatch holds a read lock.
type Integrator struct {
	logger   *slog.Logger
	sessions SessionStore
	backend  Backend
	content  ContentFetcher

	errorMessage string

	mu             sync.RWMutex
	validator      ValidatorFunc
	handlers       map[line.EventType]EventHandlerFunc
	parsers        map[line.MessageType]MessageParserFunc
	inputsBuilder  InputsBuilderFunc
	replyShaper    ReplyShaperFunc
	errorShaper    ErrorShaperFunc
	defaultHandler EventHandlerFunc
}

type Option func(*Integrator)

// WithErrorMessage overrides the text of the default error reply.
func WithErrorMessage(msg string) Option {
	return func(i *Integrator) {
		if msg != "" {
			i.errorMessage = msg
		}
	}
}

func New(log *slog.Logger, sessions SessionStore, backend Backend, content ContentFetcher, opts ...Option) *Integrator {
	i := &Integrator{
		logger:       log.With(slog.String("service", "integration")),
		sessions:     sessions,
		backend:      backend,
		content:      content,
		errorMessage: defaultErrorMessage,
		handlers:     map[line.EventType]EventHandlerFunc{},
		parsers:      map[line.MessageType]MessageParserFunc{},
	}
	for _, opt := range opts {
		opt(i)
	}
	i.installDefaults()
	return i
}

// SetValidator installs the pre-processing validator. Passing nil removes
// it.
func (i *Integrator) SetValidator(fn ValidatorFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.validator = fn
}

// HandleEvent replaces the handler for one event type.
func (i *Integrator) HandleEvent(eventType line.EventType, fn EventHandlerFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers[eventType] = fn
}

// ParseMessage replaces the parser for one message type.
func (i *Integrator) ParseMessage(messageType line.MessageType, fn MessageParserFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.parsers[messageType] = fn
}

// SetInputsBuilder replaces the Dify inputs builder.
func (i *Integrator) SetInputsBuilder(fn InputsBuilderFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inputsBuilder = fn
}

// SetReplyShaper replaces the backend-result-to-messages shaper.
func (i *Integrator) SetReplyShaper(fn ReplyShaperFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.replyShaper = fn
}

// SetErrorShaper replaces the failure-to-messages shaper.
func (i *Integrator) SetErrorShaper(fn ErrorShaperFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.errorShaper = fn
}

// SetDefaultHandler replaces the fall-through for event types with no
// registered handler.
func (i *Integrator) SetDefaultHandler(fn EventHandlerFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.defaultHandler = fn
}

// ProcessEvents runs each event of a delivery independently, in order. One
// failing event never blocks the rest.
func (i *Integrator) ProcessEvents(ctx context.Context, events []line.Event) [][]line.SendMessage {
	replies := make([][]line.SendMessage, len(events))
	for idx, ev := range events {
		replies[idx] = i.ProcessEvent(ctx, ev)
	}
	return replies
}

// ProcessEvent resolves one event to its reply messages. Errors are
// contained: they surface as the error shaper's messages, never as a
// returned error.
func (i *Integrator) ProcessEvent(ctx context.Context, event line.Event) []line.SendMessage {
	log := i.logger.With(
		slog.String("turn_id", uuid.NewString()),
		slog.String("event_type", string(event.Type)),
		slog.String("user_id", event.Source.UserID))

	msgs, sess, err := i.dispatch(ctx, log, event)
	if err == nil {
		return msgs
	}

	log.Error("event processing failed", slog.String("error", err.Error()))

	i.mu.RLock()
	shaper := i.errorShaper
	i.mu.RUnlock()

	errMsgs, shapeErr := shaper(ctx, event, err, sess)
	if shapeErr != nil {
		log.Error("error shaper failed", slog.String("error", shapeErr.Error()))
		return nil
	}
	return errMsgs
}

func (i *Integrator) dispatch(ctx context.Context, log *slog.Logger, event line.Event) ([]line.SendMessage, *session.ConversationSession, error) {
	i.mu.RLock()
	validator := i.validator
	handler, hasHandler := i.handlers[event.Type]
	defaultHandler := i.defaultHandler
	i.mu.RUnlock()

	if validator != nil {
		if msgs := validator(ctx, event); msgs != nil {
			log.Debug("validator short-circuit", slog.Int("messages", len(msgs)))
			return msgs, nil, nil
		}
	}

	if hasHandler {
		msgs, err := handler(ctx, event)
		return msgs, nil, err
	}

	if event.Type == line.EventTypeMessage {
		return i.handleMessage(ctx, log, event)
	}

	msgs, err := defaultHandler(ctx, event)
	return msgs, nil, err
}

// handleMessage is the default message-event flow: parse, resolve session,
// invoke the backend, persist the new linkage, shape the reply.
func (i *Integrator) handleMessage(ctx context.Context, log *slog.Logger, event line.Event) ([]line.SendMessage, *session.ConversationSession, error) {
	if event.Message == nil {
		return nil, nil, fmt.Errorf("message event without message payload")
	}

	i.mu.RLock()
	parser, hasParser := i.parsers[event.Message.Type]
	inputsBuilder := i.inputsBuilder
	replyShaper := i.replyShaper
	i.mu.RUnlock()

	if !hasParser {
		return nil, nil, &UnsupportedMessageTypeError{MessageType: string(event.Message.Type)}
	}

	text, image, err := parser(ctx, *event.Message)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s message: %w", event.Message.Type, err)
	}

	sess, err := i.sessions.GetSession(ctx, event.Source.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}

	inputs, err := inputsBuilder(ctx, event, sess)
	if err != nil {
		return nil, &sess, fmt.Errorf("build inputs: %w", err)
	}

	res, err := i.backend.Invoke(ctx, dify.InvokeRequest{
		ConversationID: sess.ConversationID,
		Text:           text,
		Image:          image,
		Inputs:         inputs,
	})
	if err != nil {
		return nil, &sess, fmt.Errorf("invoke backend: %w", err)
	}

	sess.ConversationID = res.ConversationID
	if err := i.sessions.SetSession(ctx, sess); err != nil {
		return nil, &sess, fmt.Errorf("set session: %w", err)
	}

	log.Info("turn completed",
		slog.String("conversation_id", sess.ConversationID),
		slog.Int("answer_len", len(res.Text)))

	msgs, err := replyShaper(ctx, res.Text, res.Data, sess)
	if err != nil {
		return nil, &sess, fmt.Errorf("shape reply: %w", err)
	}
	return msgs, &sess, nil
}
