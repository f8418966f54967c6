package llm

import (
	"context"
	"errors"
	"strings"
)

// Roles used in chat messages.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat message sent to a model.
type Message struct {
	Role    string
	Content string
}

// Request is a single completion request. JSON asks the provider to
// constrain output to a JSON object.
type Request struct {
	Messages  []Message
	JSON      bool
	MaxTokens int
}

// Completion is the raw model answer plus usage accounting.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer abstracts LLM providers.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// ErrTransient marks provider failures worth retrying: timeouts, network
// errors and 5xx responses.
var ErrTransient = errors.New("transient llm failure")

type extraSystemKey struct{}

// WithExtraSystemMessage returns a context that asks the completer to
// prepend one more system message, used for repair retries.
func WithExtraSystemMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, extraSystemKey{}, msg)
}

// ExtraSystemMessageFromContext returns the repair instruction, if any.
func ExtraSystemMessageFromContext(ctx context.Context) (string, bool) {
	msg, ok := ctx.Value(extraSystemKey{}).(string)
	return msg, ok && strings.TrimSpace(msg) != ""
}

// PrependSystemMessage returns messages with a leading system message.
func PrependSystemMessage(messages []Message, content string) []Message {
	if strings.TrimSpace(content) == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: content})
	out = append(out, messages...)
	return out
}

// Prompt builds the usual system + user pair.
func Prompt(system, user string) Request {
	var msgs []Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user})
	return Request{Messages: msgs, JSON: true}
}
