package intent

import (
	"context"
	"fmt"
	"strings"
)

// Chat roles accepted in a conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Replies the assistant gives when it has nothing better to say.
const (
	ReplyUnavailable = "Sorry, the booking assistant is not available right now."
	ReplyEmpty       = "Sorry, I didn't catch that."
	ReplyFailed      = "Sorry, something went wrong while handling your message."
)

// IntentUnavailable marks a ChatReply produced without a language model.
const IntentUnavailable = "unavailable"

const assistantPrompt = `You are the booking assistant of a campus events service.
Help students find upcoming events and book tickets in plain conversation.
You can list events that are coming up, help someone book a number of
tickets for a named event, and ask a short question when the event or the
number of tickets is missing. Before any booking, restate the event and the
ticket count and ask the user to confirm. Never claim a booking is done.`

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the assistant's answer to one message.
type ChatReply struct {
	Reply  string `json:"reply"`
	Intent string `json:"intent,omitempty"`
}

// Assistant holds a free-form conversation about events. It never books
// anything itself; bookings go through the confirm path.
type Assistant interface {
	Chat(ctx context.Context, message string, history []ChatMessage) (ChatReply, error)
}

// Unavailable is the Assistant used when no language model is configured.
type Unavailable struct{}

var _ Assistant = Unavailable{}

// Chat always answers with ReplyUnavailable.
func (Unavailable) Chat(context.Context, string, []ChatMessage) (ChatReply, error) {
	return ChatReply{Reply: ReplyUnavailable, Intent: IntentUnavailable}, nil
}

// Chat sends the history and message to the model. Like Parse it returns an
// error only when ctx is done; other failures become a stable apology.
func (p *OpenAI) Chat(ctx context.Context, message string, history []ChatMessage) (ChatReply, error) {
	if p.apiKey == "" {
		return Unavailable{}.Chat(ctx, message, history)
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: assistantPrompt})
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: RoleUser, Content: message})

	content, err := p.send(ctx, chatRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ChatReply{}, fmt.Errorf("intent/openai: %w", ctxErr)
		}
		p.logger.Warn("language model chat failed", "error", err)
		return ChatReply{Reply: ReplyFailed}, nil
	}

	reply := strings.TrimSpace(content)
	if reply == "" {
		reply = ReplyEmpty
	}
	return ChatReply{Reply: reply}, nil
}
