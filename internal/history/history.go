// Package history exposes one patient's backend conversation as a
// langchaingo chat message history.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/RichardoC/pawtrack/internal/models"
	"github.com/RichardoC/pawtrack/internal/purge"
)

// Conversation reads and purges a patient's conversation.
type Conversation interface {
	Collect(ctx context.Context, token, patientID string) (*purge.Collection, error)
	Purge(ctx context.Context, token, patientID string) (*purge.Result, error)
}

// MessageCreator appends a message to the backend conversation.
type MessageCreator interface {
	CreateMessage(ctx context.Context, token string, msg models.Message) (*models.Message, error)
}

type History struct {
	conv      Conversation
	creator   MessageCreator
	token     string
	patientID string
}

var _ schema.ChatMessageHistory = (*History)(nil)

func New(conv Conversation, creator MessageCreator, token, patientID string) *History {
	return &History{
		conv:      conv,
		creator:   creator,
		token:     token,
		patientID: patientID,
	}
}

// Messages returns the whole conversation in backend order. A partially
// collected conversation is an error.
func (h *History) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	col, err := h.conv.Collect(ctx, h.token, h.patientID)
	if err != nil {
		return nil, err
	}
	if col.Partial {
		return nil, fmt.Errorf("conversation for %s was only partially read (%d pages)", h.patientID, col.Pages)
	}

	out := make([]llms.ChatMessage, 0, len(col.Messages))
	for _, m := range col.Messages {
		out = append(out, toChatMessage(m))
	}
	return out, nil
}

func (h *History) AddMessage(ctx context.Context, message llms.ChatMessage) error {
	role := models.RoleFromChatMessageType(message.GetType())
	if g, ok := message.(llms.GenericChatMessage); ok && g.Role != "" {
		role = models.Role(g.Role)
	}

	_, err := h.creator.CreateMessage(ctx, h.token, models.Message{
		PatientID: h.patientID,
		Role:      role,
		Content:   message.GetContent(),
	})
	return err
}

func (h *History) AddUserMessage(ctx context.Context, message string) error {
	return h.AddMessage(ctx, llms.HumanChatMessage{Content: message})
}

func (h *History) AddAIMessage(ctx context.Context, message string) error {
	return h.AddMessage(ctx, llms.AIChatMessage{Content: message})
}

// Clear purges the conversation. Deletes that failed are reported as an
// error.
func (h *History) Clear(ctx context.Context) error {
	res, err := h.conv.Purge(ctx, h.token, h.patientID)
	if err != nil {
		return err
	}
	if res.FailedCount > 0 {
		return fmt.Errorf("failed to delete %d messages: %s", res.FailedCount, strings.Join(res.FailedIDs, ", "))
	}
	if res.Partial {
		return fmt.Errorf("conversation for %s was only partially cleared", h.patientID)
	}
	return nil
}

// SetMessages replaces the conversation with messages.
func (h *History) SetMessages(ctx context.Context, messages []llms.ChatMessage) error {
	if err := h.Clear(ctx); err != nil {
		return err
	}
	for _, m := range messages {
		if err := h.AddMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func toChatMessage(m models.Message) llms.ChatMessage {
	switch m.Role.ChatMessageType() {
	case llms.ChatMessageTypeHuman:
		return llms.HumanChatMessage{Content: m.Content}
	case llms.ChatMessageTypeAI:
		return llms.AIChatMessage{Content: m.Content}
	case llms.ChatMessageTypeSystem:
		return llms.SystemChatMessage{Content: m.Content}
	default:
		return llms.GenericChatMessage{Role: string(m.Role), Content: m.Content}
	}
}
