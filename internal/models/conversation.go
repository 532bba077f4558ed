package models

import (
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Role tags the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessageType maps the backend role onto the langchaingo message type.
// Unknown roles are kept as generic messages.
func (r Role) ChatMessageType() llms.ChatMessageType {
	switch r {
	case RoleUser:
		return llms.ChatMessageTypeHuman
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeGeneric
	}
}

// RoleFromChatMessageType is the inverse of Role.ChatMessageType.
func RoleFromChatMessageType(t llms.ChatMessageType) Role {
	switch t {
	case llms.ChatMessageTypeHuman:
		return RoleUser
	case llms.ChatMessageTypeAI:
		return RoleAssistant
	case llms.ChatMessageTypeSystem:
		return RoleSystem
	default:
		return Role(t)
	}
}

type Message struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Role      Role      `json:"role"` // user, assistant, or system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PurgeRun is the audit record of one conversation purge.
type PurgeRun struct {
	ID         int64     `json:"id"`
	PatientID  string    `json:"patientId"`
	Attempted  int       `json:"attempted"`
	Confirmed  int       `json:"confirmed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Pages      int       `json:"pages"`
	Partial    bool      `json:"partial"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
