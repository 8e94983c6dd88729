// Package conversation keeps per-chat message logs.
//
// The [Cache] holds the live messages of each active chat and writes
// every message through to a persistent [Store]. Chats that go quiet
// are detached from the cache by the idle sweeper, which then merges
// them with persisted history and exports a digest.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles accepted by the chat API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAdmin     = "admin"
)

// ValidRole reports whether role may be stored in a conversation.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleAdmin:
		return true
	}
	return false
}

// Message is one entry in a chat.
type Message struct {
	ID      string `json:"id"`
	ChatID  string `json:"chat_id"`
	OwnerID string `json:"owner_id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	// AdminID identifies the human operator for RoleAdmin messages.
	// It is cleared for every other role.
	AdminID   string    `json:"admin_id,omitempty"`
	Persona   string    `json:"persona,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// newMessage stamps a message with a fresh time-ordered ID.
func newMessage(in Message, now time.Time) Message {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	in.ID = id.String()
	in.Timestamp = now.UTC()
	if in.Role != RoleAdmin {
		in.AdminID = ""
	}
	return in
}
