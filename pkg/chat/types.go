package chat

import (
	"strings"
	"time"
)

// Visibility controls who can read a conversation.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ParseVisibility maps free-form client input onto a known visibility,
// defaulting to private.
func ParseVisibility(s string) Visibility {
	if Visibility(strings.TrimSpace(strings.ToLower(s))) == VisibilityPublic {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Conversation is one chat thread owned by a single user. The owner is fixed
// at creation.
type Conversation struct {
	ID         string
	UserID     string
	Title      string
	Visibility Visibility
	CreatedAt  time.Time
}

// Part is one piece of turn content. Only text parts carry meaning for the
// upstream agent; other types are stored verbatim.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Turn is a single message within a conversation. Turns are append-only:
// nothing in this system mutates or deletes one after insert.
type Turn struct {
	ID             string
	ConversationID string
	Role           Role
	Parts          []Part
	Attachments    []map[string]any
	CreatedAt      time.Time
}

// Text joins the text content of the turn's parts.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// CacheEntry is a stored answer keyed by question fingerprint, scoped to the
// (user, conversation) pair it was recorded under.
type CacheEntry struct {
	ID             string
	ConversationID string
	UserID         string
	QuestionHash   string
	Question       string
	Answer         string
	HitCount       int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the entry is past its expiry at the given instant.
// A zero ExpiresAt means the entry never expires.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

const maxTitleLen = 50

// TitleForQuestion derives a conversation title from the first user question,
// truncated with an ellipsis when it runs long.
func TitleForQuestion(question string) string {
	q := strings.TrimSpace(question)
	if q == "" {
		return "New Chat"
	}
	if len(q) > maxTitleLen {
		return q[:maxTitleLen-3] + "..."
	}
	return q
}
