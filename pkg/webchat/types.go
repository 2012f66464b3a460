package webchat

import (
	"strings"

	"github.com/go-go-golems/parley/pkg/chat"
)

// ChatRequestBody is the POST /api/chat payload.
type ChatRequestBody struct {
	ID                     string             `json:"id"`
	Message                ChatRequestMessage `json:"message"`
	SelectedVisibilityType string             `json:"selectedVisibilityType,omitempty"`
}

// ChatRequestMessage carries the inbound user turn.
type ChatRequestMessage struct {
	ID                      string           `json:"id"`
	Parts                   []chat.Part      `json:"parts"`
	ExperimentalAttachments []map[string]any `json:"experimental_attachments,omitempty"`
}

// Question joins the message's text parts into the question sent upstream
// and fingerprinted for the cache.
func (m ChatRequestMessage) Question() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (b ChatRequestBody) validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return badRequest("missing conversation id")
	}
	if strings.TrimSpace(b.Message.ID) == "" {
		return badRequest("missing message id")
	}
	if strings.TrimSpace(b.Message.Question()) == "" {
		return badRequest("missing message text")
	}
	return nil
}
