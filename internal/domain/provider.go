package domain

import "context"

// Role is the author role of a turn sent to an LLM.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation sent to the model.
type Turn struct {
	Role    Role
	Content string
}

// ChatProvider is the interface all LLM backends implement.
type ChatProvider interface {
	Name() string
	// Complete sends the system prompt followed by turns and returns the
	// text of the top completion.
	Complete(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}
