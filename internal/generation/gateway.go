// Package generation produces answers from retrieved context via an LLM,
// keeping a bounded per-session conversation history.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid gateway configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrGenerationFailed indicates the model call failed.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyQuery indicates an empty user query.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything needed to generate one answer.
type Request struct {
	// Query is the user's question.
	Query string

	// Context is the retrieved context block, empty when nothing relevant
	// was found.
	Context string

	// FileScoped marks queries restricted to a single uploaded file, which
	// changes the prompt framing.
	FileScoped bool

	// History is the prior conversation, oldest first.
	History []Message
}

// Gateway generates an answer for a request.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}
