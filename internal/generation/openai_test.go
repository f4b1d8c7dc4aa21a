package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewOpenAIGateway_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIGateway(OpenAIConfig{}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIGateway_RejectsEmptyQuery(t *testing.T) {
	g, err := NewOpenAIGateway(OpenAIConfig{APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		contains []string
		excludes []string
	}{
		{
			name:     "with context",
			req:      Request{Query: "what is chunking", Context: "chunking splits text"},
			contains: []string{"chunking splits text", "what is chunking", "prioritize the provided context"},
		},
		{
			name:     "file scoped",
			req:      Request{Query: "summarize this", Context: "the document body", FileScoped: true},
			contains: []string{"the document body", "ONLY", "Document Content"},
		},
		{
			name:     "no context",
			req:      Request{Query: "hello there"},
			contains: []string{"hello there"},
			excludes: []string{"Context:", "Document Content"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := buildPrompt(tt.req)
			for _, want := range tt.contains {
				assert.True(t, strings.Contains(prompt, want), "prompt missing %q", want)
			}
			for _, unwanted := range tt.excludes {
				assert.False(t, strings.Contains(prompt, unwanted), "prompt has %q", unwanted)
			}
		})
	}
}

func TestIsRetryableAPIError(t *testing.T) {
	assert.False(t, isRetryableAPIError(context.Canceled))
	assert.False(t, isRetryableAPIError(nil))
}
