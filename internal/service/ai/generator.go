package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/devsync-io/devsync/backend/internal/config"
)

// Generator is the external generation capability. Implementations may
// block past the caller's deadline; the pipeline enforces its own.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const systemPrompt = `You are an expert full-stack developer with ten years of experience. ` +
	`You write modular, scalable and maintainable code, handle errors and edge cases, ` +
	`and keep previously working code intact.

Always respond with strictly valid JSON containing a "text" field explaining your ` +
	`solution and, when code is appropriate, a "fileTree" field mapping file paths to ` +
	`{"file": {"contents": "..."}} objects.

Rules:
1. All JSON must use double quotes around property names and string values.
2. Code in "contents" must be escaped as a valid JSON string.
3. Every response must include a meaningful "text" property.
4. Generated code must be complete and runnable.
5. Keep responses concise but complete.`

// einoGenerator runs a compiled prompt+model chain against the
// configured ark model.
type einoGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewGenerator builds the production generator from the AI
// configuration.
func NewGenerator(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile generation chain: %w", err)
	}

	return &einoGenerator{chain: runnable}, nil
}

// Generate submits the prompt and returns the raw model output.
func (g *einoGenerator) Generate(ctx context.Context, userPrompt string) (string, error) {
	input := map[string]any{
		"system": systemPrompt,
		"query": fmt.Sprintf("Task: %s\n\nPlease respond with valid JSON containing a 'text' field "+
			"explaining your solution and a 'fileTree' field with the code implementation if appropriate.", userPrompt),
	}

	response, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run generation chain: %w", err)
	}

	return response.Content, nil
}
