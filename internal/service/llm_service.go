package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moneyrag/pkg/config"

	"go.uber.org/zap"
)

// ErrUnknownProvider rejects a session request naming a provider this build
// does not ship.
var ErrUnknownProvider = errors.New("unknown LLM provider")

// Chat roles of the provider-neutral transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content block types. Completions may interleave text and tool calls;
// answer extraction keeps only text blocks.
const (
	BlockText       = "text"
	BlockToolCall   = "tool_call"
	BlockToolResult = "tool_result"
)

type ContentBlock struct {
	Type       string
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

type ChatMessage struct {
	Role   string
	Blocks []ContentBlock
}

// TextMessage builds a single-text-block message.
func TextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Blocks: []ContentBlock{{Type: BlockText, Text: text}}}
}

// Text concatenates the message's text blocks.
func (m ChatMessage) Text() string {
	var b strings.Builder
	for _, block := range m.Blocks {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolSpec declares one callable tool to the completion capability. Params
// translate into each provider's function-declaration schema.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ParamSpec
}

type ParamSpec struct {
	Name        string
	Type        string // "string" or "integer"
	Description string
	Required    bool
}

// Completion is one model turn: text blocks, tool-call blocks, or both.
type Completion struct {
	Blocks []ContentBlock
}

func (c *Completion) ToolCalls() []*ToolCall {
	var calls []*ToolCall
	for _, block := range c.Blocks {
		if block.Type == BlockToolCall && block.ToolCall != nil {
			calls = append(calls, block.ToolCall)
		}
	}
	return calls
}

// LLMProvider is the completion + embedding capability behind a session.
// The variant is chosen once at session construction and never re-dispatched
// per call.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*Completion, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewProvider builds the named provider. Model names fall back to the
// provider's configured defaults when empty.
func NewProvider(ctx context.Context, cfg *config.Config, name, chatModel, embedModel string, logger *zap.Logger) (LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gigachat":
		if chatModel == "" {
			chatModel = cfg.GigaChat.ChatModel
		}
		if embedModel == "" {
			embedModel = cfg.GigaChat.EmbeddingModel
		}
		return NewGigaChatProvider(ctx, &cfg.GigaChat, chatModel, embedModel, logger)
	case "google":
		if chatModel == "" {
			chatModel = cfg.Google.ChatModel
		}
		if embedModel == "" {
			embedModel = cfg.Google.EmbeddingModel
		}
		return NewGoogleProvider(ctx, &cfg.Google, chatModel, embedModel, logger)
	case "openai":
		if chatModel == "" {
			chatModel = cfg.OpenAI.ChatModel
		}
		if embedModel == "" {
			embedModel = cfg.OpenAI.EmbeddingModel
		}
		return NewOpenAIProvider(&cfg.OpenAI, chatModel, embedModel, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

// ExtractAnswer turns a completion into the final answer text. Text blocks
// are joined with newlines in order; everything else is dropped. A
// completion with no text at all is an extraction ambiguity: logged, empty
// string returned, the turn is not failed.
func ExtractAnswer(c *Completion, logger *zap.Logger) string {
	var parts []string
	for _, block := range c.Blocks {
		if block.Type == BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}

	if len(parts) == 0 {
		logger.Warn("Completion contained no text blocks",
			zap.Int("blocks", len(c.Blocks)),
		)
		return ""
	}

	return strings.Join(parts, "\n")
}

// CompleteText runs a single-prompt completion with no tools and returns the
// text. Used by the schema mapper.
func CompleteText(ctx context.Context, provider LLMProvider, prompt string, logger *zap.Logger) (string, error) {
	completion, err := provider.Complete(ctx, []ChatMessage{TextMessage(RoleUser, prompt)}, nil)
	if err != nil {
		return "", err
	}
	return ExtractAnswer(completion, logger), nil
}

// paramsToJSONSchema renders tool parameters as a JSON Schema object, the
// shape both the GigaChat and OpenAI function-calling APIs expect.
func paramsToJSONSchema(params []ParamSpec) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := make([]string, 0, len(params))
	for _, param := range params {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// extractJSONObject pulls the first JSON object out of a model response that
// may be wrapped in markdown fences or surrounded by commentary.
func extractJSONObject(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in response: %s", content)
	}

	return content[start : end+1], nil
}
