package service

import (
	"context"
	"encoding/json"
	"fmt"

	"moneyrag/pkg/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIProvider backs a session with the OpenAI API.
type OpenAIProvider struct {
	client     openai.Client
	chatModel  string
	embedModel string
	logger     *zap.Logger
}

func NewOpenAIProvider(cfg *config.OpenAIConfig, chatModel, embedModel string, logger *zap.Logger) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIProvider{
		client:     client,
		chatModel:  chatModel,
		embedModel: embedModel,
		logger:     logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*Completion, error) {
	apiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			apiMessages = append(apiMessages, openai.SystemMessage(msg.Text()))
		case RoleUser:
			apiMessages = append(apiMessages, openai.UserMessage(msg.Text()))
		case RoleAssistant:
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, block := range msg.Blocks {
				if block.Type == BlockToolCall && block.ToolCall != nil {
					args, err := json.Marshal(block.ToolCall.Args)
					if err != nil {
						return nil, fmt.Errorf("failed to marshal tool call arguments: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: block.ToolCall.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      block.ToolCall.Name,
							Arguments: string(args),
						},
					})
				}
			}
			if len(toolCalls) == 0 {
				apiMessages = append(apiMessages, openai.AssistantMessage(msg.Text()))
				continue
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text := msg.Text(); text != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(text),
				}
			}
			apiMessages = append(apiMessages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})
		case RoleTool:
			for _, block := range msg.Blocks {
				if block.Type == BlockToolResult && block.ToolResult != nil {
					apiMessages = append(apiMessages, openai.ToolMessage(block.ToolResult.Content, block.ToolResult.CallID))
				}
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.chatModel),
		Messages:    apiMessages,
		Temperature: openai.Float(0.3),
	}
	if len(tools) > 0 {
		apiTools := make([]openai.ChatCompletionToolParam, 0, len(tools))
		for _, tool := range tools {
			apiTools = append(apiTools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(paramsToJSONSchema(tool.Params)),
				},
			})
		}
		params.Tools = apiTools
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}

	message := resp.Choices[0].Message
	var blocks []ContentBlock
	if message.Content != "" {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: message.Content})
	}
	for _, call := range message.ToolCalls {
		args := make(map[string]interface{})
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				p.logger.Warn("Failed to parse tool call arguments",
					zap.String("tool", call.Function.Name),
					zap.Error(err),
				)
			}
		}
		blocks = append(blocks, ContentBlock{Type: BlockToolCall, ToolCall: &ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		}})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: ""})
	}

	return &Completion{Blocks: blocks}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	embedding := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}
