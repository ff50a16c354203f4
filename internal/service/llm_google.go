package service

import (
	"context"
	"fmt"
	"strings"

	"moneyrag/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GoogleProvider backs a session with the Gemini API through the genai SDK.
type GoogleProvider struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	logger     *zap.Logger
}

func NewGoogleProvider(ctx context.Context, cfg *config.GoogleConfig, chatModel, embedModel string, logger *zap.Logger) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GoogleProvider{
		client:     client,
		chatModel:  chatModel,
		embedModel: embedModel,
		logger:     logger,
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*Completion, error) {
	var systemParts []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Text())
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Text()}},
			})
		case RoleAssistant:
			var parts []*genai.Part
			for _, block := range msg.Blocks {
				switch block.Type {
				case BlockText:
					if block.Text != "" {
						parts = append(parts, &genai.Part{Text: block.Text})
					}
				case BlockToolCall:
					if block.ToolCall != nil {
						parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
							ID:   block.ToolCall.ID,
							Name: block.ToolCall.Name,
							Args: block.ToolCall.Args,
						}})
					}
				}
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case RoleTool:
			var parts []*genai.Part
			for _, block := range msg.Blocks {
				if block.Type == BlockToolResult && block.ToolResult != nil {
					parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
						ID:       block.ToolResult.CallID,
						Name:     block.ToolResult.Name,
						Response: map[string]any{"output": block.ToolResult.Content},
					}})
				}
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
			}
		}
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.3)),
	}
	if len(systemParts) > 0 {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n")}},
		}
	}
	if len(tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  paramsToGenaiSchema(tool.Params),
			})
		}
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.chatModel, contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from LLM")
	}

	var blocks []ContentBlock
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			blocks = append(blocks, ContentBlock{Type: BlockText, Text: part.Text})
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.New().String()
			}
			blocks = append(blocks, ContentBlock{Type: BlockToolCall, ToolCall: &ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}})
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: ""})
	}

	return &Completion{Blocks: blocks}, nil
}

func paramsToGenaiSchema(params []ParamSpec) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(params))
	var required []string
	for _, param := range params {
		propType := genai.TypeString
		if param.Type == "integer" {
			propType = genai.TypeInteger
		}
		properties[param.Name] = &genai.Schema{
			Type:        propType,
			Description: param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

func (p *GoogleProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.embedModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return resp.Embeddings[0].Values, nil
}
