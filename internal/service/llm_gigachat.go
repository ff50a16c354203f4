package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"moneyrag/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GigaChatProvider backs a session with the GigaChat API. Plain completions
// go through the gigago SDK; embeddings and function-calling completions use
// the REST API directly because the SDK does not cover those endpoints.
type GigaChatProvider struct {
	client      *gigago.Client
	model       *gigago.GenerativeModel
	config      *config.GigaChatConfig
	chatModel   string
	embedModel  string
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

func NewGigaChatProvider(ctx context.Context, cfg *config.GigaChatConfig, chatModel, embedModel string, logger *zap.Logger) (*GigaChatProvider, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel(chatModel)
	model.Temperature = 0.3

	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	accessToken, err := getAccessToken(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return &GigaChatProvider{
		client:      client,
		model:       model,
		config:      cfg,
		chatModel:   chatModel,
		embedModel:  embedModel,
		logger:      logger,
		httpClient:  httpClient,
		accessToken: accessToken,
		// REST API base for the endpoints the SDK lacks.
		// Documentation: https://developers.sber.ru/docs/ru/gigachat/api/main
		baseURL: "https://gigachat.devices.sberbank.ru/api/v1",
	}, nil
}

// getAccessToken obtains an access token from the GigaChat OAuth endpoint.
// The API key is expected to be Base64-encoded already, per the API docs.
func getAccessToken(ctx context.Context, cfg *config.GigaChatConfig, httpClient *http.Client, logger *zap.Logger) (string, error) {
	oauthURL := "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"

	rqUID := uuid.New().String()

	formData := url.Values{}
	formData.Set("scope", cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, "POST", oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", rqUID)
	req.Header.Set("Authorization", "Basic "+cfg.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("OAuth request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("rq_uid", rqUID),
		)
		return "", fmt.Errorf("OAuth failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}

	return oauthResp.AccessToken, nil
}

func (p *GigaChatProvider) Name() string { return "gigachat" }

func (p *GigaChatProvider) Complete(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*Completion, error) {
	// Single user prompt without tools is the SDK's territory; anything with
	// history or function calling goes through the REST API.
	if len(tools) == 0 && len(messages) == 1 && messages[0].Role == RoleUser {
		resp, err := p.model.Generate(ctx, []gigago.Message{
			{Role: gigago.RoleUser, Content: messages[0].Text()},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from LLM")
		}
		return &Completion{Blocks: []ContentBlock{
			{Type: BlockText, Text: resp.Choices[0].Message.Content},
		}}, nil
	}

	return p.completeViaAPI(ctx, messages, tools)
}

type gigaChatMessage struct {
	Role         string            `json:"role"`
	Content      string            `json:"content"`
	FunctionCall *gigaFunctionCall `json:"function_call,omitempty"`
}

type gigaFunctionCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type gigaFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// completeViaAPI calls POST /chat/completions directly, with function
// declarations when tools are present.
func (p *GigaChatProvider) completeViaAPI(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*Completion, error) {
	apiMessages := make([]gigaChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			apiMessages = append(apiMessages, gigaChatMessage{Role: "system", Content: msg.Text()})
		case RoleUser:
			apiMessages = append(apiMessages, gigaChatMessage{Role: "user", Content: msg.Text()})
		case RoleAssistant:
			apiMsg := gigaChatMessage{Role: "assistant", Content: msg.Text()}
			// GigaChat carries at most one function call per assistant turn.
			for _, block := range msg.Blocks {
				if block.Type == BlockToolCall && block.ToolCall != nil {
					apiMsg.FunctionCall = &gigaFunctionCall{
						Name:      block.ToolCall.Name,
						Arguments: block.ToolCall.Args,
					}
					break
				}
			}
			apiMessages = append(apiMessages, apiMsg)
		case RoleTool:
			for _, block := range msg.Blocks {
				if block.Type == BlockToolResult && block.ToolResult != nil {
					apiMessages = append(apiMessages, gigaChatMessage{
						Role:    "function",
						Content: block.ToolResult.Content,
					})
				}
			}
		}
	}

	requestBody := map[string]interface{}{
		"model":       p.chatModel,
		"messages":    apiMessages,
		"temperature": 0.3,
	}
	if len(tools) > 0 {
		functions := make([]gigaFunction, 0, len(tools))
		for _, tool := range tools {
			functions = append(functions, gigaFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  paramsToJSONSchema(tool.Params),
			})
		}
		requestBody["functions"] = functions
		requestBody["function_call"] = "auto"
	}

	body, err := p.doRequest(ctx, "POST", p.baseURL+"/chat/completions", requestBody)
	if err != nil {
		return nil, err
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content      string            `json:"content"`
				FunctionCall *gigaFunctionCall `json:"function_call"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}

	choice := chatResp.Choices[0]
	var blocks []ContentBlock
	if text := strings.TrimSpace(choice.Message.Content); text != "" {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: text})
	}
	if fc := choice.Message.FunctionCall; fc != nil {
		blocks = append(blocks, ContentBlock{Type: BlockToolCall, ToolCall: &ToolCall{
			ID:   uuid.New().String(),
			Name: fc.Name,
			Args: fc.Arguments,
		}})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: ""})
	}

	return &Completion{Blocks: blocks}, nil
}

func (p *GigaChatProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	requestBody := map[string]interface{}{
		"model": p.embedModel,
		"input": []string{text},
	}

	body, err := p.doRequest(ctx, "POST", p.baseURL+"/embeddings", requestBody)
	if err != nil {
		return nil, err
	}

	var embedResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if len(embedResp.Data) == 0 || len(embedResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	return embedResp.Data[0].Embedding, nil
}

// doRequest issues an authorized JSON request, refreshing the OAuth token
// once on 401.
func (p *GigaChatProvider) doRequest(ctx context.Context, method, endpoint string, requestBody interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.accessToken)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		bodyBytes, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			accessToken, err := getAccessToken(ctx, p.config, p.httpClient, p.logger)
			if err != nil {
				return nil, fmt.Errorf("request failed with 401, token refresh also failed: %w", err)
			}
			p.accessToken = accessToken
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}

		return bodyBytes, nil
	}

	return nil, fmt.Errorf("request failed after token refresh")
}

func (p *GigaChatProvider) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
