package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"moneyrag/internal/repository"

	"go.uber.org/zap"
)

const (
	toolQueryDatabase      = "query_database"
	toolSearchTransactions = "search_transactions"
)

const analystPrompt = "You are a financial analyst. Use the provided tools to query the database " +
	"and perform semantic searches. Spending is POSITIVE (>0). " +
	"Always explain your findings clearly."

// Agent is the per-session conversation controller: one provider, exactly
// two tools, and the running thread state. Thread state never leaves the
// owning session.
type Agent struct {
	provider  LLMProvider
	queryTool *QueryTool
	vecRepo   *repository.VectorRepository
	tools     []ToolSpec
	topK      int
	maxRounds int
	logger    *zap.Logger

	mu       sync.Mutex
	messages []ChatMessage
}

func NewAgent(ctx context.Context, provider LLMProvider, queryTool *QueryTool, vecRepo *repository.VectorRepository, topK, maxRounds int, logger *zap.Logger) *Agent {
	if topK <= 0 {
		topK = 5
	}
	if maxRounds <= 0 {
		maxRounds = 8
	}

	systemPrompt := analystPrompt
	if schema := queryTool.SchemaInfo(ctx); schema != "" {
		systemPrompt += "\n\nDatabase schema:" + schema
	}

	tools := []ToolSpec{
		{
			Name: toolQueryDatabase,
			Description: "Execute a SELECT query on the transactions database. " +
				"Only SELECT and PRAGMA queries are allowed. " +
				"The 'amount' column is positive for spending and negative for payments or refunds. " +
				"Use the 'description' column for text matching. " +
				"Example queries: " +
				"SELECT SUM(amount) FROM transactions WHERE description LIKE '%Walmart%' AND amount > 0; " +
				"SELECT category, SUM(amount) FROM transactions WHERE amount > 0 GROUP BY category;",
			Params: []ParamSpec{
				{Name: "query", Type: "string", Description: "The SQL SELECT query to execute", Required: true},
			},
		},
		{
			Name: toolSearchTransactions,
			Description: "Semantic search over transaction descriptions. " +
				"Returns the closest matching transactions with amount, category and date.",
			Params: []ParamSpec{
				{Name: "query", Type: "string", Description: "Natural-language description of what to find", Required: true},
			},
		},
	}

	return &Agent{
		provider:  provider,
		queryTool: queryTool,
		vecRepo:   vecRepo,
		tools:     tools,
		topK:      topK,
		maxRounds: maxRounds,
		logger:    logger,
		messages:  []ChatMessage{TextMessage(RoleSystem, systemPrompt)},
	}
}

// Chat runs one user turn through the tool loop and returns the answer
// text. Tool output always goes back to the model as a string; only provider
// failures and context cancellation error out.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messages = append(a.messages, TextMessage(RoleUser, message))

	for round := 0; round < a.maxRounds; round++ {
		completion, err := a.provider.Complete(ctx, a.messages, a.tools)
		if err != nil {
			return "", fmt.Errorf("completion failed: %w", err)
		}

		a.messages = append(a.messages, ChatMessage{Role: RoleAssistant, Blocks: completion.Blocks})

		calls := completion.ToolCalls()
		if len(calls) == 0 {
			return ExtractAnswer(completion, a.logger), nil
		}

		resultBlocks := make([]ContentBlock, 0, len(calls))
		for _, call := range calls {
			output := a.runTool(ctx, call)
			resultBlocks = append(resultBlocks, ContentBlock{
				Type: BlockToolResult,
				ToolResult: &ToolResult{
					CallID:  call.ID,
					Name:    call.Name,
					Content: output,
				},
			})
		}
		a.messages = append(a.messages, ChatMessage{Role: RoleTool, Blocks: resultBlocks})
	}

	// Tool budget exhausted, force a final answer without tools.
	a.logger.Warn("Agent hit tool round limit", zap.Int("max_rounds", a.maxRounds))

	completion, err := a.provider.Complete(ctx, a.messages, nil)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	a.messages = append(a.messages, ChatMessage{Role: RoleAssistant, Blocks: completion.Blocks})
	return ExtractAnswer(completion, a.logger), nil
}

func (a *Agent) runTool(ctx context.Context, call *ToolCall) string {
	query, _ := call.Args["query"].(string)

	a.logger.Info("Agent tool call",
		zap.String("tool", call.Name),
		zap.String("query", query),
	)

	switch call.Name {
	case toolQueryDatabase:
		return a.queryTool.Run(ctx, query)
	case toolSearchTransactions:
		return a.searchTransactions(ctx, query)
	default:
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}
}

func (a *Agent) searchTransactions(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return "Error: empty search query"
	}

	embedding, err := a.provider.Embed(ctx, query)
	if err != nil {
		return "Error: " + err.Error()
	}

	hits, err := a.vecRepo.SearchSimilar(ctx, embedding, a.topK)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(hits) == 0 {
		return "No results found"
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n   amount: %.2f, category: %s, date: %s\n",
			i+1, hit.Record.Text, hit.Record.Amount, hit.Record.Category, hit.Record.TransactionDate)
	}
	return strings.TrimRight(b.String(), "\n")
}
