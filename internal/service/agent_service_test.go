package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"moneyrag/internal/models"
	"moneyrag/internal/repository"

	"go.uber.org/zap"
)

// newAgentFixture stands up a full agent over a seeded, indexed session
// database. maxRounds <= 0 uses the default budget.
func newAgentFixture(t *testing.T, provider LLMProvider, maxRounds int) *Agent {
	t.Helper()
	logger := zap.NewNop()
	db := openTestDB(t)
	txRepo := repository.NewTransactionRepository(db, logger)
	vecRepo := repository.NewVectorRepository(db, logger)

	seedTransactions(t, txRepo, []*models.Transaction{
		testTransaction("STARBUCKS COFFEE", 4.50, "Dining", "a coffee shop"),
		testTransaction("WALMART", 25.00, "Merchandise", "a retail chain"),
	})
	if _, err := NewIndexService(provider, txRepo, vecRepo, logger).Rebuild(context.Background()); err != nil {
		t.Fatalf("failed to build index: %v", err)
	}

	return NewAgent(context.Background(), provider, NewQueryTool(db, logger), vecRepo, 5, maxRounds, logger)
}

func TestAgentChatKeepsThread(t *testing.T) {
	provider := &scriptedProvider{finalText: "noted"}
	agent := newAgentFixture(t, provider, 0)
	ctx := context.Background()

	if _, err := agent.Chat(ctx, "first question"); err != nil {
		t.Fatalf("first Chat() error = %v", err)
	}
	if _, err := agent.Chat(ctx, "second question"); err != nil {
		t.Fatalf("second Chat() error = %v", err)
	}

	if len(provider.transcripts) != 2 {
		t.Fatalf("completions = %d, want 2", len(provider.transcripts))
	}

	// The second completion sees the whole thread so far.
	thread := provider.transcripts[1]
	if len(thread) != 4 {
		t.Fatalf("thread length = %d, want 4 (system, user, assistant, user)", len(thread))
	}
	system := thread[0]
	if system.Role != RoleSystem || !strings.Contains(system.Text(), "financial analyst") {
		t.Errorf("system message = %+v", system)
	}
	if !strings.Contains(system.Text(), "Database schema:") || !strings.Contains(system.Text(), "Table: transactions") {
		t.Errorf("system prompt missing schema:\n%s", system.Text())
	}
	if thread[1].Text() != "first question" || thread[3].Text() != "second question" {
		t.Errorf("user turns = %q, %q", thread[1].Text(), thread[3].Text())
	}
	if thread[2].Role != RoleAssistant || thread[2].Text() != "noted" {
		t.Errorf("assistant turn = %+v", thread[2])
	}
}

func TestAgentChatToolLoop(t *testing.T) {
	provider := &scriptedProvider{completions: []*Completion{
		{Blocks: []ContentBlock{
			{Type: BlockText, Text: "Checking the database."},
			{Type: BlockToolCall, ToolCall: &ToolCall{
				ID:   "call-1",
				Name: toolQueryDatabase,
				Args: map[string]interface{}{"query": "SELECT description FROM transactions ORDER BY description"},
			}},
		}},
		{Blocks: []ContentBlock{{Type: BlockText, Text: "You bought coffee at Starbucks."}}},
	}}
	agent := newAgentFixture(t, provider, 0)

	answer, err := agent.Chat(context.Background(), "where did I buy coffee?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "You bought coffee at Starbucks." {
		t.Errorf("answer = %q", answer)
	}

	if len(provider.transcripts) != 2 {
		t.Fatalf("completions = %d, want 2", len(provider.transcripts))
	}
	thread := provider.transcripts[1]
	last := thread[len(thread)-1]
	if last.Role != RoleTool || len(last.Blocks) != 1 {
		t.Fatalf("last message = %+v, want one tool result", last)
	}
	result := last.Blocks[0].ToolResult
	if result == nil || result.CallID != "call-1" || result.Name != toolQueryDatabase {
		t.Fatalf("tool result = %+v", result)
	}
	want := "description\nSTARBUCKS COFFEE\nWALMART"
	if result.Content != want {
		t.Errorf("tool result content = %q, want %q", result.Content, want)
	}
}

func TestAgentChatSemanticSearch(t *testing.T) {
	provider := &scriptedProvider{completions: []*Completion{
		{Blocks: []ContentBlock{
			{Type: BlockToolCall, ToolCall: &ToolCall{
				ID:   "call-7",
				Name: toolSearchTransactions,
				Args: map[string]interface{}{"query": "coffee shops"},
			}},
		}},
		{Blocks: []ContentBlock{{Type: BlockText, Text: "done"}}},
	}}
	agent := newAgentFixture(t, provider, 0)

	if _, err := agent.Chat(context.Background(), "any coffee purchases?"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	thread := provider.transcripts[1]
	content := thread[len(thread)-1].Blocks[0].ToolResult.Content
	if !strings.HasPrefix(content, "1. ") {
		t.Errorf("search result not numbered: %q", content)
	}
	if !strings.Contains(content, "STARBUCKS COFFEE") || !strings.Contains(content, "WALMART") {
		t.Errorf("search result missing indexed rows: %q", content)
	}
	if !strings.Contains(content, "amount: 4.50, category: Dining, date: 2011-01-05 00:00:00") {
		t.Errorf("search result missing metadata: %q", content)
	}
}

func TestAgentChatToolErrors(t *testing.T) {
	provider := &scriptedProvider{completions: []*Completion{
		{Blocks: []ContentBlock{
			{Type: BlockToolCall, ToolCall: &ToolCall{
				ID:   "a",
				Name: "fetch_weather",
				Args: map[string]interface{}{"query": "x"},
			}},
			{Type: BlockToolCall, ToolCall: &ToolCall{
				ID:   "b",
				Name: toolSearchTransactions,
				Args: map[string]interface{}{},
			}},
		}},
		{Blocks: []ContentBlock{{Type: BlockText, Text: "ok"}}},
	}}
	agent := newAgentFixture(t, provider, 0)

	if _, err := agent.Chat(context.Background(), "hm"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	thread := provider.transcripts[1]
	last := thread[len(thread)-1]
	if len(last.Blocks) != 2 {
		t.Fatalf("tool results = %d, want 2", len(last.Blocks))
	}
	if got := last.Blocks[0].ToolResult.Content; got != `Error: unknown tool "fetch_weather"` {
		t.Errorf("unknown tool result = %q", got)
	}
	if got := last.Blocks[1].ToolResult.Content; got != "Error: empty search query" {
		t.Errorf("empty query result = %q", got)
	}
}

func TestAgentChatRoundLimit(t *testing.T) {
	provider := &scriptedProvider{}
	provider.completeFn = func(messages []ChatMessage, tools []ToolSpec) (*Completion, error) {
		// Keep asking for tools until the agent takes them away.
		if tools == nil {
			return &Completion{Blocks: []ContentBlock{{Type: BlockText, Text: "best effort answer"}}}, nil
		}
		return &Completion{Blocks: []ContentBlock{
			{Type: BlockToolCall, ToolCall: &ToolCall{
				ID:   "loop",
				Name: toolQueryDatabase,
				Args: map[string]interface{}{"query": "SELECT 1"},
			}},
		}}, nil
	}
	agent := newAgentFixture(t, provider, 2)

	answer, err := agent.Chat(context.Background(), "spiral")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "best effort answer" {
		t.Errorf("answer = %q", answer)
	}
	if provider.calls != 3 {
		t.Errorf("completions = %d, want 3 (two tool rounds, one forced)", provider.calls)
	}
}

func TestAgentChatProviderError(t *testing.T) {
	provider := &scriptedProvider{completeFn: func(messages []ChatMessage, tools []ToolSpec) (*Completion, error) {
		return nil, fmt.Errorf("provider unreachable")
	}}
	agent := newAgentFixture(t, provider, 0)

	if _, err := agent.Chat(context.Background(), "q"); err == nil {
		t.Fatal("Chat() error = nil, want provider error")
	}
}
