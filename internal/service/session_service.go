package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"moneyrag/internal/repository"
	"moneyrag/pkg/config"
	"moneyrag/pkg/sqlite"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotReady rejects chat on a session whose corpus has not been
// ingested and indexed yet.
var ErrSessionNotReady = errors.New("session is not ready, ingest CSV files first")

// Session is one user's isolated workspace: its own temp dir, SQLite file,
// vector collection, merchant cache, provider and, once ready, agent.
type Session struct {
	ID       string
	Provider LLMProvider
	TempDir  string

	db      *sql.DB
	txRepo  *repository.TransactionRepository
	vecRepo *repository.VectorRepository
	cache   *MerchantCache

	mu    sync.Mutex
	agent *Agent
	ready bool
}

// Ready reports whether the session has an indexed corpus and a live agent.
func (sn *Session) Ready() bool {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.ready
}

// FileResult reports one file's ingestion outcome.
type FileResult struct {
	File string
	Rows int
	Err  error
}

// SetupResult summarizes one setup run across all submitted files.
type SetupResult struct {
	Files   []FileResult
	Indexed int
	Ready   bool
}

// SessionService owns the live session registry and the full session
// lifecycle from creation to cleanup.
type SessionService struct {
	cfg    *config.Config
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionService(cfg *config.Config, logger *zap.Logger) *SessionService {
	return &SessionService{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create builds the provider and the session-scoped storage. Model names
// resolve request value first, then the global override, then the provider's
// configured default.
func (s *SessionService) Create(ctx context.Context, providerName, chatModel, embedModel string) (*Session, error) {
	if providerName == "" {
		providerName = s.cfg.Provider.Name
	}
	if chatModel == "" {
		chatModel = s.cfg.Provider.ChatModel
	}
	if embedModel == "" {
		embedModel = s.cfg.Provider.EmbeddingModel
	}

	provider, err := NewProvider(ctx, s.cfg, providerName, chatModel, embedModel, s.logger)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp(s.cfg.Storage.TempDir, "moneyrag-session-")
	if err != nil {
		closeProvider(provider, s.logger)
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := sqlite.Open(ctx, filepath.Join(tempDir, "money_rag.db"), s.logger)
	if err != nil {
		closeProvider(provider, s.logger)
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	session := &Session{
		ID:       uuid.New().String(),
		Provider: provider,
		TempDir:  tempDir,
		db:       db,
		txRepo:   repository.NewTransactionRepository(db, s.logger),
		vecRepo:  repository.NewVectorRepository(db, s.logger),
		cache:    NewMerchantCache(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("Created session",
		zap.String("session_id", session.ID),
		zap.String("provider", provider.Name()),
	)

	return session, nil
}

// Get looks up a live session by ID.
func (s *SessionService) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Setup ingests the given CSV files serially, rebuilds the vector index and
// constructs the agent. A failed file is captured in the result and does not
// abort the remaining files; an empty corpus after all files fails the setup
// and leaves the session not ready.
func (s *SessionService) Setup(ctx context.Context, session *Session, filePaths []string) (*SetupResult, error) {
	mapper := NewSchemaMapper(session.Provider, s.logger)
	searcher := NewDuckDuckGoSearcher(s.cfg.Enrich.SearchTimeout, s.logger)
	enricher := NewMerchantEnricher(searcher, &s.cfg.Enrich, s.logger)
	ingester := NewIngestService(mapper, enricher, session.txRepo, s.logger)
	indexer := NewIndexService(session.Provider, session.txRepo, session.vecRepo, s.logger)

	result := &SetupResult{}
	for _, path := range filePaths {
		fileName := filepath.Base(path)
		rows, err := ingester.IngestFile(ctx, path, session.cache)
		if err != nil {
			s.logger.Error("File ingestion failed",
				zap.String("session_id", session.ID),
				zap.String("file", fileName),
				zap.Error(err),
			)
			result.Files = append(result.Files, FileResult{File: fileName, Err: err})
			continue
		}
		result.Files = append(result.Files, FileResult{File: fileName, Rows: rows})
	}

	indexed, err := indexer.Rebuild(ctx)
	if err != nil {
		return result, err
	}
	result.Indexed = indexed

	queryTool := NewQueryTool(session.db, s.logger)
	agent := NewAgent(ctx, session.Provider, queryTool, session.vecRepo, s.cfg.Vector.TopK, s.cfg.Agent.MaxToolRounds, s.logger)

	session.mu.Lock()
	session.agent = agent
	session.ready = true
	session.mu.Unlock()

	result.Ready = true

	s.logger.Info("Session is ready",
		zap.String("session_id", session.ID),
		zap.Int("indexed", indexed),
	)

	return result, nil
}

// Chat delegates one user turn to the session's agent.
func (s *SessionService) Chat(ctx context.Context, session *Session, message string) (string, error) {
	session.mu.Lock()
	agent := session.agent
	ready := session.ready
	session.mu.Unlock()

	if !ready || agent == nil {
		return "", ErrSessionNotReady
	}

	return agent.Chat(ctx, message)
}

// Cleanup releases everything the session holds. Best effort: failures are
// logged, never raised.
func (s *SessionService) Cleanup(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	if err := session.db.Close(); err != nil {
		s.logger.Warn("Failed to close session database",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
	closeProvider(session.Provider, s.logger)
	if err := os.RemoveAll(session.TempDir); err != nil {
		s.logger.Warn("Failed to remove session directory",
			zap.String("session_id", session.ID),
			zap.String("dir", session.TempDir),
			zap.Error(err),
		)
	}

	s.logger.Info("Cleaned up session", zap.String("session_id", session.ID))
}

// CleanupAll releases every live session. Called on service shutdown.
func (s *SessionService) CleanupAll() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		s.Cleanup(session)
	}
}

func closeProvider(provider LLMProvider, logger *zap.Logger) {
	if closer, ok := provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("Failed to close provider", zap.Error(err))
		}
	}
}
