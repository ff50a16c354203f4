package handlers

import (
	"errors"
	"path/filepath"
	"strings"

	"moneyrag/internal/dto"
	"moneyrag/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const chatApology = "I apologize, but I ran into a problem answering that. Please try again."

type SessionHandler struct {
	sessions *service.SessionService
	logger   *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// CreateSession godoc
// @Summary Create an analysis session
// @Description Create an isolated session with its own database, vector collection and LLM provider
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body dto.CreateSessionRequest false "Provider and model selection"
// @Success 201 {object} dto.CreateSessionResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	session, err := h.sessions.Create(c.Context(), req.Provider, req.ChatModel, req.EmbeddingModel)
	if err != nil {
		if errors.Is(err, service.ErrUnknownProvider) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.CreateSessionResponse{
		SessionID: session.ID,
		Provider:  session.Provider.Name(),
	})
}

// Ingest godoc
// @Summary Ingest CSV statements into a session
// @Description Upload one or more bank/credit card CSV files, normalize and index them
// @Tags sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param files formData file true "CSV files"
// @Success 200 {object} dto.IngestResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} dto.IngestResponse
// @Router /api/v1/sessions/{id}/ingest [post]
func (h *SessionHandler) Ingest(c *fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Multipart form is required",
		})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one CSV file is required",
		})
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		dst := filepath.Join(session.TempDir, filepath.Base(file.Filename))
		if err := c.SaveFile(file, dst); err != nil {
			h.logger.Error("Failed to save upload",
				zap.String("file", file.Filename),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save uploaded file",
			})
		}
		paths = append(paths, dst)
	}

	result, setupErr := h.sessions.Setup(c.Context(), session, paths)

	resp := dto.IngestResponse{Indexed: result.Indexed, Ready: result.Ready}
	for _, fr := range result.Files {
		fileResp := dto.FileResultResponse{File: fr.File, Rows: fr.Rows}
		if fr.Err != nil {
			fileResp.Error = fr.Err.Error()
		}
		resp.Files = append(resp.Files, fileResp)
	}

	if setupErr != nil {
		h.logger.Error("Session setup failed",
			zap.String("session_id", session.ID),
			zap.Error(setupErr),
		)
		resp.Error = setupErr.Error()
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	}

	return c.JSON(resp)
}

// Chat godoc
// @Summary Ask a question about the ingested transactions
// @Description Run one agent turn: the model may query the database and search the vector collection
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body dto.ChatRequest true "User message"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/sessions/{id}/chat [post]
func (h *SessionHandler) Chat(c *fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	answer, err := h.sessions.Chat(c.Context(), session, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotReady) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("Chat turn failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return c.JSON(dto.ChatResponse{Answer: chatApology})
	}

	return c.JSON(dto.ChatResponse{Answer: answer})
}

// DeleteSession godoc
// @Summary Delete a session
// @Description Release the session's database, vector collection and temporary files
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	h.sessions.Cleanup(session)

	return c.SendStatus(fiber.StatusNoContent)
}
